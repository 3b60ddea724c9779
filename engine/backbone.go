package engine

import (
	"errors"
	"fmt"
	"image"

	"BoardKP/model"

	"gocv.io/x/gocv"
)

// Backbone is a frozen feature extractor loaded from ONNX. It is not safe for concurrent use.
type Backbone struct {
	net gocv.Net
	pre model.Preprocess
}

// NewBackbone reads an ONNX network from memory.
func NewBackbone(onnx []byte, pre model.Preprocess) (*Backbone, error) {
	if pre.InputSize <= 0 {
		pre.InputSize = DefaultInputSize
	}
	if pre.Scale == 0 {
		pre.Scale = 1.0 / 255
	}
	net, err := gocv.ReadNetFromONNXBytes(onnx)
	if err != nil {
		return nil, fmt.Errorf("read backbone: %w", err)
	}
	if net.Empty() {
		_ = net.Close()
		return nil, errors.New("backbone network is empty")
	}
	return &Backbone{net: net, pre: pre}, nil
}

// Preprocess returns the input settings in use.
func (b *Backbone) Preprocess() model.Preprocess {
	return b.pre
}

// Features runs img (BGR) through the network and global-average-pools the output into one
// value per channel.
func (b *Backbone) Features(img gocv.Mat) ([]float32, error) {
	size := image.Pt(b.pre.InputSize, b.pre.InputSize)
	blob := gocv.BlobFromImage(img, b.pre.Scale, size, gocv.NewScalar(0, 0, 0, 0), b.pre.SwapRB, false)
	defer blob.Close()
	b.net.SetInput(blob, "")
	out := b.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("backbone output: %w", err)
	}
	return Pool(out.Size(), data)
}

// Pool reduces an NCHW (or NCL) batch-of-one tensor to per-channel means; 2D outputs are
// returned as they are.
func Pool(dims []int, data []float32) ([]float32, error) {
	switch len(dims) {
	case 2:
		return append([]float32(nil), data...), nil
	case 3, 4:
		if dims[0] != 1 {
			return nil, fmt.Errorf("backbone batch %d, want 1", dims[0])
		}
		c := dims[1]
		spatial := 1
		for _, d := range dims[2:] {
			spatial *= d
		}
		if len(data) < c*spatial {
			return nil, fmt.Errorf("backbone output has %d values for shape %v", len(data), dims)
		}
		out := make([]float32, c)
		for ch := 0; ch < c; ch++ {
			var sum float64
			for _, v := range data[ch*spatial : (ch+1)*spatial] {
				sum += float64(v)
			}
			out[ch] = float32(sum / float64(spatial))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported backbone output shape %v", dims)
	}
}

// Close releases the network.
func (b *Backbone) Close() error {
	return b.net.Close()
}
