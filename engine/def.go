package engine

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"BoardKP/geometry"
	iface "BoardKP/interface"

	"gocv.io/x/gocv"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

const (
	KindBundle = "bundle"
	KindTflite = "tflite"
)

// DefaultInputSize is the square input side used when a model does not declare one.
const DefaultInputSize = 320

var (
	ErrEmptyImage      = errors.New("decoded image is empty or unsupported format")
	ErrShortOutput     = errors.New("unexpected output size")
	ErrUnsupportedKind = errors.New("unsupported model file")
)

// Open picks the backend from the model path: .tflite files, .kpm bundles, or a saved model
// directory.
func Open(modelPath string) (iface.Backend, error) {
	var b iface.Backend
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(modelPath)); {
	case info.IsDir():
		b = &BundleEngine{}
	case ext == ".kpm" || ext == ".zip":
		b = &BundleEngine{}
	case ext == ".tflite":
		b = &TfliteEngine{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, modelPath)
	}
	if err := b.LoadModel(modelPath); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadImage loads a color image from disk.
func ReadImage(path string) (gocv.Mat, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		_ = mat.Close()
		return gocv.NewMat(), fmt.Errorf("%s: %w", path, ErrEmptyImage)
	}
	return mat, nil
}

// DecodeImage decodes encoded image bytes (jpeg, png, webp...).
func DecodeImage(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), err
	}
	if mat.Empty() {
		_ = mat.Close()
		return gocv.NewMat(), ErrEmptyImage
	}
	return mat, nil
}

// Base64ToMat decodes a base64 image, optionally carrying a data:image/... prefix.
func Base64ToMat(b64 string) (gocv.Mat, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return gocv.NewMat(), err
	}
	return DecodeImage(data)
}

// Resize returns a size x size bilinear copy of img.
func Resize(img gocv.Mat, size int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(img, &dst, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	return dst
}

// Keypoints decodes the first eight model outputs into role-ordered points.
func Keypoints(values []float32) ([]iface.Keypoint, error) {
	if len(values) < 8 {
		return nil, fmt.Errorf("%w: %d", ErrShortOutput, len(values))
	}
	out := make([]iface.Keypoint, len(geometry.Roles))
	for i, role := range geometry.Roles {
		out[i] = iface.Keypoint{
			Role: role,
			Pos:  iface.Position{X: values[2*i], Y: values[2*i+1]},
		}
	}
	return out, nil
}
