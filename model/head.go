// Package model holds the trainable keypoint regression head and the bundle format that ships
// it together with its frozen backbone.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Outputs is the number of regressed values: four x/y pairs.
const Outputs = 8

// Head is Dense(hidden, relu) -> Dropout -> Dense(8, sigmoid) over backbone features.
type Head struct {
	W1      *mat.Dense // in x hidden
	B1      []float64
	W2      *mat.Dense // hidden x Outputs
	B2      []float64
	Dropout float64
}

// NewHead builds a Glorot-uniform initialised head with zero biases.
func NewHead(in, hidden int, dropout float64, rng *rand.Rand) *Head {
	return &Head{
		W1:      glorot(in, hidden, rng),
		B1:      make([]float64, hidden),
		W2:      glorot(hidden, Outputs, rng),
		B2:      make([]float64, Outputs),
		Dropout: dropout,
	}
}

func glorot(in, out int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(in, out, data)
}

// In is the feature width the head expects.
func (h *Head) In() int {
	r, _ := h.W1.Dims()
	return r
}

// Hidden is the width of the hidden layer.
func (h *Head) Hidden() int {
	_, c := h.W1.Dims()
	return c
}

// Clone deep-copies the head.
func (h *Head) Clone() *Head {
	return &Head{
		W1:      mat.DenseCopyOf(h.W1),
		B1:      append([]float64(nil), h.B1...),
		W2:      mat.DenseCopyOf(h.W2),
		B2:      append([]float64(nil), h.B2...),
		Dropout: h.Dropout,
	}
}

// Params returns the backing slices of every trainable tensor, in a fixed order shared with
// Grads.
func (h *Head) Params() [][]float64 {
	return [][]float64{h.W1.RawMatrix().Data, h.B1, h.W2.RawMatrix().Data, h.B2}
}

// Cache keeps the activations of a forward pass for Backward.
type Cache struct {
	X    *mat.Dense
	A1   *mat.Dense // relu output after dropout
	Mask *mat.Dense // dropout scale per unit, nil at inference
	Out  *mat.Dense // sigmoid output
}

// Forward runs a batch (rows are samples). When rng is non-nil dropout is applied.
func (h *Head) Forward(x *mat.Dense, rng *rand.Rand) *Cache {
	n, _ := x.Dims()
	hidden := h.Hidden()

	var z1 mat.Dense
	z1.Mul(x, h.W1)
	a1 := mat.NewDense(n, hidden, nil)
	a1.Apply(func(_, j int, v float64) float64 {
		return math.Max(0, v+h.B1[j])
	}, &z1)

	var mask *mat.Dense
	if rng != nil && h.Dropout > 0 {
		keep := 1 - h.Dropout
		mask = mat.NewDense(n, hidden, nil)
		mask.Apply(func(_, _ int, _ float64) float64 {
			if rng.Float64() < keep {
				return 1 / keep
			}
			return 0
		}, mask)
		a1.MulElem(a1, mask)
	}

	var z2 mat.Dense
	z2.Mul(a1, h.W2)
	out := mat.NewDense(n, Outputs, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return sigmoid(v + h.B2[j])
	}, &z2)
	return &Cache{X: x, A1: a1, Mask: mask, Out: out}
}

// Grads mirrors Params.
type Grads struct {
	W1, W2 *mat.Dense
	B1, B2 []float64
}

// Slices returns the gradient slices in Params order.
func (g *Grads) Slices() [][]float64 {
	return [][]float64{g.W1.RawMatrix().Data, g.B1, g.W2.RawMatrix().Data, g.B2}
}

// Backward turns dL/dOut into parameter gradients.
func (h *Head) Backward(c *Cache, dOut *mat.Dense) *Grads {
	n, _ := dOut.Dims()
	hidden := h.Hidden()

	dz2 := mat.NewDense(n, Outputs, nil)
	dz2.Apply(func(i, j int, v float64) float64 {
		y := c.Out.At(i, j)
		return v * y * (1 - y)
	}, dOut)

	g := &Grads{B1: make([]float64, hidden), B2: make([]float64, Outputs)}
	g.W2 = mat.NewDense(hidden, Outputs, nil)
	g.W2.Mul(c.A1.T(), dz2)
	for j := 0; j < Outputs; j++ {
		g.B2[j] = mat.Sum(dz2.ColView(j))
	}

	var da1 mat.Dense
	da1.Mul(dz2, h.W2.T())
	dz1 := mat.NewDense(n, hidden, nil)
	dz1.Apply(func(i, j int, v float64) float64 {
		// a1 > 0 exactly where relu passed and dropout kept the unit
		if c.A1.At(i, j) <= 0 {
			return 0
		}
		if c.Mask != nil {
			return v * c.Mask.At(i, j)
		}
		return v
	}, &da1)

	in := h.In()
	g.W1 = mat.NewDense(in, hidden, nil)
	g.W1.Mul(c.X.T(), dz1)
	for j := 0; j < hidden; j++ {
		g.B1[j] = mat.Sum(dz1.ColView(j))
	}
	return g
}

// Predict runs one feature vector through the head without dropout.
func (h *Head) Predict(features []float32) ([Outputs]float64, error) {
	var out [Outputs]float64
	if len(features) != h.In() {
		return out, fmt.Errorf("feature width %d, head expects %d", len(features), h.In())
	}
	x := mat.NewDense(1, len(features), nil)
	for i, v := range features {
		x.Set(0, i, float64(v))
	}
	c := h.Forward(x, nil)
	for j := range out {
		out[j] = c.Out.At(0, j)
	}
	return out, nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// headFile is the on-disk form of a Head: float32 row-major weights.
type headFile struct {
	Input   int       `json:"input"`
	Hidden  int       `json:"hidden"`
	Output  int       `json:"output"`
	Dropout float64   `json:"dropout"`
	W1      []float32 `json:"w1"`
	B1      []float32 `json:"b1"`
	W2      []float32 `json:"w2"`
	B2      []float32 `json:"b2"`
}

var errHeadShape = errors.New("head weights do not match declared shape")

func (h *Head) toFile() headFile {
	return headFile{
		Input:   h.In(),
		Hidden:  h.Hidden(),
		Output:  Outputs,
		Dropout: h.Dropout,
		W1:      to32(h.W1.RawMatrix().Data),
		B1:      to32(h.B1),
		W2:      to32(h.W2.RawMatrix().Data),
		B2:      to32(h.B2),
	}
}

func (f headFile) toHead() (*Head, error) {
	if f.Output != Outputs || f.Input <= 0 || f.Hidden <= 0 ||
		len(f.W1) != f.Input*f.Hidden || len(f.B1) != f.Hidden ||
		len(f.W2) != f.Hidden*Outputs || len(f.B2) != Outputs {
		return nil, errHeadShape
	}
	return &Head{
		W1:      mat.NewDense(f.Input, f.Hidden, to64(f.W1)),
		B1:      to64(f.B1),
		W2:      mat.NewDense(f.Hidden, Outputs, to64(f.W2)),
		B2:      to64(f.B2),
		Dropout: f.Dropout,
	}, nil
}

func to32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func to64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
