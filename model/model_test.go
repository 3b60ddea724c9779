package model

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestHuber(t *testing.T) {
	pred := mat.NewDense(1, 4, []float64{0.01, 0.5, 0.0, 0.3})
	target := mat.NewDense(1, 4, []float64{0.0, 0.2, 0.0, 0.31})
	delta := 0.02

	loss, grad := Huber(pred, target, delta)
	// 0.5*0.01^2, 0.02*0.3-0.5*0.02^2, 0, 0.5*0.01^2
	want := (0.5*0.0001 + (0.02*0.3 - 0.0002) + 0 + 0.5*0.0001) / 4
	assert.InDelta(t, want, loss, 1e-12)
	assert.InDelta(t, 0.01/4, grad.At(0, 0), 1e-12)
	assert.InDelta(t, 0.02/4, grad.At(0, 1), 1e-12)
	assert.InDelta(t, 0, grad.At(0, 2), 1e-12)
	assert.InDelta(t, -0.01/4, grad.At(0, 3), 1e-12)
}

func TestMAE(t *testing.T) {
	pred := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	target := mat.NewDense(2, 2, []float64{1.5, 2, 2, 4})
	assert.InDelta(t, 0.375, MAE(pred, target), 1e-12)
}

func lossOf(h *Head, x, y *mat.Dense) float64 {
	l, _ := Huber(h.Forward(x, nil).Out, y, 0.02)
	return l
}

func TestHeadGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	h := NewHead(5, 6, 0, rng)
	x := mat.NewDense(3, 5, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return rng.Float64() }, x)
	y := mat.NewDense(3, Outputs, nil)
	y.Apply(func(_, _ int, _ float64) float64 { return rng.Float64() }, y)

	c := h.Forward(x, nil)
	_, dOut := Huber(c.Out, y, 0.02)
	grads := h.Backward(c, dOut).Slices()

	const eps = 1e-6
	for pi, p := range h.Params() {
		for k := range p {
			orig := p[k]
			p[k] = orig + eps
			up := lossOf(h, x, y)
			p[k] = orig - eps
			down := lossOf(h, x, y)
			p[k] = orig
			numeric := (up - down) / (2 * eps)
			require.InDelta(t, numeric, grads[pi][k], 1e-6, "param %d index %d", pi, k)
		}
	}
}

func TestHeadDropoutOnlyWhenTraining(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	h := NewHead(4, 32, 0.5, rng)
	x := mat.NewDense(2, 4, []float64{1, 2, 3, 4, 4, 3, 2, 1})

	a := h.Forward(x, nil)
	b := h.Forward(x, nil)
	assert.True(t, mat.Equal(a.Out, b.Out))
	assert.Nil(t, a.Mask)

	d := h.Forward(x, rand.New(rand.NewSource(9)))
	require.NotNil(t, d.Mask)
	zeros := 0
	for _, v := range d.Mask.RawMatrix().Data {
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2.0, v, 1e-12)
		}
	}
	assert.Greater(t, zeros, 0)
}

func TestAdamFitsLinearTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	h := NewHead(3, 16, 0, rng)
	x := mat.NewDense(32, 3, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return rng.Float64() }, x)
	y := mat.NewDense(32, Outputs, nil)
	y.Apply(func(i, j int, _ float64) float64 {
		return 0.2 + 0.6*x.At(i, j%3)
	}, y)

	opt := NewAdam(1e-2)
	before := MAE(h.Forward(x, nil).Out, y)
	for i := 0; i < 500; i++ {
		c := h.Forward(x, nil)
		_, dOut := Huber(c.Out, y, 0.02)
		opt.Step(h.Params(), h.Backward(c, dOut).Slices())
	}
	after := MAE(h.Forward(x, nil).Out, y)
	assert.Less(t, after, before/3)
}

func TestPredict(t *testing.T) {
	h := NewHead(2, 3, 0.2, rand.New(rand.NewSource(1)))
	out, err := h.Predict([]float32{0.5, -0.5})
	require.NoError(t, err)
	for _, v := range out {
		assert.True(t, v > 0 && v < 1)
	}
	_, err = h.Predict([]float32{1})
	assert.Error(t, err)
}

func TestBundleRoundTrip(t *testing.T) {
	h := NewHead(4, 5, 0.2, rand.New(rand.NewSource(2)))
	b := Bundle{
		Backbone: []byte("onnx-bytes"),
		Head:     h,
		Meta: Meta{
			Version:    "2026-01-02",
			Order:      []string{"20_top", "6_right", "3_bottom", "11_left"},
			Preprocess: Preprocess{InputSize: 320, Scale: 1.0 / 255, SwapRB: true},
		},
	}

	check := func(t *testing.T, got Bundle) {
		assert.Equal(t, b.Backbone, got.Backbone)
		assert.Equal(t, b.Meta, got.Meta)
		assert.Equal(t, 4, got.Head.In())
		assert.Equal(t, 5, got.Head.Hidden())
		assert.InDelta(t, 0.2, got.Head.Dropout, 1e-12)
		want := h.W1.RawMatrix().Data
		for i, v := range got.Head.W1.RawMatrix().Data {
			assert.InDelta(t, want[i], v, 1e-6)
		}
		p1, _ := h.Predict([]float32{1, 2, 3, 4})
		p2, _ := got.Head.Predict([]float32{1, 2, 3, 4})
		for i := range p1 {
			assert.InDelta(t, p1[i], p2[i], 1e-5)
		}
	}

	t.Run("zip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "m.kpm")
		require.NoError(t, WriteBundle(path, b))
		got, err := ReadBundle(path)
		require.NoError(t, err)
		check(t, got)
	})

	t.Run("dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "saved_model")
		require.NoError(t, WriteDir(dir, b))
		got, err := ReadDir(dir)
		require.NoError(t, err)
		check(t, got)

		_, err = ReadDir(t.TempDir())
		assert.ErrorIs(t, err, ErrNotBundle)
	})
}

func TestDecodeHeadRejectsBadShape(t *testing.T) {
	_, err := DecodeHead([]byte(`{"input":2,"hidden":2,"output":8,"w1":[1,2,3],"b1":[0,0],"w2":[],"b2":[]}`))
	assert.ErrorIs(t, err, errHeadShape)
}
