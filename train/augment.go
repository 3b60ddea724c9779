package train

import (
	"math/rand"

	"gocv.io/x/gocv"
)

// Augmenter applies photometric jitter only; geometry is left alone so labels stay valid.
type Augmenter struct {
	// Brightness is the max shift as a fraction of full scale.
	Brightness float64
	// Contrast is the max relative change of the distance to the image mean.
	Contrast float64
}

// DefaultAugmenter matches ±0.1 brightness and contrast.
var DefaultAugmenter = Augmenter{Brightness: 0.1, Contrast: 0.1}

// Params draws a contrast factor and a brightness shift in pixel units.
func (a Augmenter) Params(rng *rand.Rand) (factor, shift float64) {
	factor = 1 + (rng.Float64()*2-1)*a.Contrast
	shift = (rng.Float64()*2 - 1) * a.Brightness * 255
	return factor, shift
}

// Apply returns a jittered copy of an 8-bit BGR image. Values saturate at 0 and 255.
func (a Augmenter) Apply(img gocv.Mat, rng *rand.Rand) gocv.Mat {
	factor, shift := a.Params(rng)
	m := img.Mean()
	mean := (m.Val1 + m.Val2 + m.Val3) / 3
	// (x - mean) * factor + mean + shift
	beta := (1-factor)*mean + shift
	dst := gocv.NewMat()
	img.ConvertToWithParams(&dst, gocv.MatTypeCV8UC3, float32(factor), float32(beta))
	return dst
}
