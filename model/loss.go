package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Huber is the mean Huber loss over every element of the batch together with its gradient with
// respect to pred.
func Huber(pred, target *mat.Dense, delta float64) (float64, *mat.Dense) {
	r, c := pred.Dims()
	n := float64(r * c)
	grad := mat.NewDense(r, c, nil)
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			e := pred.At(i, j) - target.At(i, j)
			a := math.Abs(e)
			if a <= delta {
				total += 0.5 * e * e
				grad.Set(i, j, e/n)
			} else {
				total += delta*a - 0.5*delta*delta
				grad.Set(i, j, delta*sign(e)/n)
			}
		}
	}
	return total / n, grad
}

// MAE is the mean absolute error over every element.
func MAE(pred, target *mat.Dense) float64 {
	var diff mat.Dense
	diff.Sub(pred, target)
	r, c := diff.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += math.Abs(diff.At(i, j))
		}
	}
	return total / float64(r*c)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
