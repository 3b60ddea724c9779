package model

import "math"

// Adam is the Adam optimiser with Keras default moments.
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64

	step int
	m, v [][]float64
}

// NewAdam returns an optimiser with learning rate lr.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7}
}

// Step updates params in place from grads; both slices must keep the same layout between calls.
func (a *Adam) Step(params, grads [][]float64) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p))
			a.v[i] = make([]float64, len(p))
		}
	}
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for i, p := range params {
		g := grads[i]
		m, v := a.m[i], a.v[i]
		for k := range p {
			m[k] = a.Beta1*m[k] + (1-a.Beta1)*g[k]
			v[k] = a.Beta2*v[k] + (1-a.Beta2)*g[k]*g[k]
			p[k] -= a.LR * (m[k] / c1) / (math.Sqrt(v[k]/c2) + a.Epsilon)
		}
	}
}
