// Package geometry orders dartboard calibration points into their fixed roles.
package geometry

import (
	"fmt"
	"math"
)

// Point is a normalised image coordinate, y grows downwards.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Role names in canonical output order.
var Roles = [4]string{"20_top", "6_right", "3_bottom", "11_left"}

// LabelFormat documents the flattened keypoint layout written to label files.
const LabelFormat = "x20 y20 x6 y6 x3 y3 x11 y11"

// TargetAngles are the polar angles of each role around the centroid, in role order.
var TargetAngles = [4]float64{
	-math.Pi / 2, // top (20)
	0,            // right (6)
	math.Pi / 2,  // bottom (3)
	math.Pi,      // left (11)
}

// permutations of {0,1,2,3} in lexicographic order.
var permutations = buildPermutations()

func buildPermutations() [][4]int {
	out := make([][4]int, 0, 24)
	var rec func(cur []int, used [4]bool)
	rec = func(cur []int, used [4]bool) {
		if len(cur) == 4 {
			out = append(out, [4]int{cur[0], cur[1], cur[2], cur[3]})
			return
		}
		for i := 0; i < 4; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			rec(append(cur, i), used)
			used[i] = false
		}
	}
	rec(make([]int, 0, 4), [4]bool{})
	return out
}

// AngDiff returns the absolute circular distance between two angles in radians, in [0, π].
func AngDiff(a, b float64) float64 {
	diff := math.Mod(a-b+math.Pi, 2*math.Pi)
	if diff < 0 {
		diff += 2 * math.Pi
	}
	return math.Abs(diff - math.Pi)
}

// Centroid is the mean of pts.
func Centroid(pts [4]Point) Point {
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 4
	c.Y /= 4
	return c
}

// OrderPoints assigns the four points to the roles top, right, bottom, left by minimising the
// summed angular distance to TargetAngles. Ties keep the first permutation found.
func OrderPoints(pts [4]Point) [4]Point {
	c := Centroid(pts)
	var angles [4]float64
	for i, p := range pts {
		angles[i] = math.Atan2(p.Y-c.Y, p.X-c.X)
	}
	best := permutations[0]
	bestCost := math.Inf(1)
	for _, perm := range permutations {
		cost := 0.0
		for role, idx := range perm {
			cost += AngDiff(angles[idx], TargetAngles[role])
		}
		if cost < bestCost {
			bestCost = cost
			best = perm
		}
	}
	var out [4]Point
	for role, idx := range best {
		out[role] = pts[idx]
	}
	return out
}

// OrderSlice is OrderPoints for callers holding a slice; it needs at least four points and
// orders the first four.
func OrderSlice(pts []Point) ([4]Point, error) {
	if len(pts) < 4 {
		return [4]Point{}, fmt.Errorf("need 4 points, got %d", len(pts))
	}
	return OrderPoints([4]Point{pts[0], pts[1], pts[2], pts[3]}), nil
}

// Flatten lays the points out as x0 y0 x1 y1 ...
func Flatten(pts [4]Point) [8]float64 {
	var out [8]float64
	for i, p := range pts {
		out[2*i] = p.X
		out[2*i+1] = p.Y
	}
	return out
}

// Unflatten is the inverse of Flatten.
func Unflatten(v []float64) ([4]Point, error) {
	if len(v) < 8 {
		return [4]Point{}, fmt.Errorf("need 8 values, got %d", len(v))
	}
	var out [4]Point
	for i := range out {
		out[i] = Point{X: v[2*i], Y: v[2*i+1]}
	}
	return out, nil
}
