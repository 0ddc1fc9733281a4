// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package binning

import (
	"math"
	"slices"
)

// Gradient returns the discrete gradient of ys with unit spacing: one-sided
// differences at the ends and central differences inside. Fewer than two
// values yield zeros.
func Gradient(ys []float64) []float64 {
	n := len(ys)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = ys[1] - ys[0]
	out[n-1] = ys[n-1] - ys[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (ys[i+1] - ys[i-1]) / 2
	}
	return out
}

// Median returns the median of the non-NaN values, averaging the middle pair
// for even counts. It is NaN when no value is valid.
func Median(xs []float64) float64 {
	s := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			s = append(s, x)
		}
	}
	if len(s) == 0 {
		return math.NaN()
	}
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// StepOf returns the absolute median spacing of coords, or 1 for fewer than
// two coordinates.
func StepOf(coords []float64) float64 {
	if len(coords) < 2 {
		return 1
	}
	return math.Abs(Median(Gradient(coords)))
}
