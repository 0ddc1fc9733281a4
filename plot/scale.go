// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package plot holds axis scales and tick markers shared by the renderers.
package plot

import (
	"math"

	"gonum.org/v1/plot"
)

// FuncScale normalizes through Func, identity when Func is nil.
type FuncScale struct {
	Func func(float64) float64
}

func (s *FuncScale) Normalize(min, max, x float64) float64 {
	f := s.Func
	if f == nil {
		f = func(x float64) float64 { return x }
	}
	fMin := f(min)
	return (f(x) - fMin) / (f(max) - fMin)
}

// LogScale is a base 10 scale that clamps non-positive values, which empty
// bins and derivatives produce, to 1e-15.
var LogScale = &FuncScale{Func: Log10Min15}

func Log10Min15(x float64) float64 {
	if x <= 1e-15 {
		return -15
	}
	return math.Log10(x)
}

// Orient draws a with its largest value first when descending is set, the
// usual way to show binding energies.
func Orient(a *plot.Axis, descending bool) {
	if !descending {
		return
	}
	var n plot.Normalizer = plot.LinearScale{}
	if a.Scale != nil {
		n = a.Scale
	}
	a.Scale = plot.InvertedScale{Normalizer: n}
}
