// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package binning places raw values on step-aligned grids. Every histogram
// axis and every exported coordinate goes through RoundToStep so that
// displayed values land exactly on a multiple of the step.
package binning

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"
)

var ErrInvalidStep = errors.New("invalid step")

// maxDecimals bounds the precision used to snap results, beyond which float64
// carries no meaningful digits.
const maxDecimals = 15

// CheckStep returns an error unless step is a finite positive number.
func CheckStep(step float64) error {
	if math.IsNaN(step) || math.IsInf(step, 0) || step <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidStep, step)
	}
	return nil
}

// RoundToStep returns the multiple of step nearest to x, rounding halves up.
// The result is snapped to the decimal precision of step.
func RoundToStep(x, step float64) float64 {
	return roundToStep(x, step, Decimals(step))
}

// RoundSlice applies RoundToStep element-wise into a new slice.
func RoundSlice(xs []float64, step float64) []float64 {
	out := make([]float64, len(xs))
	prec := Decimals(step)
	for i, x := range xs {
		out[i] = roundToStep(x, step, prec)
	}
	return out
}

func roundToStep(x, step float64, prec int) float64 {
	q := x / step
	f := math.Floor(q)
	r := f * step
	if q-f >= 0.5 {
		r += step
	}
	return scalar.Round(r, prec)
}

// Decimals returns the number of decimal digits in the shortest
// representation of step.
func Decimals(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	n := len(s) - i - 1
	if n > maxDecimals {
		n = maxDecimals
	}
	return n
}

// Index is the canonical bin index of an already rounded value on a grid
// starting at min.
func Index(x, min, step float64) int {
	return int(math.Round((x - min) / step))
}

// Arange returns the step-aligned grid min, min+step, ... covering max.
func Arange(min, max, step float64) []float64 {
	if max < min {
		return nil
	}
	n := Index(max, min, step) + 1
	out := make([]float64, n)
	prec := Decimals(step)
	for i := range out {
		out[i] = scalar.Round(min+float64(i)*step, prec)
	}
	return out
}
