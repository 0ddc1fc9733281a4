// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package cut

import (
	"errors"
	"fmt"
	"math"

	"github.com/potorocd/WESPE-data-viewer/binning"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidWindow = errors.New("invalid smoothing window")

// Smooth applies a Savitzky-Golay filter to every slice, cycles times. Edges
// are extended with the nearest value.
func (c *MapCut) Smooth(window, order, cycles int) error {
	h, err := SavGolCoeffs(window, order)
	if err != nil {
		return err
	}
	for i := range c.Slices {
		v := c.Slices[i].Values
		for k := 0; k < cycles; k++ {
			v = convolveNearest(v, h)
		}
		c.Slices[i].Values = v
	}
	return nil
}

// SavGolCoeffs returns the smoothing coefficients of a least squares
// polynomial fit of the given order over an odd window.
func SavGolCoeffs(window, order int) ([]float64, error) {
	if window < 1 || window%2 == 0 || order < 0 || order >= window {
		return nil, fmt.Errorf("%w: length %d, order %d", ErrInvalidWindow, window, order)
	}
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x := float64(i - half)
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= x
		}
	}
	eye := mat.NewDense(window, window, nil)
	for i := 0; i < window; i++ {
		eye.Set(i, i, 1)
	}
	var pinv mat.Dense
	if err := pinv.Solve(a, eye); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	return mat.Row(nil, 0, &pinv), nil
}

func convolveNearest(v, h []float64) []float64 {
	n := len(v)
	half := len(h) / 2
	out := make([]float64, n)
	for i := range out {
		var s float64
		for k, w := range h {
			j := i + k - half
			if j < 0 {
				j = 0
			} else if j >= n {
				j = n - 1
			}
			s += w * v[j]
		}
		out[i] = s
	}
	return out
}

// Derivative replaces every slice by the absolute value of its gradient.
func (c *MapCut) Derivative() {
	for i := range c.Slices {
		g := binning.Gradient(c.Slices[i].Values)
		for j := range g {
			g[j] = math.Abs(g[j])
		}
		c.Slices[i].Values = g
	}
	c.ArbitraryUnits = true
}

// extrema returns the NaN-skipping extremes over all slices.
func (c *MapCut) extrema() (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	for _, s := range c.Slices {
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(lo) || v < lo {
				lo = v
			}
			if math.IsNaN(hi) || v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

// Norm01 maps the global range of the cut onto [0, 1].
func (c *MapCut) Norm01() {
	lo, hi := c.extrema()
	span := hi - lo
	for i := range c.Slices {
		v := c.Slices[i].Values
		floats.AddConst(-lo, v)
		if span != 0 && !math.IsNaN(span) {
			floats.Scale(1/span, v)
		}
	}
	c.ArbitraryUnits = true
	c.Normalized = true
}

// Norm11 divides every slice by the largest absolute value in the cut.
func (c *MapCut) Norm11() {
	lo, hi := c.extrema()
	norm := math.Max(math.Abs(lo), math.Abs(hi))
	if norm != 0 && !math.IsNaN(norm) {
		for i := range c.Slices {
			v := c.Slices[i].Values
			for j := range v {
				v[j] /= norm
			}
		}
	}
	c.ArbitraryUnits = true
	c.Normalized = true
}

// Difference stores every slice after the first minus the first, scaled by
// magnification, in Diffs. The slices are kept.
func (c *MapCut) Difference(magnification float64) {
	c.Diffs = c.Diffs[:0]
	if len(c.Slices) == 0 {
		return
	}
	ref := c.Slices[0].Values
	name := c.VarName()
	for i, s := range c.Slices[1:] {
		d := make([]float64, len(s.Values))
		floats.SubTo(d, s.Values, ref)
		label := fmt.Sprintf("Difference %s%d-%s1", name, i+2, name)
		if magnification != 1 {
			floats.Scale(magnification, d)
			label += " x " + format(magnification)
		}
		c.Diffs = append(c.Diffs, Difference{Label: label, Values: d})
	}
}

// Waterfall lifts every slice until it no longer dips below its predecessor,
// then adds offset times the original global range per position in the
// stack.
func (c *MapCut) Waterfall(offset float64) {
	n := len(c.Slices)
	if n < 2 {
		return
	}
	lo, hi := c.extrema()
	step := (hi - lo) * offset

	for iter := 0; iter < n-1; iter++ {
		shifts := make([]float64, n)
		for i := 1; i < n; i++ {
			gap := math.Inf(1)
			for j, v := range c.Slices[i].Values {
				if d := v - c.Slices[i-1].Values[j]; d < gap {
					gap = d
				}
			}
			if gap < 0 {
				shifts[i] = -gap
			}
		}
		for i := 1; i < n; i++ {
			floats.AddConst(shifts[i], c.Slices[i].Values)
		}
	}

	if step > 0 {
		for i := 1; i < n; i++ {
			floats.AddConst(step*float64(i), c.Slices[i].Values)
		}
	}
}
