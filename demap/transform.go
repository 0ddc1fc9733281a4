// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package demap

import (
	"errors"
	"fmt"
	"math"

	"github.com/potorocd/WESPE-data-viewer/binning"
)

var ErrEmptyMap = errors.New("map has no cells")

// BaselineFactor places the end of the difference map baseline window at
// this many time steps.
const BaselineFactor = -2.5

type Normalization int

const (
	NoNormalization Normalization = iota
	TotalElectron
	ZeroOne
	MinusOneOne
)

func (n Normalization) String() string {
	switch n {
	case NoNormalization:
		return "none"
	case TotalElectron:
		return "total_electron"
	case ZeroOne:
		return "01"
	case MinusOneOne:
		return "11"
	default:
		return "unknown"
	}
}

func ParseNormalization(s string) (Normalization, error) {
	switch s {
	case "", "none", "off":
		return NoNormalization, nil
	case "total_electron":
		return TotalElectron, nil
	case "01":
		return ZeroOne, nil
	case "11":
		return MinusOneOne, nil
	}
	return NoNormalization, fmt.Errorf("unknown normalization %q", s)
}

// WithTimeZero returns a copy carrying the t0 referenced labeling t0 - raw,
// made active.
func (m *Map) WithTimeZero(t0 float64) (*Map, error) {
	if m.Ordinate != DelayOrdinate {
		return nil, fmt.Errorf("%w: time zero on %v ordinate", ErrLabelUnavailable, m.Ordinate)
	}
	if math.IsNaN(t0) || math.IsInf(t0, 0) {
		return nil, fmt.Errorf("%w: t0 %v", ErrInvalidBounds, t0)
	}
	out := m.Clone()
	out.T0 = binning.RoundToStep(t0, m.TimeStep)
	out.HasT0 = true
	out.Relative = make([]float64, len(m.Raw))
	for i, t := range m.Raw {
		out.Relative[i] = binning.RoundToStep(out.T0-t, m.TimeStep)
	}
	out.TimeLabel = DelayRelativeT0
	return out, nil
}

// Diff subtracts the mean of the rows at or before BaselineFactor median
// steps on the active time axis from every row.
func (m *Map) Diff() (*Map, error) {
	if m.Empty() {
		return nil, ErrEmptyMap
	}
	coords := m.TimeCoords()
	limit := BaselineFactor * binning.StepOf(coords)

	nE := m.Cols()
	base := make([]float64, nE)
	n := 0
	for r, t := range coords {
		if t > limit {
			continue
		}
		for c, v := range m.Row(r) {
			base[c] += v
		}
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: none at or before %v %s", ErrNoBaseline, limit, m.TimeUnits())
	}
	for c := range base {
		base[c] /= float64(n)
	}

	out := m.Clone()
	for r := 0; r < out.Rows(); r++ {
		row := out.Row(r)
		for c := range row {
			row[c] -= base[c]
		}
	}
	out.Kind = DifferenceMap
	return out, nil
}

// Normalize returns a normalized copy. NoNormalization returns an unmarked
// copy.
func (m *Map) Normalize(mode Normalization) (*Map, error) {
	out := m.Clone()
	switch mode {
	case NoNormalization:
		return out, nil
	case TotalElectron:
		normTotal(out)
	case ZeroOne:
		lo, _ := extrema(out.Values)
		for i := range out.Values {
			out.Values[i] -= lo
		}
		_, hi := extrema(out.Values)
		if hi != 0 && !math.IsNaN(hi) {
			for i := range out.Values {
				out.Values[i] /= hi
			}
		}
	case MinusOneOne:
		lo, hi := extrema(out.Values)
		norm := math.Max(math.Abs(lo), math.Abs(hi))
		if norm != 0 && !math.IsNaN(norm) {
			for i := range out.Values {
				out.Values[i] /= norm
			}
		}
	default:
		return nil, fmt.Errorf("unknown normalization %d", mode)
	}
	out.Normalized = true
	return out, nil
}

// normTotal equalizes the energy integrated sum of every row to the mean
// row sum. Rows without counts are left as they are.
func normTotal(m *Map) {
	rows := m.Rows()
	if rows == 0 {
		return
	}
	sums := make([]float64, rows)
	var mean float64
	for r := range sums {
		for _, v := range m.Row(r) {
			if !math.IsNaN(v) {
				sums[r] += v
			}
		}
		mean += sums[r]
	}
	mean /= float64(rows)
	for r, s := range sums {
		if s == 0 {
			continue
		}
		row := m.Row(r)
		for c := range row {
			row[c] = row[c] / s * mean
		}
	}
}

// extrema returns the NaN-skipping minimum and maximum, NaN when no value is
// valid.
func extrema(xs []float64) (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(lo) || x < lo {
			lo = x
		}
		if math.IsNaN(hi) || x > hi {
			hi = x
		}
	}
	return lo, hi
}

// CheckBounds fails unless lo and hi are finite and lo is strictly below hi.
func CheckBounds(lo, hi float64) error {
	for _, v := range []float64{lo, hi} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidBounds, v)
		}
	}
	if lo >= hi {
		return fmt.Errorf("%w: low %v not below high %v", ErrInvalidBounds, lo, hi)
	}
	return nil
}

// ROI returns the part of the map whose active coordinate on axis lies in
// [lo, hi]. Selection is by value, so it does not depend on whether the
// coordinate ascends or descends. The result may be empty.
func (m *Map) ROI(lo, hi float64, axis Axis) (*Map, error) {
	if err := CheckBounds(lo, hi); err != nil {
		return nil, err
	}
	rows := span(m.Rows())
	cols := span(m.Cols())
	sel := within(m.Coords(axis), lo, hi)
	if axis == EnergyAxis {
		cols = sel
	} else {
		rows = sel
	}
	return m.subset(rows, cols), nil
}

func within(coords []float64, lo, hi float64) []int {
	var idx []int
	for i, c := range coords {
		if c >= lo && c <= hi {
			idx = append(idx, i)
		}
	}
	return idx
}

func span(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func pick(s []float64, idx []int) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

func (m *Map) subset(rows, cols []int) *Map {
	out := *m
	out.Kinetic = pick(m.Kinetic, cols)
	out.Binding = pick(m.Binding, cols)
	out.Raw = pick(m.Raw, rows)
	out.Relative = pick(m.Relative, rows)
	out.Index = pick(m.Index, rows)
	out.Values = make([]float64, 0, len(rows)*len(cols))
	for _, r := range rows {
		for _, c := range cols {
			out.Values = append(out.Values, m.At(r, c))
		}
	}
	return &out
}
