// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package demap

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/potorocd/WESPE-data-viewer/binning"
)

var (
	ErrNoMaps       = errors.New("no maps to merge")
	ErrStepMismatch = errors.New("maps have different steps")
)

// Merge sums per-run maps into one. Maps on identical coordinates are added
// cell by cell; otherwise the maps are placed on the union of their
// coordinates. Rows holding on average less than one count per energy bin
// are dropped afterwards. A degenerate result is returned with MergeOK unset
// rather than as an error.
func Merge(maps []*Map) (*Map, error) {
	if len(maps) == 0 {
		return nil, ErrNoMaps
	}
	first := maps[0]
	for _, m := range maps[1:] {
		if m.EnergyStep != first.EnergyStep || m.TimeStep != first.TimeStep || m.Ordinate != first.Ordinate {
			return nil, fmt.Errorf("%w: %s and %s", ErrStepMismatch, first.Name, m.Name)
		}
	}

	var out *Map
	if aligned(maps) {
		out = sumAligned(maps)
	} else {
		logger.Warn("Coordinates differ between runs, merging on their union", "module", "merge")
		out = sumUnion(maps)
	}
	out.Name = "Batch"
	out.Kind = RawMap
	out.Normalized = false
	out.MergeOK = !out.Empty()

	dropped := dropEmptyRows(out)
	if dropped > 0 {
		logger.Info(fmt.Sprintf("%d empty time rows dropped", dropped), "module", "merge")
	}
	if out.Empty() {
		out.MergeOK = false
	}
	if !out.MergeOK {
		logger.Warn("Merged map is degenerate", "module", "merge")
	}

	for i, v := range out.Values {
		if math.IsNaN(v) {
			out.Values[i] = 0
		}
	}
	out.Index = make([]float64, out.Rows())
	for i := range out.Index {
		out.Index[i] = float64(i)
	}

	if out.Cols() > 1 && binning.Median(binning.Gradient(out.Binding)) > 0 {
		reverseEnergy(out)
	}
	return out, nil
}

func aligned(maps []*Map) bool {
	first := maps[0]
	for _, m := range maps[1:] {
		if !slices.Equal(m.Kinetic, first.Kinetic) || !slices.Equal(m.Raw, first.Raw) || !slices.Equal(m.Binding, first.Binding) {
			return false
		}
	}
	return true
}

func sumAligned(maps []*Map) *Map {
	out := newMerged(maps[0], clone(maps[0].Kinetic), clone(maps[0].Binding), clone(maps[0].Raw))
	out.Values = clone(maps[0].Values)
	for _, m := range maps[1:] {
		for i, v := range m.Values {
			out.Values[i] += v
		}
	}
	return out
}

// sumUnion places every map on the sorted union of coordinates. Cells no map
// covers stay NaN until after the empty row check.
func sumUnion(maps []*Map) *Map {
	var kinetic, raw []float64
	binding := make(map[float64]float64)
	for _, m := range maps {
		kinetic = append(kinetic, m.Kinetic...)
		raw = append(raw, m.Raw...)
		for i, ke := range m.Kinetic {
			if _, ok := binding[ke]; !ok && i < len(m.Binding) {
				binding[ke] = m.Binding[i]
			}
		}
	}
	kinetic = unique(kinetic)
	raw = unique(raw)

	be := make([]float64, len(kinetic))
	for i, ke := range kinetic {
		be[i] = binding[ke]
	}
	out := newMerged(maps[0], kinetic, be, raw)
	out.Values = make([]float64, len(raw)*len(kinetic))
	for i := range out.Values {
		out.Values[i] = math.NaN()
	}

	col := make(map[float64]int, len(kinetic))
	for i, ke := range kinetic {
		col[ke] = i
	}
	row := make(map[float64]int, len(raw))
	for i, t := range raw {
		row[t] = i
	}
	for _, m := range maps {
		for r, t := range m.Raw {
			for c, ke := range m.Kinetic {
				k := row[t]*len(kinetic) + col[ke]
				v := m.At(r, c)
				if math.IsNaN(out.Values[k]) {
					out.Values[k] = v
				} else if !math.IsNaN(v) {
					out.Values[k] += v
				}
			}
		}
	}
	return out
}

func newMerged(first *Map, kinetic, binding, raw []float64) *Map {
	out := &Map{
		Kinetic:    kinetic,
		Binding:    binding,
		Raw:        raw,
		Ordinate:   first.Ordinate,
		EnergyStep: first.EnergyStep,
		TimeStep:   first.TimeStep,
	}
	out.TimeLabel = out.rawLabel()
	return out
}

func unique(xs []float64) []float64 {
	slices.Sort(xs)
	return slices.Compact(xs)
}

// dropEmptyRows removes rows whose NaN-skipping sum divided by the number of
// energy bins is below one.
func dropEmptyRows(m *Map) int {
	nE := m.Cols()
	if nE == 0 {
		return 0
	}
	keep := 0
	for r := 0; r < m.Rows(); r++ {
		var sum float64
		for _, v := range m.Row(r) {
			if !math.IsNaN(v) {
				sum += v
			}
		}
		if sum/float64(nE) < 1 {
			continue
		}
		if keep != r {
			copy(m.Values[keep*nE:(keep+1)*nE], m.Row(r))
			m.Raw[keep] = m.Raw[r]
		}
		keep++
	}
	dropped := m.Rows() - keep
	m.Values = m.Values[:keep*nE]
	m.Raw = m.Raw[:keep]
	return dropped
}

func reverseEnergy(m *Map) {
	slices.Reverse(m.Kinetic)
	slices.Reverse(m.Binding)
	for r := 0; r < m.Rows(); r++ {
		slices.Reverse(m.Row(r))
	}
}
