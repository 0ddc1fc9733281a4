// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package demap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/potorocd/WESPE-data-viewer/binning"

	"gonum.org/v1/gonum/floats/scalar"
)

// PhotonEnergy is the default sideband offset in eV.
const PhotonEnergy = 2.407

// FeaturePosition locates the most prominent feature along axis: the map is
// reduced by its median over the other axis and the coordinate of the maximum
// is taken. The position string selects what is returned:
//
//	"main"      the maximum itself
//	"sb"        the maximum shifted by PhotonEnergy
//	"sb, 1.55"  the maximum shifted by 1.55
//	"12.3"      the literal value
//
// The result is rounded to 2 decimals.
func FeaturePosition(m *Map, position string, axis Axis) (float64, error) {
	if m.Empty() {
		return 0, ErrEmptyMap
	}
	fields := strings.Split(position, ",")
	for i := range fields {
		fields[i] = strings.ToLower(strings.TrimSpace(fields[i]))
	}

	if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
		return scalar.Round(v, 2), nil
	}

	var profile, coords []float64
	if axis == EnergyAxis {
		coords = m.EnergyCoords()
		profile = make([]float64, m.Cols())
		col := make([]float64, m.Rows())
		for c := range profile {
			for r := range col {
				col[r] = m.At(r, c)
			}
			profile[c] = binning.Median(col)
		}
	} else {
		coords = m.TimeCoords()
		profile = make([]float64, m.Rows())
		for r := range profile {
			profile[r] = binning.Median(m.Row(r))
		}
	}

	best := -1
	for i, v := range profile {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > profile[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, ErrEmptyMap
	}
	pos := coords[best]

	if fields[0] == "sb" {
		hv := PhotonEnergy
		if len(fields) > 1 && fields[1] != "" {
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return 0, fmt.Errorf("sideband offset %q: %w", fields[1], err)
			}
			hv = v
		}
		pos += hv
	}
	return scalar.Round(pos, 2), nil
}
