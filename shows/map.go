// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"io"
	"math"

	"github.com/potorocd/WESPE-data-viewer/demap"
	wplot "github.com/potorocd/WESPE-data-viewer/plot"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
)

// PlaceholderTitle replaces the heat map of a map that failed to merge.
const PlaceholderTitle = "Delay-energy map could not be merged: check runs and steps"

const paletteSize = 1000

// mapGrid presents m with both coordinates ascending, as the heat map
// expects; the axis orientation is set on the plot instead.
type mapGrid struct {
	m            *demap.Map
	x, y         []float64
	flipX, flipY bool
}

func newMapGrid(m *demap.Map) mapGrid {
	x, y := m.EnergyCoords(), m.TimeCoords()
	return mapGrid{
		m:     m,
		x:     x,
		y:     y,
		flipX: len(x) > 1 && x[0] > x[len(x)-1],
		flipY: len(y) > 1 && y[0] > y[len(y)-1],
	}
}

func (g mapGrid) col(c int) int {
	if g.flipX {
		return len(g.x) - 1 - c
	}
	return c
}

func (g mapGrid) row(r int) int {
	if g.flipY {
		return len(g.y) - 1 - r
	}
	return r
}

func (g mapGrid) Dims() (c, r int)   { return len(g.x), len(g.y) }
func (g mapGrid) Z(c, r int) float64 { return g.m.At(g.row(r), g.col(c)) }
func (g mapGrid) X(c int) float64    { return g.x[g.col(c)] }
func (g mapGrid) Y(r int) float64    { return g.y[g.row(r)] }

// MapPNG draws m as a heat map with energy on X and time on Y. Difference
// maps use a diverging palette centered on zero.
func MapPNG(w io.Writer, m *demap.Map, s Style) error {
	p := newPlot(m.Name)
	if !m.MergeOK || m.Empty() {
		p.Title.Text = PlaceholderTitle
		p.HideAxes()
		return writePNG(w, p, s)
	}
	p.X.Label.Text = axisLabel(m.EnergyLabel.String(), demap.EnergyUnits)
	p.Y.Label.Text = axisLabel(m.TimeLabel.String(), m.TimeUnits())
	p.X.Tick.Marker = wplot.CoordTicks{N: 5}
	p.Y.Tick.Marker = wplot.CoordTicks{N: 5}
	wplot.Orient(&p.X, m.EnergyLabel == demap.BindingEnergy)

	var pal palette.Palette
	if m.Kind == demap.DifferenceMap {
		pal = moreland.SmoothBlueRed().Palette(paletteSize)
	} else {
		pal = moreland.Kindlmann().Palette(paletteSize)
	}
	hm := plotter.NewHeatMap(newMapGrid(m), pal)
	if m.Kind == demap.DifferenceMap {
		a := math.Max(math.Abs(hm.Min), math.Abs(hm.Max))
		hm.Min, hm.Max = -a, a
	}
	if !(hm.Max > hm.Min) {
		hm.Max = hm.Min + 1
	}
	// not rasterized, rows may be unevenly spaced
	p.Add(hm, hplot.NewGrid())
	return writePNG(w, p, s)
}
