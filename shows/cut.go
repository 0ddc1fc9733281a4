// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"fmt"
	"image/color"
	"io"

	"github.com/potorocd/WESPE-data-viewer/cut"
	"github.com/potorocd/WESPE-data-viewer/demap"
	wplot "github.com/potorocd/WESPE-data-viewer/plot"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range pts {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}
	return pts
}

// CutSVG draws every slice of c as a line, followed by the differences and
// the fitted curve when present.
func CutSVG(w io.Writer, c *cut.MapCut, s Style) error {
	p := newPlot(c.Name)
	p.X.Label.Text = axisLabel(c.CoordLabel(), c.CoordUnits())
	units := "counts"
	if c.ArbitraryUnits || c.Normalized || c.Kind == demap.DifferenceMap {
		units = "a.u."
	}
	p.Y.Label.Text = axisLabel("Intensity", units)
	p.X.Tick.Marker = wplot.CoordTicks{N: 5}
	if s.LogScale {
		p.Y.Scale = wplot.LogScale
		p.Y.Tick.Marker = wplot.LogTicks{}
	}
	wplot.Orient(&p.X, c.Axis == demap.TimeAxis && c.EnergyLabel == demap.BindingEnergy)

	for i, sl := range c.Slices {
		l, err := plotter.NewLine(xys(c.Coords, sl.Values))
		if err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1.5)
		p.Add(l)
		label := c.Label(i)
		if !sl.HasData {
			label += " (no data)"
		}
		p.Legend.Add(label, l)
	}
	for i, d := range c.Diffs {
		l, err := plotter.NewLine(xys(c.Coords, d.Values))
		if err != nil {
			return fmt.Errorf("difference %d: %w", i, err)
		}
		l.Color = plotutil.Color(i + 1)
		l.Dashes = plotutil.Dashes(1)
		p.Add(l)
		p.Legend.Add(d.Label, l)
	}
	if f := c.Fit; f != nil {
		l, err := plotter.NewLine(xys(f.XFit, f.YFit))
		if err != nil {
			return fmt.Errorf("fit: %w", err)
		}
		l.Color = color.Black
		l.Dashes = plotutil.Dashes(2)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("Fit: center %g, FWHM %g", f.Center, f.FWHM), l)
	}
	p.Add(hplot.NewGrid())
	p.Legend.Top = true
	return writeSVG(w, p, s)
}
