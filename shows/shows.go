// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package shows renders maps and cuts for display.
package shows

import (
	"fmt"
	"image/color"
	"image/png"
	"io"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"
)

// Style sets the canvas size and intensity scale of a figure.
type Style struct {
	Width, Height vg.Length
	// LogScale draws intensities on a base 10 scale.
	LogScale bool
}

var DefaultStyle = Style{Width: 6 * vg.Inch, Height: 4 * vg.Inch}

func (s Style) size() (vg.Length, vg.Length) {
	w, h := s.Width, s.Height
	if w <= 0 {
		w = DefaultStyle.Width
	}
	if h <= 0 {
		h = DefaultStyle.Height
	}
	return w, h
}

func newPlot(title string) *hplot.Plot {
	p := hplot.New()
	p.Title.Text = title
	p.BackgroundColor = color.White
	return p
}

func axisLabel(name, units string) string {
	return fmt.Sprintf("%s (%s)", name, units)
}

func writePNG(w io.Writer, p *hplot.Plot, s Style) error {
	width, height := s.size()
	img := vgimg.New(width, height)
	p.Draw(draw.New(img))
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	return encoder.Encode(w, img.Image())
}

func writeSVG(w io.Writer, p *hplot.Plot, s Style) error {
	width, height := s.size()
	c := vgsvg.New(width, height)
	p.Draw(draw.New(c))
	_, err := c.WriteTo(w)
	return err
}
