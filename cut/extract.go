// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package cut derives one-dimensional slices from delay-energy maps and
// post-processes them.
package cut

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/potorocd/WESPE-data-viewer/demap"
)

var (
	ErrNoPositions  = errors.New("no cut positions")
	ErrInvalidWidth = errors.New("invalid cut width")
)

// DefaultWidth is used when no width is given at all.
const DefaultWidth = 0.5

type Aggregation int

const (
	Mean Aggregation = iota
	Sum
)

func (a Aggregation) String() string {
	if a == Sum {
		return "sum"
	}
	return "mean"
}

func ParseAggregation(s string) (Aggregation, error) {
	switch s {
	case "", "mean":
		return Mean, nil
	case "sum":
		return Sum, nil
	}
	return Mean, fmt.Errorf("unknown cut approach %q", s)
}

// Slice is one band of a map collapsed along the integrated axis.
type Slice struct {
	Position float64
	Width    float64
	Values   []float64
	// HasData is false when the band held no valid samples and Values was
	// zero filled.
	HasData bool
}

// Difference is a slice minus the first slice of the cut.
type Difference struct {
	Label  string
	Values []float64
}

// MapCut holds slices sharing one coordinate array. It does not refer back
// to the map it was taken from.
type MapCut struct {
	Name string
	// Axis is the integrated axis; positions and widths are on it.
	Axis        demap.Axis
	Aggregation Aggregation

	Coords []float64
	Slices []Slice
	Diffs  []Difference

	EnergyLabel demap.EnergyLabel
	TimeLabel   demap.TimeLabel
	Ordinate    demap.Ordinate
	Kind        demap.Kind
	Normalized  bool
	// ArbitraryUnits is set once values no longer are counts.
	ArbitraryUnits bool

	EnergyStep float64
	TimeStep   float64

	Fit *FitResult
}

// EffectiveWidths pads widths to n entries by repeating the last one, or
// DefaultWidth when widths is empty. Extra widths are ignored. Every width
// must be positive.
func EffectiveWidths(n int, widths []float64) ([]float64, error) {
	out := make([]float64, n)
	last := DefaultWidth
	for i := range out {
		if i < len(widths) {
			last = widths[i]
		}
		if math.IsNaN(last) || math.IsInf(last, 0) || last <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWidth, last)
		}
		out[i] = last
	}
	return out, nil
}

// Extract collapses a band of width w around each position on axis into one
// slice over the other axis.
func Extract(m *demap.Map, positions, widths []float64, axis demap.Axis, agg Aggregation) (*MapCut, error) {
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}
	ws, err := EffectiveWidths(len(positions), widths)
	if err != nil {
		return nil, err
	}

	c := &MapCut{
		Name:        m.Name,
		Axis:        axis,
		Aggregation: agg,
		EnergyLabel: m.EnergyLabel,
		TimeLabel:   m.TimeLabel,
		Ordinate:    m.Ordinate,
		Kind:        m.Kind,
		Normalized:  m.Normalized,
		EnergyStep:  m.EnergyStep,
		TimeStep:    m.TimeStep,
	}
	other := demap.EnergyAxis
	if axis == demap.EnergyAxis {
		other = demap.TimeAxis
	}
	c.Coords = append([]float64(nil), m.Coords(other)...)

	for i, pos := range positions {
		band, err := m.ROI(pos-ws[i]/2, pos+ws[i]/2, axis)
		if err != nil {
			return nil, fmt.Errorf("cut at %v: %w", pos, err)
		}
		values, ok := collapse(band, axis, agg)
		if !ok {
			values = make([]float64, len(c.Coords))
			logger.Warn(fmt.Sprintf("No data in %s band %v ± %v", axis, pos, ws[i]/2), "module", "cut")
		}
		c.Slices = append(c.Slices, Slice{Position: pos, Width: ws[i], Values: values, HasData: ok})
	}
	return c, nil
}

// collapse aggregates band along axis, skipping NaN. It reports false when
// no valid value remains.
func collapse(band *demap.Map, axis demap.Axis, agg Aggregation) ([]float64, bool) {
	var n, k int
	at := band.At
	if axis == demap.EnergyAxis {
		n, k = band.Rows(), band.Cols()
	} else {
		n, k = band.Cols(), band.Rows()
		at = func(r, c int) float64 { return band.At(c, r) }
	}

	out := make([]float64, n)
	valid := false
	for i := range out {
		var sum float64
		var cnt int
		for j := 0; j < k; j++ {
			v := at(i, j)
			if math.IsNaN(v) {
				continue
			}
			sum += v
			cnt++
		}
		switch {
		case cnt == 0:
			out[i] = math.NaN()
		case agg == Sum:
			out[i] = sum
			valid = true
		default:
			out[i] = sum / float64(cnt)
			valid = true
		}
	}
	return out, valid
}

// VarName is the short name of the integrated axis variable.
func (c *MapCut) VarName() string {
	if c.Axis == demap.EnergyAxis {
		return "E"
	}
	if c.Ordinate == demap.MicroBunchOrdinate {
		return "MB"
	}
	return "T"
}

// Units returns the units of the integrated axis.
func (c *MapCut) Units() string {
	if c.Axis == demap.EnergyAxis {
		return demap.EnergyUnits
	}
	return c.Ordinate.Units()
}

// CoordUnits returns the units of the shared coordinate array.
func (c *MapCut) CoordUnits() string {
	if c.Axis == demap.EnergyAxis {
		return c.Ordinate.Units()
	}
	return demap.EnergyUnits
}

// CoordLabel names the labeling of the shared coordinate array.
func (c *MapCut) CoordLabel() string {
	if c.Axis == demap.EnergyAxis {
		return c.TimeLabel.String()
	}
	return c.EnergyLabel.String()
}

// Label is the legend text of slice i.
func (c *MapCut) Label(i int) string {
	s := c.Slices[i]
	return fmt.Sprintf("%s: %s %s (d%s)", c.VarName(), format(s.Position), c.Units(), format(s.Width))
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var logger = slog.Default()

func SetLogger(l *slog.Logger) {
	logger = l
}
