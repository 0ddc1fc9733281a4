// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package demap holds delay-energy maps: two-dimensional histograms with
// time rows and energy columns, each axis carrying several coordinate
// labelings of which exactly one is active.
package demap

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrLabelUnavailable = errors.New("axis labeling unavailable")
	ErrInvalidBounds    = errors.New("invalid bounds")
	ErrNoBaseline       = errors.New("no rows before time zero")
)

type Axis int

const (
	TimeAxis Axis = iota
	EnergyAxis
)

func (a Axis) String() string {
	switch a {
	case TimeAxis:
		return "Time axis"
	case EnergyAxis:
		return "Energy axis"
	default:
		return "Unknown axis"
	}
}

type EnergyLabel int

const (
	KineticEnergy EnergyLabel = iota
	BindingEnergy
)

func (l EnergyLabel) String() string {
	switch l {
	case KineticEnergy:
		return "Kinetic energy"
	case BindingEnergy:
		return "Binding energy"
	default:
		return "Unknown"
	}
}

type TimeLabel int

const (
	DelayStage TimeLabel = iota
	DelayRelativeT0
	BunchIndex
	RowIndex
)

func (l TimeLabel) String() string {
	switch l {
	case DelayStage:
		return "Delay stage values"
	case DelayRelativeT0:
		return "Delay relative t0"
	case BunchIndex:
		return "MicroBunch ID"
	case RowIndex:
		return "Delay index"
	default:
		return "Unknown"
	}
}

// Ordinate is the event quantity binned along the time axis.
type Ordinate int

const (
	DelayOrdinate Ordinate = iota
	MicroBunchOrdinate
)

func (o Ordinate) String() string {
	switch o {
	case DelayOrdinate:
		return "delay"
	case MicroBunchOrdinate:
		return "MB_ID"
	default:
		return "unknown"
	}
}

func ParseOrdinate(s string) (Ordinate, error) {
	switch s {
	case "", "delay":
		return DelayOrdinate, nil
	case "MB_ID":
		return MicroBunchOrdinate, nil
	}
	return DelayOrdinate, fmt.Errorf("unknown ordinate %q", s)
}

// Units of the time axis for this ordinate.
func (o Ordinate) Units() string {
	if o == MicroBunchOrdinate {
		return "u."
	}
	return "ps"
}

type Kind int

const (
	RawMap Kind = iota
	DifferenceMap
)

func (k Kind) String() string {
	if k == DifferenceMap {
		return "Difference map"
	}
	return "Map"
}

const EnergyUnits = "eV"

// Map is a delay-energy histogram. Values is row-major with one row per time
// coordinate. Switching the active labeling never touches Values.
type Map struct {
	Name   string
	Values []float64

	Kinetic  []float64
	Binding  []float64
	Raw      []float64
	Relative []float64
	Index    []float64

	EnergyLabel EnergyLabel
	TimeLabel   TimeLabel

	Ordinate   Ordinate
	Kind       Kind
	Normalized bool
	MergeOK    bool

	EnergyStep float64
	TimeStep   float64
	T0         float64
	HasT0      bool
}

// Rows is the number of time coordinates.
func (m *Map) Rows() int {
	return len(m.Raw)
}

// Cols is the number of energy coordinates.
func (m *Map) Cols() int {
	return len(m.Kinetic)
}

// Empty reports a map with no cells.
func (m *Map) Empty() bool {
	return m.Rows() == 0 || m.Cols() == 0
}

func (m *Map) At(r, c int) float64 {
	return m.Values[r*m.Cols()+c]
}

func (m *Map) Set(r, c int, v float64) {
	m.Values[r*m.Cols()+c] = v
}

// Row returns a view of time row r.
func (m *Map) Row(r int) []float64 {
	n := m.Cols()
	return m.Values[r*n : (r+1)*n]
}

// EnergyCoords returns the active energy labeling.
func (m *Map) EnergyCoords() []float64 {
	if m.EnergyLabel == BindingEnergy {
		return m.Binding
	}
	return m.Kinetic
}

// TimeCoords returns the active time labeling.
func (m *Map) TimeCoords() []float64 {
	switch m.TimeLabel {
	case DelayRelativeT0:
		return m.Relative
	case RowIndex:
		return m.Index
	default:
		return m.Raw
	}
}

// Coords returns the active labeling of an axis.
func (m *Map) Coords(a Axis) []float64 {
	if a == EnergyAxis {
		return m.EnergyCoords()
	}
	return m.TimeCoords()
}

func (m *Map) TimeUnits() string {
	return m.Ordinate.Units()
}

// Step returns the binning step of an axis.
func (m *Map) Step(a Axis) float64 {
	if a == EnergyAxis {
		return m.EnergyStep
	}
	return m.TimeStep
}

// SetEnergyLabel makes l the active energy labeling.
func (m *Map) SetEnergyLabel(l EnergyLabel) error {
	switch l {
	case KineticEnergy:
	case BindingEnergy:
		if len(m.Binding) != m.Cols() {
			return fmt.Errorf("%w: %v", ErrLabelUnavailable, l)
		}
	default:
		return fmt.Errorf("%w: %d", ErrLabelUnavailable, l)
	}
	m.EnergyLabel = l
	return nil
}

// SetTimeLabel makes l the active time labeling.
func (m *Map) SetTimeLabel(l TimeLabel) error {
	ok := false
	switch l {
	case DelayStage:
		ok = m.Ordinate == DelayOrdinate
	case BunchIndex:
		ok = m.Ordinate == MicroBunchOrdinate
	case DelayRelativeT0:
		ok = m.HasT0 && len(m.Relative) == m.Rows()
	case RowIndex:
		ok = len(m.Index) == m.Rows()
	}
	if !ok {
		return fmt.Errorf("%w: %v on %v ordinate", ErrLabelUnavailable, l, m.Ordinate)
	}
	m.TimeLabel = l
	return nil
}

// rawLabel is the labeling of Raw for this map's ordinate.
func (m *Map) rawLabel() TimeLabel {
	if m.Ordinate == MicroBunchOrdinate {
		return BunchIndex
	}
	return DelayStage
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	c := *m
	c.Values = clone(m.Values)
	c.Kinetic = clone(m.Kinetic)
	c.Binding = clone(m.Binding)
	c.Raw = clone(m.Raw)
	c.Relative = clone(m.Relative)
	c.Index = clone(m.Index)
	return &c
}

// Total returns the sum of all cells.
func (m *Map) Total() float64 {
	var sum float64
	for _, v := range m.Values {
		sum += v
	}
	return sum
}

func clone(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

var logger = slog.Default()

func SetLogger(l *slog.Logger) {
	logger = l
}
