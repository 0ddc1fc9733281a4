// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package demap

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/potorocd/WESPE-data-viewer/binning"
	"github.com/potorocd/WESPE-data-viewer/data"

	"go-hep.org/x/hep/hbook"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
)

var ErrNoEvents = errors.New("no events to bin")

// Strategy selects the counting algorithm of the map builder. Both place an
// event with binning.RoundToStep followed by binning.Index, so neither relies
// on floating point equality between coordinates and event values.
type Strategy int

const (
	// Exact groups events by time bin and only emits observed time rows.
	// Every energy column between the observed extremes is present.
	Exact Strategy = iota
	// Vectorized fills a fixed grid spanning the observed extremes on both
	// axes, so unobserved time rows appear as zero rows.
	Vectorized
)

func (s Strategy) String() string {
	switch s {
	case Exact:
		return "classic"
	case Vectorized:
		return "vectorized"
	default:
		return "unknown"
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "classic":
		return Exact, nil
	case "vectorized":
		return Vectorized, nil
	}
	return Exact, fmt.Errorf("unknown counting strategy %q", s)
}

type BuildOptions struct {
	EnergyStep float64
	TimeStep   float64
	Ordinate   Ordinate
	Strategy   Strategy
}

func (o BuildOptions) Validate() error {
	if err := binning.CheckStep(o.EnergyStep); err != nil {
		return fmt.Errorf("energy step: %w", err)
	}
	if err := binning.CheckStep(o.TimeStep); err != nil {
		return fmt.Errorf("time step: %w", err)
	}
	switch o.Ordinate {
	case DelayOrdinate, MicroBunchOrdinate:
	default:
		return fmt.Errorf("unknown ordinate %d", o.Ordinate)
	}
	switch o.Strategy {
	case Exact, Vectorized:
	default:
		return fmt.Errorf("unknown counting strategy %d", o.Strategy)
	}
	return nil
}

// Build bins a filtered event set into a map with the kinetic energy and raw
// time labelings active.
func Build(ev *data.EventSet, md data.RunMetadata, opts BuildOptions) (*Map, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if ev.Len() == 0 {
		return nil, fmt.Errorf("run %d: %w", ev.Run, ErrNoEvents)
	}
	start := time.Now()

	ordinate := ev.Time
	if opts.Ordinate == MicroBunchOrdinate {
		ordinate = ev.MicroBunch
	}
	tr := binning.RoundSlice(ordinate, opts.TimeStep)
	er := binning.RoundSlice(ev.Energy, opts.EnergyStep)

	m := &Map{
		Name:       fmt.Sprintf("Run %d", ev.Run),
		Kinetic:    binning.Arange(floats.Min(er), floats.Max(er), opts.EnergyStep),
		Ordinate:   opts.Ordinate,
		MergeOK:    true,
		EnergyStep: opts.EnergyStep,
		TimeStep:   opts.TimeStep,
	}
	m.TimeLabel = m.rawLabel()

	switch opts.Strategy {
	case Exact:
		countExact(m, tr, er)
	case Vectorized:
		countVectorized(m, tr, er)
	}

	m.Binding = make([]float64, len(m.Kinetic))
	for i, ke := range m.Kinetic {
		m.Binding[i] = binning.RoundToStep(data.BindingEnergy(md.MonoMean, ke), opts.EnergyStep)
	}

	logger.Info(
		fmt.Sprintf("Run %d done (%s, %dx%d) in %.1f s", ev.Run, opts.Strategy, m.Rows(), m.Cols(), time.Since(start).Seconds()),
		"module", "builder",
	)
	return m, nil
}

func countExact(m *Map, tr, er []float64) {
	tMin := floats.Min(tr)
	eMin := m.Kinetic[0]
	nE := len(m.Kinetic)

	rows := make(map[int][]float64)
	coords := make(map[int]float64)
	for i, t := range tr {
		key := binning.Index(t, tMin, m.TimeStep)
		row, ok := rows[key]
		if !ok {
			row = make([]float64, nE)
			rows[key] = row
			coords[key] = t
		}
		row[binning.Index(er[i], eMin, m.EnergyStep)]++
	}

	keys := maps.Keys(rows)
	slices.Sort(keys)

	m.Raw = make([]float64, len(keys))
	m.Values = make([]float64, 0, len(keys)*nE)
	for i, key := range keys {
		m.Raw[i] = coords[key]
		m.Values = append(m.Values, rows[key]...)
	}
}

func countVectorized(m *Map, tr, er []float64) {
	m.Raw = binning.Arange(floats.Min(tr), floats.Max(tr), m.TimeStep)
	nE, nT := len(m.Kinetic), len(m.Raw)
	eMin, tMin := m.Kinetic[0], m.Raw[0]

	// Bin edges sit half a step around every coordinate, so the bin of a
	// rounded value is binning.Index of it.
	h := hbook.NewH2D(
		nE, eMin-m.EnergyStep/2, eMin+(float64(nE)-0.5)*m.EnergyStep,
		nT, tMin-m.TimeStep/2, tMin+(float64(nT)-0.5)*m.TimeStep,
	)
	for i := range er {
		h.Fill(er[i], tr[i], 1)
	}

	grid := h.GridXYZ()
	m.Values = make([]float64, nT*nE)
	for r := 0; r < nT; r++ {
		for c := 0; c < nE; c++ {
			m.Values[r*nE+c] = grid.Z(c, r)
		}
	}
}
