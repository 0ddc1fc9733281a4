// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"
)

// DefaultSigmas is the outlier cut applied before maps are built.
const DefaultSigmas = 3

type BunchType int

const (
	MacroBunch BunchType = iota
	MicroBunch
)

func (t BunchType) String() string {
	switch t {
	case MacroBunch:
		return "MacroBunch"
	case MicroBunch:
		return "MicroBunch"
	default:
		return "Unknown"
	}
}

// BunchRange selects the events to retain. For macrobunches Min and Max are
// percentages of the observed macrobunch id span; for microbunches they are
// absolute ids. The order of Min and Max does not matter.
type BunchRange struct {
	Type     BunchType
	Min, Max float64
}

var ErrInvalidRange = errors.New("invalid bunch range")

// RemoveOutliers drops every event whose energy or time lies more than
// nSigma population standard deviations away from that field's mean. Both
// statistics are taken on the input set before anything is removed.
func RemoveOutliers(ev *EventSet, nSigma float64) int {
	if ev.Len() == 0 {
		return 0
	}
	eMean, eStd := stat.PopMeanStdDev(ev.Energy, nil)
	tMean, tStd := stat.PopMeanStdDev(ev.Time, nil)

	keep := make([]bool, ev.Len())
	for i := range keep {
		keep[i] = within(ev.Energy[i], eMean, nSigma*eStd) &&
			within(ev.Time[i], tMean, nSigma*tStd)
	}
	removed := ev.keep(keep)
	logger.Info(
		fmt.Sprintf("%s electrons removed from Run %d as outliers", humanize.Comma(int64(removed)), ev.Run),
		"module", "filter",
	)
	return removed
}

func within(x, mean, dev float64) bool {
	// A constant field has no outliers; the mean of equal values may still
	// differ from them in the last bit.
	if dev == 0 {
		return true
	}
	return x >= mean-dev && x <= mean+dev
}

// FilterBunches drops every event outside the inclusive bunch range.
func FilterBunches(ev *EventSet, r BunchRange) (int, error) {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return 0, fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, r.Min, r.Max)
	}
	lo, hi := math.Min(r.Min, r.Max), math.Max(r.Min, r.Max)

	var ids []float64
	switch r.Type {
	case MacroBunch:
		span := ev.macroMax - ev.macroMin
		lo = ev.macroMin + span*lo/100
		hi = ev.macroMin + span*hi/100
		ids = ev.MacroBunch
		ev.MacroFilter = fmt.Sprintf("%d-%d_Macro_B", int(lo), int(hi))
	case MicroBunch:
		ids = ev.MicroBunch
		ev.MicroFilter = fmt.Sprintf("%d-%d_Micro_B", int(lo), int(hi))
	default:
		return 0, fmt.Errorf("%w: unknown bunch type %d", ErrInvalidRange, r.Type)
	}

	keep := make([]bool, len(ids))
	for i, id := range ids {
		keep[i] = id >= lo && id <= hi
	}
	removed := ev.keep(keep)
	logger.Info(
		fmt.Sprintf("%s filtering: %s electrons removed from Run %d", r.Type, humanize.Comma(int64(removed)), ev.Run),
		"module", "filter",
	)
	return removed, nil
}
