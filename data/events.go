// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrMissingField   = errors.New("missing required field")
	ErrLengthMismatch = errors.New("event sequences differ in length")
)

// LoadError reports a run whose stored data cannot be admitted.
type LoadError struct {
	Run   int
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("loading run %d: %v", e.Run, e.Err)
	}
	return fmt.Sprintf("loading run %d: field %q: %v", e.Run, e.Field, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// RawRun is what a RunReader hands over for one run. Optional diagnostic
// channels are nil when the file does not carry them; Delay is nil for
// static runs.
type RawRun struct {
	Run      int
	Detector string

	Energy     []float64
	Delay      []float64
	MacroBunch []float64
	MicroBunch []float64

	BAM   []float64
	GMD   []float64
	Mono  []float64
	Diode []float64

	KineticEnergy float64
	PassEnergy    float64
}

// EventSet holds the per-event sequences of one run. All non-nil sequences
// have the same length and filtering removes an index from every one of them.
type EventSet struct {
	Run      int
	Detector string

	Energy     []float64
	Time       []float64
	MacroBunch []float64
	MicroBunch []float64

	BAM   []float64
	GMD   []float64
	Mono  []float64
	Diode []float64

	// Static is set when the run has no delay scan and Time holds the run
	// number for every event.
	Static bool

	KineticEnergy float64
	PassEnergy    float64

	// MacroFilter and MicroFilter label the bunch filters applied so far.
	MacroFilter string
	MicroFilter string

	macroMin, macroMax float64
}

const (
	allMacroLabel = "All_Macro_B"
	allMicroLabel = "All_Micro_B"
)

// NewEventSet validates a raw run and turns it into an EventSet.
func NewEventSet(raw *RawRun) (*EventSet, error) {
	if raw == nil {
		return nil, &LoadError{Err: ErrMissingField}
	}
	required := []struct {
		name string
		seq  []float64
	}{
		{"energy", raw.Energy},
		{"macrobunch", raw.MacroBunch},
		{"microbunch", raw.MicroBunch},
		{"bam", raw.BAM},
	}
	for _, r := range required {
		if len(r.seq) == 0 {
			return nil, &LoadError{Run: raw.Run, Field: r.name, Err: ErrMissingField}
		}
	}

	n := len(raw.Energy)
	ev := &EventSet{
		Run:           raw.Run,
		Detector:      raw.Detector,
		Energy:        clone(raw.Energy),
		MacroBunch:    clone(raw.MacroBunch),
		MicroBunch:    clone(raw.MicroBunch),
		BAM:           clone(raw.BAM),
		GMD:           clone(raw.GMD),
		Mono:          clone(raw.Mono),
		Diode:         clone(raw.Diode),
		KineticEnergy: raw.KineticEnergy,
		PassEnergy:    raw.PassEnergy,
		MacroFilter:   allMacroLabel,
		MicroFilter:   allMicroLabel,
	}
	if raw.Delay == nil {
		ev.Static = true
		ev.Time = make([]float64, n)
		for i := range ev.Time {
			ev.Time[i] = float64(raw.Run)
		}
	} else {
		ev.Time = clone(raw.Delay)
	}

	for name, seq := range ev.sequences() {
		if len(*seq) != n {
			return nil, &LoadError{
				Run:   raw.Run,
				Field: name,
				Err:   fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(*seq), n),
			}
		}
	}

	ev.macroMin = floats.Min(ev.MacroBunch)
	ev.macroMax = floats.Max(ev.MacroBunch)
	return ev, nil
}

// Len returns the number of events.
func (ev *EventSet) Len() int {
	return len(ev.Energy)
}

// Clone returns a deep copy that can be filtered without touching ev.
func (ev *EventSet) Clone() *EventSet {
	c := *ev
	src := ev.sequences()
	for name, seq := range c.sequences() {
		*seq = clone(*src[name])
	}
	return &c
}

// sequences returns every present per-event sequence keyed by name.
func (ev *EventSet) sequences() map[string]*[]float64 {
	seqs := map[string]*[]float64{
		"energy":     &ev.Energy,
		"time":       &ev.Time,
		"macrobunch": &ev.MacroBunch,
		"microbunch": &ev.MicroBunch,
		"bam":        &ev.BAM,
	}
	if ev.GMD != nil {
		seqs["gmd"] = &ev.GMD
	}
	if ev.Mono != nil {
		seqs["mono"] = &ev.Mono
	}
	if ev.Diode != nil {
		seqs["diode"] = &ev.Diode
	}
	return seqs
}

// keep compacts every sequence in place to the events where keep is true and
// returns how many were removed.
func (ev *EventSet) keep(keep []bool) int {
	removed := 0
	for _, k := range keep {
		if !k {
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	for _, seq := range ev.sequences() {
		s := *seq
		j := 0
		for i, v := range s {
			if keep[i] {
				s[j] = v
				j++
			}
		}
		*seq = s[:j]
	}
	return removed
}

func clone(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
