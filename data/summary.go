// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"
)

// WorkFunction is subtracted when converting kinetic to binding energy.
const WorkFunction = 4.5

// BindingEnergy converts a kinetic energy with the mean monochromator energy.
func BindingEnergy(mono, kinetic float64) float64 {
	return mono - kinetic - WorkFunction
}

// Stats are rounded to two decimals, as displayed.
type Stats struct {
	Min, Max, Mean float64
}

func summarize(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	return Stats{
		Min:  scalar.Round(floats.Min(xs), 2),
		Max:  scalar.Round(floats.Max(xs), 2),
		Mean: scalar.Round(stat.Mean(xs, nil), 2),
	}
}

// RunMetadata is a snapshot of one EventSet taken at load time. It is not
// refreshed by later filtering.
type RunMetadata struct {
	Run      int
	Detector string
	Static   bool

	Electrons     int
	KineticEnergy float64
	PassEnergy    float64
	MonoMean      float64

	MacroBunches int
	MicroBunches int

	Kinetic Stats
	Binding Stats
	Time    Stats
	GMD     Stats
}

// Summarize computes the metadata of an event set.
func Summarize(ev *EventSet) RunMetadata {
	md := RunMetadata{
		Run:           ev.Run,
		Detector:      ev.Detector,
		Static:        ev.Static,
		Electrons:     ev.Len(),
		KineticEnergy: ev.KineticEnergy,
		PassEnergy:    ev.PassEnergy,
		Kinetic:       summarize(ev.Energy),
		Time:          summarize(ev.Time),
		GMD:           summarize(ev.GMD),
	}
	if len(ev.Mono) > 0 {
		md.MonoMean = scalar.Round(stat.Mean(ev.Mono, nil), 2)
	}
	if len(ev.MacroBunch) > 0 {
		md.MacroBunches = int(floats.Max(ev.MacroBunch) - floats.Min(ev.MacroBunch))
	}
	if len(ev.MicroBunch) > 0 {
		md.MicroBunches = int(floats.Max(ev.MicroBunch))
	}
	md.Binding = Stats{
		Min:  scalar.Round(BindingEnergy(md.MonoMean, md.Kinetic.Max), 2),
		Max:  scalar.Round(BindingEnergy(md.MonoMean, md.Kinetic.Min), 2),
		Mean: scalar.Round(BindingEnergy(md.MonoMean, md.Kinetic.Mean), 2),
	}
	return md
}

// Info renders the detailed per-run description shown on load.
func (md RunMetadata) Info() string {
	lines := []string{
		fmt.Sprintf("Run: %d / Electrons detected: %d", md.Run, md.Electrons),
		fmt.Sprintf("Detector: %s / KE: %g eV / PE: %g eV / Static: %t", md.Detector, md.KineticEnergy, md.PassEnergy, md.Static),
		fmt.Sprintf("FEL mono: %g eV / MacroBunches: %d / MicroBunches: %d", md.MonoMean, md.MacroBunches, md.MicroBunches),
		fmt.Sprintf("Min KE: %g eV / Max KE: %g eV / Mean KE: %g eV", md.Kinetic.Min, md.Kinetic.Max, md.Kinetic.Mean),
		fmt.Sprintf("Min BE: %g eV / Max BE: %g eV / Mean BE: %g eV", md.Binding.Min, md.Binding.Max, md.Binding.Mean),
		fmt.Sprintf("Min delay: %g ps / Max delay: %g ps / Mean delay: %g ps", md.Time.Min, md.Time.Max, md.Time.Mean),
		fmt.Sprintf("Min GMD: %g / Max GMD: %g / Mean GMD: %g", md.GMD.Min, md.GMD.Max, md.GMD.Mean),
	}
	return strings.Join(lines, "\n")
}
