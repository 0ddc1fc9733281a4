// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package batch

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	regionSpread = 5.0
	monoSpread   = 0.15
)

// Summary is the short consistency report of a batch.
type Summary struct {
	// RunLabel is "Uploaded run: N" or "Uploaded runs: ...".
	RunLabel string
	// Runs is RunLabel without its prefix.
	Runs string

	StaticCheck string
	RegionCheck string
	MonoCheck   string

	// EnergyThreshold bounds plausible energy coordinates.
	EnergyThreshold float64
	// StaticCuts holds the mean raw time of every static run, usable as cut
	// positions.
	StaticCuts []float64
}

func (b *Batch) Summary() Summary {
	var (
		runs   []int
		static []bool
		ke     []float64
		mono   []float64
		s      Summary
	)
	for _, r := range b.Runs {
		runs = append(runs, r.Meta.Run)
		static = append(static, r.Meta.Static)
		ke = append(ke, r.Meta.KineticEnergy)
		mono = append(mono, r.Meta.MonoMean)
		if r.Meta.Static {
			s.StaticCuts = append(s.StaticCuts, stat.Mean(r.Events.Time, nil))
		}
	}
	if len(runs) == 0 {
		return s
	}
	slices.Sort(runs)

	switch {
	case len(runs) == 1:
		s.Runs = strconv.Itoa(runs[0])
		s.RunLabel = "Uploaded run: " + s.Runs
	case len(runs) > 6:
		s.Runs = fmt.Sprintf("%d-%d", runs[0], runs[len(runs)-1])
		s.RunLabel = "Uploaded runs: " + s.Runs
	default:
		strs := make([]string, len(runs))
		for i, r := range runs {
			strs[i] = strconv.Itoa(r)
		}
		s.Runs = strings.Join(strs, ", ")
		s.RunLabel = "Uploaded runs: " + s.Runs
	}

	switch {
	case !slices.Contains(static, false):
		s.StaticCheck = "Static check: All runs are static (+)"
	case !slices.Contains(static, true):
		s.StaticCheck = "Static check: All runs are delay scans (+)"
	default:
		s.StaticCheck = "Static check: Delay scans are mixed with static scans (!!!)"
	}

	if floats.Max(ke)-floats.Min(ke) > regionSpread {
		s.RegionCheck = "Region check: Various energy regions are on the list (!!!)"
	} else {
		s.RegionCheck = "Region check: Homogeneous energy regions (+)"
	}

	if floats.Max(mono)-floats.Min(mono) > monoSpread {
		s.MonoCheck = "Mono check: Various mono values for different runs (!!!)"
	} else {
		s.MonoCheck = "Mono check: No mono energy jumps detected (+)"
	}

	s.EnergyThreshold = floats.Max(mono) + 50
	if s.EnergyThreshold < 50 {
		s.EnergyThreshold = 1000
	}
	return s
}

func (s Summary) String() string {
	lines := []string{"SHORT SUMMARY:", s.RunLabel, s.StaticCheck, s.RegionCheck, s.MonoCheck}
	return strings.Join(lines, "\n")
}
