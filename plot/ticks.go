// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package plot

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/plot"
)

// CoordTicks places about N labeled ticks on round values with unlabeled
// minor ticks between them.
type CoordTicks struct {
	N int
}

func (t CoordTicks) Ticks(min, max float64) []plot.Tick {
	n := t.N
	if n < 2 {
		n = 4
	}
	if !(max > min) {
		return []plot.Tick{{Value: min, Label: formatTick(min, -1)}}
	}

	tens := math.Pow10(int(math.Floor(math.Log10(max - min))))
	span := (max - min) / tens
	for span < float64(n)-1 {
		tens /= 10
		span = (max - min) / tens
	}

	mult := int(span / float64(n-1))
	switch mult {
	case 7:
		mult = 6
	case 9:
		mult = 8
	}
	major := float64(mult) * tens
	prec := int(math.Max(0, -math.Floor(math.Log10(major))))

	var ticks []plot.Tick
	for v := math.Ceil(min/major) * major; v <= max; v += major {
		r := scalar.Round(v, prec)
		ticks = append(ticks, plot.Tick{Value: r, Label: formatTick(r, -1)})
	}

	minor := major / 2
	switch mult {
	case 3, 6:
		minor = major / 3
	case 5:
		minor = major / 5
	}
	for v := math.Ceil(min/minor) * minor; v <= max; v += minor {
		if !hasTick(ticks, v, minor/10) {
			ticks = append(ticks, plot.Tick{Value: v})
		}
	}
	return ticks
}

func hasTick(ticks []plot.Tick, v, tol float64) bool {
	for _, t := range ticks {
		if t.Label != "" && math.Abs(t.Value-v) < tol {
			return true
		}
	}
	return false
}

// LogTicks labels every decade and marks the 2..9 multiples in between.
type LogTicks struct{}

func (LogTicks) Ticks(min, max float64) []plot.Tick {
	val := math.Pow10(int(Log10Min15(min)))
	max = math.Pow10(int(math.Ceil(Log10Min15(max))))
	var ticks []plot.Tick
	for val < max {
		ticks = append(ticks, plot.Tick{Value: val, Label: formatTick(val, 5)})
		for i := 2; i < 10; i++ {
			ticks = append(ticks, plot.Tick{Value: val * float64(i)})
		}
		val *= 10
	}
	ticks = append(ticks, plot.Tick{Value: val, Label: formatTick(val, 5)})
	return ticks
}

func formatTick(v float64, prec int) string {
	return strconv.FormatFloat(v, 'g', prec, 64)
}
