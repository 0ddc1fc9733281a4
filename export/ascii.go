// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package export writes maps and cuts to disk as delimited text and FITS.
package export

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/potorocd/WESPE-data-viewer/binning"
	"github.com/potorocd/WESPE-data-viewer/cut"
	"github.com/potorocd/WESPE-data-viewer/demap"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats/scalar"
)

// TimestampLayout names the per-export directory.
const TimestampLayout = "02.01.2006_15-04-05"

const delimiter = "    "

// ASCII writes export directories below Dir/ASCII_output.
type ASCII struct {
	Dir string
	// Now stamps the export directory, time.Now when nil.
	Now func() time.Time
}

func NewASCII(dir string) *ASCII {
	return &ASCII{Dir: dir}
}

func (a *ASCII) target(kind string) (string, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	dir := filepath.Join(a.Dir, "ASCII_output", kind, now().Format(TimestampLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// WriteMap writes Summary.txt and one file per time row of m. runs is the
// run list shown in the summary. The directory written is returned.
func (a *ASCII) WriteMap(m *demap.Map, runs string) (string, error) {
	dir, err := a.target("Maps")
	if err != nil {
		return "", err
	}

	summary := []string{
		"Loaded runs: " + runs,
		fmt.Sprintf("Energy step: %s eV", format(m.EnergyStep)),
		stepLine(m.Ordinate, m.TimeStep),
		fmt.Sprintf("Energy axis: %s (column 1)", m.EnergyLabel),
		fmt.Sprintf("Time axis: %s (file name)", m.TimeLabel),
		"Normalized: " + pyBool(m.Normalized),
	}
	if err := writeLines(filepath.Join(dir, "Summary.txt"), summary); err != nil {
		return "", err
	}

	energy := binning.RoundSlice(m.EnergyCoords(), m.EnergyStep)
	times := m.TimeCoords()
	n := m.Rows()
	for r := 0; r < n; r++ {
		order := r
		if m.TimeLabel == demap.DelayRelativeT0 {
			order = n - 1 - r
		}
		name := fmt.Sprintf("%s_%s %s.dat", pad(order, n), pyFloat(scalar.Round(times[r], 2)), m.TimeUnits())
		if err := writeColumns(filepath.Join(dir, name), energy, m.Row(r)); err != nil {
			return "", err
		}
		logger.Debug("Saved as "+name, "module", "export")
	}
	logger.Info(fmt.Sprintf("Map written to %s (%s files)", dir, humanize.Comma(int64(n+1))), "module", "export")
	return dir, nil
}

// WriteCut writes Summary.txt and one file per slice of c.
func (a *ASCII) WriteCut(c *cut.MapCut, runs string) (string, error) {
	dir, err := a.target("Cuts")
	if err != nil {
		return "", err
	}

	positions := make([]string, len(c.Slices))
	widths := make([]string, len(c.Slices))
	for i, s := range c.Slices {
		positions[i] = pyFloat(s.Position)
		widths[i] = pyFloat(s.Width)
	}
	summary := []string{
		"Loaded runs: " + runs,
		"Cuts across: " + c.Axis.String(),
		fmt.Sprintf("Cut positions: %s %s", strings.Join(positions, ", "), c.Units()),
		fmt.Sprintf("Cut widths: %s %s", strings.Join(widths, ", "), c.Units()),
		"Delay-energy map parameters:",
		fmt.Sprintf("Energy step: %s eV", format(c.EnergyStep)),
		stepLine(c.Ordinate, c.TimeStep),
		"Energy axis: " + c.EnergyLabel.String(),
		"Time axis: " + c.TimeLabel.String(),
	}
	if err := writeLines(filepath.Join(dir, "Summary.txt"), summary); err != nil {
		return "", err
	}

	step := c.EnergyStep
	if c.Axis == demap.EnergyAxis {
		step = c.TimeStep
	}
	coords := binning.RoundSlice(c.Coords, step)
	n := len(c.Slices)
	for i, s := range c.Slices {
		order := i
		if c.TimeLabel == demap.DelayStage {
			order = n - 1 - i
		}
		name := fmt.Sprintf("%s_%s (d%s) %s.dat",
			pad(order, n), pyFloat(scalar.Round(s.Position, 2)), pyFloat(scalar.Round(s.Width, 2)), c.Units())
		if err := writeColumns(filepath.Join(dir, name), coords, s.Values); err != nil {
			return "", err
		}
		logger.Debug("Saved as "+name, "module", "export")
	}
	logger.Info(fmt.Sprintf("Cut written to %s (%s files)", dir, humanize.Comma(int64(n+1))), "module", "export")
	return dir, nil
}

func stepLine(o demap.Ordinate, step float64) string {
	if o == demap.MicroBunchOrdinate {
		return fmt.Sprintf("MicroBunch step: %s u.", format(step))
	}
	return fmt.Sprintf("Delay step: %s ps", format(step))
}

// writeColumns writes coordinate/value pairs, last coordinate first.
func writeColumns(path string, x, y []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for i := len(x) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%.18e%s%.18e\n", x[i], delimiter, y[i])
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeLines(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// pad zero pads i to the number of digits of n.
func pad(i, n int) string {
	return fmt.Sprintf("%0*d", len(strconv.Itoa(n)), i)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// pyFloat always shows a decimal point, 5 as 5.0.
func pyFloat(v float64) string {
	if v == 0 {
		v = 0 // no -0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

var logger = slog.Default()

func SetLogger(l *slog.Logger) {
	logger = l
}
