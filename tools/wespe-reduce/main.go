// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/potorocd/WESPE-data-viewer/batch"
	"github.com/potorocd/WESPE-data-viewer/cache"
	"github.com/potorocd/WESPE-data-viewer/config"
	"github.com/potorocd/WESPE-data-viewer/cut"
	"github.com/potorocd/WESPE-data-viewer/data"
	"github.com/potorocd/WESPE-data-viewer/data/h5"
	"github.com/potorocd/WESPE-data-viewer/demap"
	"github.com/potorocd/WESPE-data-viewer/export"
	"github.com/potorocd/WESPE-data-viewer/logging"
	"github.com/potorocd/WESPE-data-viewer/shows"

	"gonum.org/v1/plot/vg"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	cpuProfile = flag.String("cpuprofile", "", "output file for cpu profiling")
)

func printUsage() {
	fmt.Fprintf(os.Stderr,
		`Usage: `+os.Args[0]+` [options]

Builds the combined delay-energy map of a set of WESPE runs, applies the
configured transforms and cuts, and writes the results.

options:
`,
	)
	flag.PrintDefaults()
}

var logger = slog.Default()

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() != 0 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setLoggers(logging.New(os.Stderr, cfg.Logging.SlogLevel()))

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logger.Error("could not create cpu profile file: "+err.Error(), "module", "main")
			os.Exit(1)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error(err.Error(), "module", "main")
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

func setLoggers(l *slog.Logger) {
	slog.SetDefault(l)
	logger = l
	data.SetLogger(l)
	demap.SetLogger(l)
	batch.SetLogger(l)
	cache.SetLogger(l)
	cut.SetLogger(l)
	export.SetLogger(l)
}

func run(ctx context.Context, cfg config.Config) error {
	start := time.Now()

	var credentials string
	if cfg.CredentialsFile != "" {
		bs, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return err
		}
		credentials = string(bs)
	}

	runs := cfg.Runs
	if len(runs) == 0 {
		found, err := data.ListRuns(ctx, cfg.DataDir, credentials)
		if err != nil {
			return err
		}
		runs = found
	}
	staging := cfg.StagingDir
	if staging == "" && strings.HasPrefix(cfg.DataDir, "gs://") {
		tmp, err := os.MkdirTemp("", "wespe-runs-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		staging = tmp
	}
	dir, err := data.Stage(ctx, cfg.DataDir, credentials, runs, staging)
	if err != nil {
		return err
	}

	b, err := batch.Load(h5.NewReader(dir), runs, cfg.Detector)
	if err != nil {
		return err
	}
	summary := b.Summary()
	fmt.Println(summary)
	fmt.Println()
	fmt.Println(b.Info())

	opts, err := batchOptions(ctx, cfg, dir, credentials)
	if err != nil {
		return err
	}
	if opts.Cache != nil {
		defer opts.Cache.Close()
	}
	if err := b.Combine(ctx, opts); err != nil {
		return err
	}

	m, err := transform(b, cfg)
	if err != nil {
		return err
	}

	var c *cut.MapCut
	if len(cfg.Cut.Positions) > 0 && !m.Empty() {
		if c, err = takeCut(m, cfg.Cut); err != nil {
			return err
		}
	}

	if err := write(m, c, summary.Runs, cfg); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Batch %s reduced in %v", b.ID, time.Since(start).Round(time.Millisecond)), "module", "main")
	return nil
}

func batchOptions(ctx context.Context, cfg config.Config, dir, credentials string) (batch.Options, error) {
	build, err := cfg.BuildOptions()
	if err != nil {
		return batch.Options{}, err
	}
	opts := batch.Options{Build: build, Sigmas: cfg.Sigmas}
	opts.MacroBunch, opts.MicroBunch = cfg.BunchRanges()

	if !cfg.Cache.Enabled {
		return opts, nil
	}
	url := cfg.Cache.URL
	if url == "" {
		url = filepath.Join(dir, "cached_maps")
	}
	if opts.Cache, err = cache.Open(ctx, url, credentials); err != nil {
		return opts, fmt.Errorf("cache %s: %w", url, err)
	}
	return opts, nil
}

// transform applies time zero, the difference map, axis labels,
// normalization and the ROI, in that order, and returns the map to export.
func transform(b *batch.Batch, cfg config.Config) (*demap.Map, error) {
	if cfg.T0 != nil {
		m, err := b.Map.WithTimeZero(*cfg.T0)
		if err != nil {
			return nil, err
		}
		b.Map = m
	}
	m := b.Map
	if cfg.DifferenceMap {
		if err := b.Difference(); err != nil {
			return nil, err
		}
		m = b.DiffMap
	}

	el, err := cfg.EnergyLabel()
	if err != nil {
		return nil, err
	}
	tl, err := cfg.TimeLabel()
	if err != nil {
		return nil, err
	}
	if err := m.SetEnergyLabel(el); err != nil {
		return nil, err
	}
	if err := m.SetTimeLabel(tl); err != nil {
		return nil, err
	}

	mode, err := demap.ParseNormalization(cfg.Normalization)
	if err != nil {
		return nil, err
	}
	if m, err = m.Normalize(mode); err != nil {
		return nil, err
	}

	for axis, r := range map[demap.Axis][]float64{demap.TimeAxis: cfg.ROI.Time, demap.EnergyAxis: cfg.ROI.Energy} {
		if len(r) != 2 {
			continue
		}
		if m, err = m.ROI(r[0], r[1], axis); err != nil {
			return nil, err
		}
	}
	if m.Empty() {
		logger.Warn("Map is empty after the region of interest", "module", "main")
	}
	return m, nil
}

func takeCut(m *demap.Map, cfg config.Cut) (*cut.MapCut, error) {
	axis, err := cfg.IntegratedAxis()
	if err != nil {
		return nil, err
	}
	agg, err := cut.ParseAggregation(cfg.Approach)
	if err != nil {
		return nil, err
	}
	positions := make([]float64, len(cfg.Positions))
	for i, p := range cfg.Positions {
		if positions[i], err = demap.FeaturePosition(m, p, axis); err != nil {
			return nil, fmt.Errorf("cut position %q: %w", p, err)
		}
	}

	c, err := cut.Extract(m, positions, cfg.Widths, axis, agg)
	if err != nil {
		return nil, err
	}
	if cfg.Smooth.Cycles > 0 {
		if err := c.Smooth(cfg.Smooth.Window, cfg.Smooth.Order, cfg.Smooth.Cycles); err != nil {
			return nil, err
		}
	}
	if cfg.Derivative {
		c.Derivative()
	}
	switch cfg.Normalization {
	case "01":
		c.Norm01()
	case "11":
		c.Norm11()
	}
	if cfg.Difference {
		c.Difference(cfg.DifMagnification)
	}
	if cfg.Waterfall {
		c.Waterfall(cfg.WaterfallOffset)
	}
	if cfg.Fit {
		if err := fitPeak(c, cut.NelderMead{}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// fitPeak reports a fit that did not converge and keeps the cut without it.
// Any other fit error is returned.
func fitPeak(c *cut.MapCut, s cut.Solver) error {
	_, err := c.FitPeak(s)
	if errors.Is(err, cut.ErrNotConverged) {
		logger.Warn(fmt.Sprintf("Peak fit failed, cut kept without fit: %v", err), "module", "main")
		return nil
	}
	return err
}

func write(m *demap.Map, c *cut.MapCut, runs string, cfg config.Config) error {
	out := cfg.Output
	stamp := time.Now().Format(export.TimestampLayout)

	if out.ASCII {
		a := export.NewASCII(out.Dir)
		if _, err := a.WriteMap(m, runs); err != nil {
			return err
		}
		if c != nil {
			if _, err := a.WriteCut(c, runs); err != nil {
				return err
			}
		}
	}
	if out.FITS && !m.Empty() {
		dir := filepath.Join(out.Dir, "FITS_output")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := export.WriteMapFITSFile(filepath.Join(dir, stamp+"_map.fits"), m); err != nil {
			return err
		}
	}

	style := shows.Style{
		Width:    vg.Length(out.Width) * vg.Inch,
		Height:   vg.Length(out.Height) * vg.Inch,
		LogScale: out.LogScale,
	}
	plots := filepath.Join(out.Dir, "Plots")
	if out.PNG {
		err := create(filepath.Join(plots, stamp+"_map.png"), func(w io.Writer) error {
			return shows.MapPNG(w, m, style)
		})
		if err != nil {
			return err
		}
	}
	if out.SVG && c != nil {
		err := create(filepath.Join(plots, stamp+"_cut.svg"), func(w io.Writer) error {
			return shows.CutSVG(w, c, style)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func create(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("Figure written to "+path, "module", "main")
	return nil
}
