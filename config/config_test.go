// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/potorocd/WESPE-data-viewer/demap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wespe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	opts, err := cfg.BuildOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.EnergyStep != 0.05 || opts.TimeStep != 0.1 || opts.Ordinate != demap.DelayOrdinate || opts.Strategy != demap.Exact {
		t.Fatalf("unexpected defaults %+v", opts)
	}
	if macro, micro := cfg.BunchRanges(); macro != nil || micro != nil {
		t.Fatal("expected no bunch filters by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /data/wespe
runs: [44001, 44002]
energy_step: 0.1
ordinate: MB_ID
map_counting: vectorized
micro_bunch: [0, 20]
energy_axis: binding
roi:
  energy: [100, 120]
cut:
  axis: energy
  positions: ["main", "sb, 1.55"]
  widths: [0.2]
  smooth: {window: 5, order: 2, cycles: 1}
cache:
  enabled: true
  url: sqlite:///tmp/maps.db
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Detector != "DLD4Q" || cfg.TimeStep != 0.1 {
		t.Fatalf("defaults not kept: %q %v", cfg.Detector, cfg.TimeStep)
	}
	if cfg.Output.Dir != "/data/wespe" {
		t.Fatalf("output dir should default to data_dir, got %q", cfg.Output.Dir)
	}
	opts, err := cfg.BuildOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Ordinate != demap.MicroBunchOrdinate || opts.Strategy != demap.Vectorized {
		t.Fatalf("unexpected options %+v", opts)
	}
	if tl, _ := cfg.TimeLabel(); tl != demap.BunchIndex {
		t.Fatalf("stage labeling of a bunch map should be the bunch index, got %v", tl)
	}
	if el, _ := cfg.EnergyLabel(); el != demap.BindingEnergy {
		t.Fatalf("unexpected energy label %v", el)
	}
	_, micro := cfg.BunchRanges()
	if micro == nil || micro.Min != 0 || micro.Max != 20 {
		t.Fatalf("unexpected micro range %+v", micro)
	}
	if a, _ := cfg.Cut.IntegratedAxis(); a != demap.EnergyAxis {
		t.Fatalf("unexpected cut axis %v", a)
	}
	if cfg.Cut.DifMagnification != 1 {
		t.Fatalf("unexpected magnification %v", cfg.Cut.DifMagnification)
	}
	if cfg.Logging.SlogLevel() != slog.LevelDebug {
		t.Fatalf("unexpected level %v", cfg.Logging.SlogLevel())
	}
}

func TestValidate(t *testing.T) {
	for name, edit := range map[string]func(*Config){
		"zero energy step":   func(c *Config) { c.EnergyStep = 0 },
		"negative time step": func(c *Config) { c.TimeStep = -0.1 },
		"ordinate":           func(c *Config) { c.Ordinate = "MB" },
		"counting":           func(c *Config) { c.MapCounting = "fast" },
		"bunch range":        func(c *Config) { c.MacroBunch = []float64{10} },
		"energy axis":        func(c *Config) { c.EnergyAxis = "photon" },
		"t0 axis":            func(c *Config) { c.TimeAxis = "t0" },
		"difference":         func(c *Config) { c.DifferenceMap = true },
		"normalization":      func(c *Config) { c.Normalization = "max" },
		"roi":                func(c *Config) { c.ROI.Time = []float64{5, 1} },
		"degenerate roi":     func(c *Config) { c.ROI.Energy = []float64{100, 100} },
		"cut axis":           func(c *Config) { c.Cut.Axis = "both" },
		"cut approach":       func(c *Config) { c.Cut.Approach = "median" },
		"cut normalization":  func(c *Config) { c.Cut.Normalization = "total_electron" },
		"cut width":          func(c *Config) { c.Cut = Cut{Positions: []string{"main"}, Widths: []float64{-1}, DifMagnification: 1} },
		"zero cut width":     func(c *Config) { c.Cut = Cut{Positions: []string{"main"}, Widths: []float64{0}, DifMagnification: 1} },
		"even window":        func(c *Config) { c.Cut.Smooth = Smooth{Window: 4, Order: 1, Cycles: 1} },
		"magnification":      func(c *Config) { c.Cut.DifMagnification = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			edit(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	cfg := Default()
	t0 := 1328.2
	cfg.T0 = &t0
	cfg.TimeAxis = "t0"
	cfg.DifferenceMap = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("t0 config rejected: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
	if _, err := Load(writeConfig(t, "runs: [1, 2\n")); err == nil {
		t.Fatal("expected yaml error")
	}
	if _, err := Load(writeConfig(t, "energy_step: -1\n")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
