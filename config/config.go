// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package config reads the reduction settings from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/potorocd/WESPE-data-viewer/binning"
	"github.com/potorocd/WESPE-data-viewer/cut"
	"github.com/potorocd/WESPE-data-viewer/data"
	"github.com/potorocd/WESPE-data-viewer/demap"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// DataDir holds the run files, a local path or a gs:// URL.
	DataDir         string `yaml:"data_dir"`
	CredentialsFile string `yaml:"credentials_file"`
	// StagingDir receives remote run files, a temporary directory when unset.
	StagingDir string `yaml:"staging_dir"`
	Detector   string `yaml:"detector"`
	// Runs lists the runs to combine, every run in DataDir when empty.
	Runs []int `yaml:"runs"`

	EnergyStep  float64 `yaml:"energy_step"`
	TimeStep    float64 `yaml:"time_step"`
	Ordinate    string  `yaml:"ordinate"`
	MapCounting string  `yaml:"map_counting"`
	Sigmas      float64 `yaml:"outlier_sigmas"`

	// MacroBunch is a percentage range of the macrobunch span, MicroBunch
	// an absolute id range. Empty means no filter.
	MacroBunch []float64 `yaml:"macro_bunch"`
	MicroBunch []float64 `yaml:"micro_bunch"`

	T0            *float64 `yaml:"t0"`
	EnergyAxis    string   `yaml:"energy_axis"`
	TimeAxis      string   `yaml:"time_axis"`
	DifferenceMap bool     `yaml:"difference_map"`
	Normalization string   `yaml:"normalization"`
	ROI           ROI      `yaml:"roi"`

	Cut     Cut     `yaml:"cut"`
	Cache   Cache   `yaml:"cache"`
	Output  Output  `yaml:"output"`
	Logging Logging `yaml:"logging"`
}

// ROI bounds are [low, high] pairs on the active labeling; empty means no
// clipping.
type ROI struct {
	Time   []float64 `yaml:"time"`
	Energy []float64 `yaml:"energy"`
}

type Smooth struct {
	Window int `yaml:"window"`
	Order  int `yaml:"order"`
	Cycles int `yaml:"cycles"`
}

// Cut configures the slices taken from the final map. No cut is taken
// without positions.
type Cut struct {
	// Axis is the axis the positions lie on: "time" or "energy".
	Axis     string `yaml:"axis"`
	Approach string `yaml:"approach"`
	// Positions are numbers or feature names understood by
	// demap.FeaturePosition such as "main" or "sb, 1.55".
	Positions        []string  `yaml:"positions"`
	Widths           []float64 `yaml:"widths"`
	Smooth           Smooth    `yaml:"smooth"`
	Derivative       bool      `yaml:"derivative"`
	Normalization    string    `yaml:"normalization"`
	Difference       bool      `yaml:"difference"`
	DifMagnification float64   `yaml:"dif_magnification"`
	Waterfall        bool      `yaml:"waterfall"`
	WaterfallOffset  float64   `yaml:"waterfall_offset"`
	Fit              bool      `yaml:"fit"`
}

type Cache struct {
	Enabled bool `yaml:"enabled"`
	// URL selects the backend, see cache.Open. Defaults to a directory
	// below the local run directory.
	URL string `yaml:"url"`
}

type Output struct {
	Dir      string  `yaml:"dir"`
	ASCII    bool    `yaml:"ascii"`
	FITS     bool    `yaml:"fits"`
	PNG      bool    `yaml:"png"`
	SVG      bool    `yaml:"svg"`
	LogScale bool    `yaml:"log_scale"`
	Width    float64 `yaml:"width_inch"`
	Height   float64 `yaml:"height_inch"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Default returns the settings used for anything a file leaves out.
func Default() Config {
	return Config{
		Detector:      "DLD4Q",
		EnergyStep:    0.05,
		TimeStep:      0.1,
		Ordinate:      "delay",
		MapCounting:   "classic",
		Sigmas:        data.DefaultSigmas,
		EnergyAxis:    "kinetic",
		TimeAxis:      "stage",
		Normalization: "none",
		Cut: Cut{
			Axis:             "time",
			Approach:         "mean",
			Smooth:           Smooth{Window: 3, Order: 1},
			Normalization:    "none",
			DifMagnification: 1,
		},
		Output: Output{
			ASCII:  true,
			Width:  6,
			Height: 4,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Output.Dir == "" && !strings.Contains(cfg.DataDir, "://") {
		cfg.Output.Dir = cfg.DataDir
	}
	return cfg, cfg.Validate()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate fails on the first setting that cannot be used.
func (c Config) Validate() error {
	if _, err := c.BuildOptions(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Sigmas <= 0 {
		return invalid("outlier_sigmas must be > 0")
	}
	for name, r := range map[string][]float64{"macro_bunch": c.MacroBunch, "micro_bunch": c.MicroBunch} {
		if len(r) != 0 && len(r) != 2 {
			return invalid("%s needs [min, max], got %v", name, r)
		}
	}
	if _, err := c.EnergyLabel(); err != nil {
		return err
	}
	if _, err := c.TimeLabel(); err != nil {
		return err
	}
	if c.TimeAxis == "t0" && c.T0 == nil {
		return invalid("time_axis t0 needs t0")
	}
	if c.DifferenceMap && c.T0 == nil {
		return invalid("difference_map needs t0")
	}
	if _, err := demap.ParseNormalization(c.Normalization); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for name, r := range map[string][]float64{"roi.time": c.ROI.Time, "roi.energy": c.ROI.Energy} {
		if len(r) == 0 {
			continue
		}
		if len(r) != 2 {
			return invalid("%s needs [low, high], got %v", name, r)
		}
		if err := demap.CheckBounds(r[0], r[1]); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
	}
	return c.Cut.validate()
}

func (c Cut) validate() error {
	if _, err := c.IntegratedAxis(); err != nil {
		return err
	}
	if _, err := cut.ParseAggregation(c.Approach); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := demap.ParseNormalization(c.Normalization); err != nil || c.Normalization == "total_electron" {
		return invalid("cut normalization must be none, 01 or 11, got %q", c.Normalization)
	}
	if _, err := cut.EffectiveWidths(len(c.Positions), c.Widths); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Smooth.Cycles > 0 {
		if _, err := cut.SavGolCoeffs(c.Smooth.Window, c.Smooth.Order); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if c.DifMagnification == 0 {
		return invalid("cut.dif_magnification must not be 0")
	}
	if c.WaterfallOffset < 0 {
		return invalid("cut.waterfall_offset must be >= 0")
	}
	return nil
}

// BuildOptions converts the binning settings.
func (c Config) BuildOptions() (demap.BuildOptions, error) {
	o := demap.BuildOptions{EnergyStep: c.EnergyStep, TimeStep: c.TimeStep}
	var err error
	if o.Ordinate, err = demap.ParseOrdinate(c.Ordinate); err != nil {
		return o, err
	}
	if o.Strategy, err = demap.ParseStrategy(c.MapCounting); err != nil {
		return o, err
	}
	if err := binning.CheckStep(c.EnergyStep); err != nil {
		return o, fmt.Errorf("energy_step: %w", err)
	}
	if err := binning.CheckStep(c.TimeStep); err != nil {
		return o, fmt.Errorf("time_step: %w", err)
	}
	return o, nil
}

// BunchRanges returns the configured bunch filters, nil when unset.
func (c Config) BunchRanges() (macro, micro *data.BunchRange) {
	if len(c.MacroBunch) == 2 {
		macro = &data.BunchRange{Type: data.MacroBunch, Min: c.MacroBunch[0], Max: c.MacroBunch[1]}
	}
	if len(c.MicroBunch) == 2 {
		micro = &data.BunchRange{Type: data.MicroBunch, Min: c.MicroBunch[0], Max: c.MicroBunch[1]}
	}
	return macro, micro
}

func (c Config) EnergyLabel() (demap.EnergyLabel, error) {
	switch c.EnergyAxis {
	case "", "kinetic":
		return demap.KineticEnergy, nil
	case "binding":
		return demap.BindingEnergy, nil
	}
	return demap.KineticEnergy, invalid("unknown energy_axis %q", c.EnergyAxis)
}

// TimeLabel maps time_axis to a labeling. "stage" means the raw labeling of
// the ordinate, which is the bunch index for MB_ID maps.
func (c Config) TimeLabel() (demap.TimeLabel, error) {
	switch c.TimeAxis {
	case "", "stage":
		if c.Ordinate == "MB_ID" {
			return demap.BunchIndex, nil
		}
		return demap.DelayStage, nil
	case "t0":
		return demap.DelayRelativeT0, nil
	case "index":
		return demap.RowIndex, nil
	}
	return demap.DelayStage, invalid("unknown time_axis %q", c.TimeAxis)
}

// IntegratedAxis is the axis the cut positions lie on.
func (c Cut) IntegratedAxis() (demap.Axis, error) {
	switch c.Axis {
	case "", "time":
		return demap.TimeAxis, nil
	case "energy":
		return demap.EnergyAxis, nil
	}
	return demap.TimeAxis, invalid("unknown cut.axis %q", c.Axis)
}

// SlogLevel parses logging.level, info when unset or unknown.
func (l Logging) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
