// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package cache keeps per-run delay-energy maps between sessions so a run
// is binned only once per set of binning and bunch filter parameters.
package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/potorocd/WESPE-data-viewer/demap"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"
)

var (
	ErrMiss    = errors.New("cache miss")
	ErrScheme  = errors.New("bad url scheme")
	ErrCorrupt = errors.New("corrupt cache entry")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Key identifies one cached per-run map.
type Key struct {
	Detector    string
	Run         int
	EnergyStep  float64
	TimeStep    float64
	// Sigmas is the outlier cut applied before binning.
	Sigmas      float64
	MacroFilter string
	MicroFilter string
}

// String is the entry name, e.g.
// 44001_DLD4Q_0.05eV_0.1ps_3sigma_All_Macro_B_0-10_Micro_B.
func (k Key) String() string {
	return fmt.Sprintf("%d_%s_%seV_%sps_%ssigma_%s_%s",
		k.Run, k.Detector,
		strconv.FormatFloat(k.EnergyStep, 'f', -1, 64),
		strconv.FormatFloat(k.TimeStep, 'f', -1, 64),
		strconv.FormatFloat(k.Sigmas, 'f', -1, 64),
		k.MacroFilter, k.MicroFilter,
	)
}

// Store is a flat namespace of named blobs.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	// Load returns ErrMiss for an unknown name.
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, b []byte) error
	Close() error
}

type Cache struct {
	store Store
}

func New(s Store) *Cache {
	return &Cache{store: s}
}

// Open selects a store by URL scheme:
//
//	file:///path/to/dir or a bare path
//	redis://host:port, or redis:// for an embedded server
//	pebble:///path/to/db
//	sqlite:///path/to/file.db
//	gs://bucket/prefix
func Open(ctx context.Context, rawURL, credentials string) (*Cache, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	local := filepath.Clean(fmt.Sprintf("%v/%v", u.Host, strings.TrimLeft(u.Path, "/")))
	if u.Host == "" {
		local = filepath.Clean(u.Path)
	}

	var s Store
	switch u.Scheme {
	case "", "file":
		s, err = NewFileStore(local)
	case "redis":
		s, err = NewRedisStore(u.Host)
	case "pebble":
		s, err = NewPebbleStore(local)
	case "sqlite":
		s, err = NewSQLiteStore(ctx, local)
	case "gs":
		s, err = NewGCSStore(ctx, u.Host, strings.TrimLeft(u.Path, "/"), []byte(credentials))
	default:
		err = fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return New(s), nil
}

func (c *Cache) Has(ctx context.Context, k Key) (bool, error) {
	return c.store.Exists(ctx, k.String())
}

// Get returns the cached map for k or ErrMiss.
func (c *Cache) Get(ctx context.Context, k Key) (*demap.Map, error) {
	b, err := c.store.Load(ctx, k.String())
	if err != nil {
		if errors.Is(err, ErrMiss) {
			logger.Debug(fmt.Sprintf("Miss %s", k), "module", "cache")
		}
		return nil, err
	}
	m, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	logger.Info(fmt.Sprintf("Run %d read from cache (%s)", k.Run, humanize.Bytes(uint64(len(b)))), "module", "cache")
	return m, nil
}

func (c *Cache) Put(ctx context.Context, k Key, m *demap.Map) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, k.String(), b); err != nil {
		return fmt.Errorf("saving %s: %w", k, err)
	}
	logger.Info(fmt.Sprintf("Run %d written to cache (%s)", k.Run, humanize.Bytes(uint64(len(b)))), "module", "cache")
	return nil
}

func (c *Cache) Close() error {
	return c.store.Close()
}

// record is the stored form of a per-run map. Only the raw labelings are
// kept; everything else is derived after loading.
type record struct {
	Name       string    `json:"name"`
	Kinetic    []float64 `json:"kinetic_energy"`
	Binding    []float64 `json:"binding_energy"`
	Delay      []float64 `json:"delay_stage_values"`
	Values     []float64 `json:"values"`
	EnergyStep float64   `json:"energy_step"`
	TimeStep   float64   `json:"time_step"`
	Checksum   uint64    `json:"checksum"`
}

func checksum(values []float64) uint64 {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return xxh3.Hash(buf)
}

// Encode serializes a per-run delay map.
func Encode(m *demap.Map) ([]byte, error) {
	if m.Ordinate != demap.DelayOrdinate {
		return nil, fmt.Errorf("only delay maps are cached, got %v ordinate", m.Ordinate)
	}
	return json.Marshal(record{
		Name:       m.Name,
		Kinetic:    m.Kinetic,
		Binding:    m.Binding,
		Delay:      m.Raw,
		Values:     m.Values,
		EnergyStep: m.EnergyStep,
		TimeStep:   m.TimeStep,
		Checksum:   checksum(m.Values),
	})
}

// Decode restores a map with kinetic energy and delay stage labelings active.
func Decode(b []byte) (*demap.Map, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(r.Values) != len(r.Kinetic)*len(r.Delay) || len(r.Binding) != len(r.Kinetic) {
		return nil, fmt.Errorf("%w: shape %dx%d with %d values", ErrCorrupt, len(r.Delay), len(r.Kinetic), len(r.Values))
	}
	if checksum(r.Values) != r.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return &demap.Map{
		Name:        r.Name,
		Values:      r.Values,
		Kinetic:     r.Kinetic,
		Binding:     r.Binding,
		Raw:         r.Delay,
		EnergyLabel: demap.KineticEnergy,
		TimeLabel:   demap.DelayStage,
		Ordinate:    demap.DelayOrdinate,
		MergeOK:     true,
		EnergyStep:  r.EnergyStep,
		TimeStep:    r.TimeStep,
	}, nil
}

var logger = slog.Default()

func SetLogger(l *slog.Logger) {
	logger = l
}
