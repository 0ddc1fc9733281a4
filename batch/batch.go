// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package batch loads a set of runs and reduces them into one combined
// delay-energy map.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/potorocd/WESPE-data-viewer/cache"
	"github.com/potorocd/WESPE-data-viewer/data"
	"github.com/potorocd/WESPE-data-viewer/demap"

	"github.com/google/uuid"
)

var ErrNoRuns = errors.New("no runs requested")

// Run is one loaded run. Events are kept as loaded; every map build works on
// its own filtered copy.
type Run struct {
	Events *data.EventSet
	Meta   data.RunMetadata
}

// Batch is an ordered set of runs sharing one combined map and optionally
// one difference map.
type Batch struct {
	ID       uuid.UUID
	Detector string
	Runs     []Run

	Map     *demap.Map
	DiffMap *demap.Map
}

// Load reads every run. A single failure rejects the whole batch.
func Load(r data.RunReader, runs []int, detector string) (*Batch, error) {
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	b := &Batch{
		ID:       uuid.New(),
		Detector: detector,
	}
	for _, run := range runs {
		ev, md, err := data.Load(r, run, detector)
		if err != nil {
			return nil, err
		}
		b.Runs = append(b.Runs, Run{Events: ev, Meta: md})
	}
	logger.Info(
		fmt.Sprintf("Batch %s: %d runs loaded for %s", b.ID, len(b.Runs), detector),
		"module", "batch",
	)
	return b, nil
}

// Options control how per-run maps are built.
type Options struct {
	Build demap.BuildOptions

	// MacroBunch and MicroBunch are applied before outlier removal when set.
	MacroBunch *data.BunchRange
	MicroBunch *data.BunchRange

	// Sigmas is the outlier cut, data.DefaultSigmas when zero.
	Sigmas float64

	// Cache is consulted for delay ordinate maps when not nil.
	Cache *cache.Cache
}

func (o Options) ops() data.OpArray {
	var ops data.OpArray
	if o.MacroBunch != nil {
		ops = append(ops, data.BunchOp(*o.MacroBunch))
	}
	if o.MicroBunch != nil {
		ops = append(ops, data.BunchOp(*o.MicroBunch))
	}
	return ops
}

// BuildMaps builds one map per run in batch order.
func (b *Batch) BuildMaps(ctx context.Context, opts Options) ([]*demap.Map, error) {
	build := opts.Build
	// bunch index maps always have one row per bunch
	if build.Ordinate == demap.MicroBunchOrdinate {
		build.TimeStep = 1
	}
	if err := build.Validate(); err != nil {
		return nil, err
	}
	sigmas := opts.Sigmas
	if sigmas == 0 {
		sigmas = data.DefaultSigmas
	}
	ops := opts.ops()
	outliers := data.OutlierOp(sigmas)
	if len(ops) > 0 {
		logger.Debug(fmt.Sprintf("Run ops:\n%s", ops.Describe()), "module", "batch")
	}

	maps := make([]*demap.Map, 0, len(b.Runs))
	for _, run := range b.Runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev := run.Events.Clone()
		if err := ops.Run(ev); err != nil {
			return nil, fmt.Errorf("run %d: %w", ev.Run, err)
		}
		key := cache.Key{
			Detector:    ev.Detector,
			Run:         ev.Run,
			EnergyStep:  build.EnergyStep,
			TimeStep:    build.TimeStep,
			Sigmas:      sigmas,
			MacroFilter: ev.MacroFilter,
			MicroFilter: ev.MicroFilter,
		}
		useCache := opts.Cache != nil && build.Ordinate == demap.DelayOrdinate

		if useCache {
			m, err := opts.Cache.Get(ctx, key)
			if err == nil {
				maps = append(maps, m)
				continue
			}
			if !errors.Is(err, cache.ErrMiss) {
				logger.Warn(fmt.Sprintf("Ignoring cached map: %v", err), "module", "batch")
			}
		}

		if err := outliers.Run(ev); err != nil {
			return nil, fmt.Errorf("run %d: %w", ev.Run, err)
		}
		m, err := demap.Build(ev, run.Meta, build)
		if err != nil {
			return nil, err
		}
		if useCache {
			if err := opts.Cache.Put(ctx, key, m); err != nil {
				logger.Warn(fmt.Sprintf("Map of run %d not cached: %v", ev.Run, err), "module", "batch")
			}
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// Combine builds the per-run maps and merges them into b.Map. A previous
// difference map is dropped.
func (b *Batch) Combine(ctx context.Context, opts Options) error {
	maps, err := b.BuildMaps(ctx, opts)
	if err != nil {
		return err
	}
	m, err := demap.Merge(maps)
	if err != nil {
		return err
	}
	if !m.MergeOK {
		logger.Warn(fmt.Sprintf("Batch %s: merge produced an empty map", b.ID), "module", "batch")
	}
	b.Map = m
	b.DiffMap = nil
	return nil
}

// Difference derives b.DiffMap from the current combined map.
func (b *Batch) Difference() error {
	if b.Map == nil {
		return fmt.Errorf("batch %s: no combined map", b.ID)
	}
	d, err := b.Map.Diff()
	if err != nil {
		return err
	}
	b.DiffMap = d
	return nil
}

// Info is the detailed description of every run.
func (b *Batch) Info() string {
	infos := make([]string, len(b.Runs))
	for i, r := range b.Runs {
		infos[i] = r.Meta.Info()
	}
	return "DETAILED INFO:\n\n" + strings.Join(infos, "\n\n")
}

var logger = slog.Default()

func SetLogger(l *slog.Logger) {
	logger = l
}
