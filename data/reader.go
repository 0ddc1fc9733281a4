// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// RunReader provides the stored arrays of one run for one detector.
type RunReader interface {
	ReadRun(run int, detector string) (*RawRun, error)
}

// Load reads a run and admits it only if every required field is present.
func Load(r RunReader, run int, detector string) (*EventSet, RunMetadata, error) {
	raw, err := r.ReadRun(run, detector)
	if err != nil {
		return nil, RunMetadata{}, &LoadError{Run: run, Err: err}
	}
	ev, err := NewEventSet(raw)
	if err != nil {
		return nil, RunMetadata{}, err
	}
	md := Summarize(ev)
	logger.Info(
		fmt.Sprintf("Run %d loaded: %s electrons, static %t", run, humanize.Comma(int64(md.Electrons)), md.Static),
		"module", "load",
	)
	return ev, md, nil
}

var logger = slog.Default()

func SetLogger(l *slog.Logger) {
	logger = l
}
