// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package logging provides the slog handler used by the command line tools.
// Records print as
//
//	[2006/01/02 15:04:05] [INFO] [batch] Run 44001 loaded
//
// with one bracket per attribute value and the keys dropped.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const TimeLayout = "[2006/01/02 15:04:05]"

type Handler struct {
	level slog.Leveler
	attrs []slog.Attr
	mu    *sync.Mutex
	out   io.Writer
}

func NewHandler(o io.Writer, opts *slog.HandlerOptions) *Handler {
	h := &Handler{out: o, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// New returns a logger writing to o at level.
func New(o io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(o, &slog.HandlerOptions{Level: level}))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		level: h.level,
		attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
		mu:    h.mu,
		out:   h.out,
	}
}

// WithGroup is a no-op, keys are not printed.
func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	strs := []string{r.Time.Format(TimeLayout), "[" + r.Level.String() + "]"}
	add := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		strs = append(strs, "["+a.Value.Resolve().String()+"]")
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)
	strs = append(strs, r.Message)

	b := []byte(strings.Join(strs, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(b)
	return err
}
