// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const runFileSuffix = "_energy.mat"

var ErrScheme = errors.New("bad url scheme")

// RunFileName is the base name of the file holding one run.
func RunFileName(run int) string {
	return strconv.Itoa(run) + runFileSuffix
}

// parseRunFile returns the run number of a run file name.
func parseRunFile(name string) (int, bool) {
	base, ok := strings.CutSuffix(path.Base(name), runFileSuffix)
	if !ok {
		return 0, false
	}
	run, err := strconv.Atoi(base)
	return run, err == nil
}

// location splits a run directory given as a bare path, file:// or gs:// URL.
func location(urlString string) (scheme, host, dir string, err error) {
	u, err := url.Parse(urlString)
	if err != nil {
		return "", "", "", err
	}
	switch u.Scheme {
	case "":
		return "file", "", filepath.Clean(urlString), nil
	case "file":
		return "file", "", filepath.Clean(fmt.Sprintf("%v/%v", u.Host, strings.TrimLeft(u.Path, "/"))), nil
	case "gs":
		return "gs", u.Host, strings.TrimLeft(u.Path, "/"), nil
	}
	return "", "", "", fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
}

// ListRuns returns the sorted numbers of the runs stored at urlString.
func ListRuns(ctx context.Context, urlString, credentials string) (runs []int, err error) {
	scheme, host, dir, err := location(urlString)
	if err != nil {
		return nil, err
	}

	var names []string
	switch scheme {
	case "gs":
		names, err = listGcsObjects(ctx, host, dir, []byte(credentials))
	case "file":
		names, err = filepath.Glob(filepath.Join(dir, "*"+runFileSuffix))
	}
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if run, ok := parseRunFile(name); ok {
			runs = append(runs, run)
		}
	}
	slices.Sort(runs)
	return runs, nil
}

// Stage makes the files of runs readable below a local directory and returns
// that directory. Local directories are returned as they are; gs:// objects
// are downloaded into staging.
func Stage(ctx context.Context, urlString, credentials string, runs []int, staging string) (string, error) {
	scheme, host, dir, err := location(urlString)
	if err != nil {
		return "", err
	}
	if scheme == "file" {
		return dir, nil
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", err
	}
	names := make([]string, len(runs))
	for i, run := range runs {
		names[i] = RunFileName(run)
	}
	if err := downloadGcsObjects(ctx, host, dir, names, staging, []byte(credentials)); err != nil {
		return "", err
	}
	return staging, nil
}
