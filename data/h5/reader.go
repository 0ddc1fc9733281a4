// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package h5 reads WESPE runs stored as MATLAB v7.3 (HDF5) energy files.
package h5

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/potorocd/WESPE-data-viewer/data"

	"gonum.org/v1/hdf5"
)

// EnergyDataset marks the group holding the per-event arrays of a detector.
const EnergyDataset = "energy_Grid_ROI"

var ErrNoEnergyGroup = errors.New("no group with " + EnergyDataset)

// Reader opens <Dir>/<run>_energy.mat.
type Reader struct {
	Dir string
}

func NewReader(dir string) *Reader {
	return &Reader{Dir: dir}
}

// FileName returns the file path of a run.
func (r *Reader) FileName(run int) string {
	return filepath.Join(r.Dir, data.RunFileName(run))
}

func (r *Reader) ReadRun(run int, detector string) (*data.RawRun, error) {
	f, err := hdf5.OpenFile(r.FileName(run), hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	groups, err := energyGroups(f, "/")
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, ErrNoEnergyGroup
	}
	grp := groups[0]
	for _, g := range groups {
		if strings.Contains(g, detector) {
			grp = g
			break
		}
	}

	raw := &data.RawRun{Run: run, Detector: detector}
	fields := []struct {
		name     string
		dst      *[]float64
		required bool
	}{
		{EnergyDataset, &raw.Energy, true},
		{"BAM", &raw.BAM, true},
		{"bunchID", &raw.MacroBunch, true},
		{"microbunchID", &raw.MicroBunch, true},
		{"delay", &raw.Delay, false},
		{"GMDBDA_Electrons", &raw.GMD, false},
		{"mono", &raw.Mono, false},
		{"Pulse_Energy_DiodeBB", &raw.Diode, false},
	}
	for _, fld := range fields {
		v, err := readRow(f, path.Join(grp, fld.name))
		if err != nil {
			if fld.required {
				return nil, &data.LoadError{Run: run, Field: fld.name, Err: fmt.Errorf("%w: %v", data.ErrMissingField, err)}
			}
			continue
		}
		*fld.dst = v
	}

	suffix := detector
	if len(suffix) > 2 {
		suffix = suffix[len(suffix)-2:]
	}
	raw.KineticEnergy, err = readSetpoint(f, "kinenergie", suffix)
	if err != nil {
		return nil, &data.LoadError{Run: run, Field: "kinenergie", Err: err}
	}
	raw.PassEnergy, err = readSetpoint(f, "passenergie", suffix)
	if err != nil {
		return nil, &data.LoadError{Run: run, Field: "passenergie", Err: err}
	}
	return raw, nil
}

// readSetpoint reads a GUI parameter, preferring its per-detector variant.
func readSetpoint(f *hdf5.File, name, suffix string) (float64, error) {
	v, err := readRow(f, "param_backconvert_GUI/"+name+"_"+suffix)
	if err != nil {
		v, err = readRow(f, "param_backconvert_GUI/"+name)
	}
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%s is empty", name)
	}
	return float64(int(v[0])), nil
}

// readRow reads the first row of a dataset stored as rows x columns, which is
// how MATLAB lays out its vectors.
func readRow(f *hdf5.File, name string) ([]float64, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, err
	}
	total := 1
	for _, d := range dims {
		total *= int(d)
	}
	buf := make([]float64, total)
	if total == 0 {
		return buf, nil
	}
	if err := dset.Read(&buf); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(dims) > 1 {
		buf = buf[:dims[len(dims)-1]]
	}
	return buf, nil
}

type container interface {
	NumObjects() (uint, error)
	ObjectNameByIndex(uint) (string, error)
	ObjectTypeByIndex(uint) (hdf5.GType, error)
	OpenGroup(string) (*hdf5.Group, error)
}

// energyGroups lists, depth first, every group holding an EnergyDataset.
func energyGroups(c container, at string) ([]string, error) {
	n, err := c.NumObjects()
	if err != nil {
		return nil, err
	}
	var out []string
	for i := uint(0); i < n; i++ {
		name, err := c.ObjectNameByIndex(i)
		if err != nil {
			return nil, err
		}
		typ, err := c.ObjectTypeByIndex(i)
		if err != nil {
			return nil, err
		}
		switch typ {
		case hdf5.H5G_DATASET:
			if name == EnergyDataset {
				out = append(out, at)
			}
		case hdf5.H5G_GROUP:
			g, err := c.OpenGroup(name)
			if err != nil {
				return nil, err
			}
			sub, err := energyGroups(g, path.Join(at, name))
			g.Close()
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}
