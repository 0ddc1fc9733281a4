// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package export

import (
	"fmt"
	"io"
	"os"

	"github.com/potorocd/WESPE-data-viewer/binning"
	"github.com/potorocd/WESPE-data-viewer/demap"

	"github.com/astrogo/fitsio"
)

// TimeExtension names the image extension holding the active time
// coordinates, which need not be evenly spaced.
const TimeExtension = "TIMEAXIS"

// WriteMapFITS writes m as a 64 bit float image with energy along NAXIS1
// and time along NAXIS2.
func WriteMapFITS(w io.Writer, m *demap.Map) error {
	if m.Empty() {
		return demap.ErrEmptyMap
	}
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()

	energy := m.EnergyCoords()
	times := m.TimeCoords()
	eDelta := m.EnergyStep
	if len(energy) > 1 {
		eDelta = energy[1] - energy[0]
	}
	units := "counts"
	if m.Normalized || m.Kind == demap.DifferenceMap {
		units = "a.u."
	}

	img := fitsio.NewImage(-64, []int{m.Cols(), m.Rows()})
	defer img.Close()
	err = img.Header().Append(
		fitsio.Card{Name: "OBJECT", Value: m.Name},
		fitsio.Card{Name: "MAPTYPE", Value: m.Kind.String()},
		fitsio.Card{Name: "BUNIT", Value: units},
		fitsio.Card{Name: "CTYPE1", Value: m.EnergyLabel.String()},
		fitsio.Card{Name: "CUNIT1", Value: demap.EnergyUnits},
		fitsio.Card{Name: "CRPIX1", Value: 1.0},
		fitsio.Card{Name: "CRVAL1", Value: energy[0]},
		fitsio.Card{Name: "CDELT1", Value: binning.RoundToStep(eDelta, m.EnergyStep)},
		fitsio.Card{Name: "CTYPE2", Value: m.TimeLabel.String()},
		fitsio.Card{Name: "CUNIT2", Value: m.TimeUnits()},
		fitsio.Card{Name: "CRPIX2", Value: 1.0},
		fitsio.Card{Name: "CRVAL2", Value: times[0]},
		fitsio.Card{Name: "CDELT2", Value: binning.StepOf(times), Comment: "median spacing, see " + TimeExtension},
		fitsio.Card{Name: "ESTEP", Value: m.EnergyStep, Comment: "energy bin [eV]"},
		fitsio.Card{Name: "TSTEP", Value: m.TimeStep, Comment: "time bin [" + m.TimeUnits() + "]"},
		fitsio.Card{Name: "NORMED", Value: m.Normalized},
		fitsio.Card{Name: "MERGEOK", Value: m.MergeOK},
	)
	if err != nil {
		return err
	}
	if m.HasT0 {
		if err := img.Header().Append(fitsio.Card{Name: "T0", Value: m.T0, Comment: "time zero [ps]"}); err != nil {
			return err
		}
	}
	if err := img.Write(m.Values); err != nil {
		return err
	}
	if err := f.Write(img); err != nil {
		return err
	}

	ax := fitsio.NewImage(-64, []int{len(times)})
	defer ax.Close()
	if err := ax.Header().Append(fitsio.Card{Name: "EXTNAME", Value: TimeExtension}); err != nil {
		return err
	}
	if err := ax.Write(times); err != nil {
		return err
	}
	return f.Write(ax)
}

// WriteMapFITSFile writes m to a new file at path.
func WriteMapFITSFile(path string, m *demap.Map) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteMapFITS(out, m); err != nil {
		out.Close()
		return fmt.Errorf("fits export of %s: %w", m.Name, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Map written to %s", path), "module", "export")
	return nil
}
