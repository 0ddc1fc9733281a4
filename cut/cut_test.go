// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package cut

import (
	"errors"
	"math"
	"testing"

	"github.com/potorocd/WESPE-data-viewer/demap"
)

func testMap() *demap.Map {
	return &demap.Map{
		Name:    "Batch",
		Kinetic: []float64{10, 10.1, 10.2},
		Binding: []float64{95.5, 95.4, 95.3},
		Raw:     []float64{1, 2, 3, 4},
		Values: []float64{
			1, 2, 3,
			4, 5, 6,
			7, 8, 9,
			10, 11, 12,
		},
		EnergyStep: 0.1,
		TimeStep:   1,
		MergeOK:    true,
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEffectiveWidths(t *testing.T) {
	cases := []struct {
		n      int
		widths []float64
		want   []float64
	}{
		{3, []float64{0.5}, []float64{0.5, 0.5, 0.5}},
		{3, []float64{1, 2}, []float64{1, 2, 2}},
		{2, nil, []float64{DefaultWidth, DefaultWidth}},
		{1, []float64{3, 4}, []float64{3}},
	}
	for _, c := range cases {
		got, err := EffectiveWidths(c.n, c.widths)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("EffectiveWidths(%d, %v) = %v", c.n, c.widths, got)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("EffectiveWidths(%d, %v) = %v, want %v", c.n, c.widths, got, c.want)
			}
		}
	}
	for _, bad := range [][]float64{{-1}, {0}, {0.5, 0}, {math.NaN()}} {
		if _, err := EffectiveWidths(2, bad); !errors.Is(err, ErrInvalidWidth) {
			t.Fatalf("EffectiveWidths(2, %v): expected ErrInvalidWidth, got %v", bad, err)
		}
	}
	if _, err := Extract(testMap(), []float64{1.5}, []float64{0}, demap.TimeAxis, Mean); !errors.Is(err, ErrInvalidWidth) {
		t.Fatalf("zero width band: expected ErrInvalidWidth, got %v", err)
	}
}

func TestExtractTimeBands(t *testing.T) {
	c, err := Extract(testMap(), []float64{1.5, 4, 40}, []float64{1}, demap.TimeAxis, Mean)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Slices) != 3 || len(c.Coords) != 3 || c.Coords[0] != 10 {
		t.Fatalf("unexpected cut %+v", c)
	}
	want := []float64{2.5, 3.5, 4.5}
	for i, v := range c.Slices[0].Values {
		if v != want[i] {
			t.Fatalf("mean band %v, want %v", c.Slices[0].Values, want)
		}
	}
	if !c.Slices[1].HasData || c.Slices[1].Values[2] != 12 {
		t.Fatalf("single row band %+v", c.Slices[1])
	}
	if c.Slices[2].HasData {
		t.Fatal("band outside the map reported data")
	}
	for _, v := range c.Slices[2].Values {
		if v != 0 {
			t.Fatal("no-data slice not zero filled")
		}
	}
	if c.VarName() != "T" || c.Units() != "ps" || c.CoordUnits() != "eV" {
		t.Fatalf("axis bookkeeping %s %s %s", c.VarName(), c.Units(), c.CoordUnits())
	}
	if c.Label(0) != "T: 1.5 ps (d1)" {
		t.Fatalf("label %q", c.Label(0))
	}
}

func TestExtractEnergyBandsSum(t *testing.T) {
	m := testMap()
	if err := m.SetEnergyLabel(demap.BindingEnergy); err != nil {
		t.Fatal(err)
	}
	c, err := Extract(m, []float64{95.45}, []float64{0.2}, demap.EnergyAxis, Sum)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{3, 9, 15, 21}
	for i, v := range c.Slices[0].Values {
		if v != want[i] {
			t.Fatalf("sum band %v, want %v", c.Slices[0].Values, want)
		}
	}
	if c.Coords[3] != 4 || c.VarName() != "E" {
		t.Fatalf("coords %v var %s", c.Coords, c.VarName())
	}

	// the cut owns its data
	c.Slices[0].Values[0] = -1
	c.Coords[0] = -1
	if m.Values[0] != 1 || m.Raw[0] != 1 {
		t.Fatal("cut shares storage with the map")
	}

	if _, err := Extract(m, nil, nil, demap.EnergyAxis, Sum); !errors.Is(err, ErrNoPositions) {
		t.Fatalf("expected ErrNoPositions, got %v", err)
	}
}

func cutOf(values ...[]float64) *MapCut {
	c := &MapCut{Axis: demap.TimeAxis}
	for i, v := range values {
		c.Coords = make([]float64, len(v))
		c.Slices = append(c.Slices, Slice{Position: float64(i), Values: v, HasData: true})
	}
	return c
}

func TestNorm11Global(t *testing.T) {
	c := cutOf([]float64{-2, 4}, []float64{3, -5})
	c.Norm11()
	want := [][]float64{{-0.4, 0.8}, {0.6, -1}}
	for i := range want {
		for j := range want[i] {
			if c.Slices[i].Values[j] != want[i][j] {
				t.Fatalf("slice %d = %v, want %v", i, c.Slices[i].Values, want[i])
			}
		}
	}
	if !c.ArbitraryUnits {
		t.Fatal("arbitrary units not set")
	}
}

func TestNorm01Global(t *testing.T) {
	c := cutOf([]float64{1, 3}, []float64{5, 2})
	c.Norm01()
	if c.Slices[0].Values[0] != 0 || c.Slices[1].Values[0] != 1 || c.Slices[0].Values[1] != 0.5 {
		t.Fatalf("normalized %v %v", c.Slices[0].Values, c.Slices[1].Values)
	}

	flat := cutOf([]float64{2, 2})
	flat.Norm01()
	if flat.Slices[0].Values[0] != 0 {
		t.Fatalf("flat cut %v", flat.Slices[0].Values)
	}
}

func TestSavGol(t *testing.T) {
	h, err := SavGolCoeffs(5, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-3.0 / 35, 12.0 / 35, 17.0 / 35, 12.0 / 35, -3.0 / 35}
	for i := range want {
		if !near(h[i], want[i]) {
			t.Fatalf("coefficients %v, want %v", h, want)
		}
	}

	// a quadratic is reproduced away from the edges
	v := make([]float64, 9)
	for i := range v {
		v[i] = float64(i * i)
	}
	c := cutOf(v)
	if err := c.Smooth(5, 2, 2); err != nil {
		t.Fatal(err)
	}
	if !near(c.Slices[0].Values[4], 16) {
		t.Fatalf("smoothed %v", c.Slices[0].Values)
	}

	for _, w := range [][2]int{{4, 1}, {3, 3}, {0, 0}} {
		if _, err := SavGolCoeffs(w[0], w[1]); !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("window %v: expected ErrInvalidWindow, got %v", w, err)
		}
	}
}

func TestDerivative(t *testing.T) {
	c := cutOf([]float64{5, 3, 0})
	c.Derivative()
	want := []float64{2, 2.5, 3}
	for i := range want {
		if c.Slices[0].Values[i] != want[i] {
			t.Fatalf("derivative %v, want %v", c.Slices[0].Values, want)
		}
	}
	if !c.ArbitraryUnits {
		t.Fatal("arbitrary units not set")
	}
}

func TestDifference(t *testing.T) {
	c := cutOf([]float64{1, 1}, []float64{2, 4}, []float64{0, 1})
	c.Difference(2)
	if len(c.Diffs) != 2 || len(c.Slices) != 3 {
		t.Fatalf("diffs %d slices %d", len(c.Diffs), len(c.Slices))
	}
	if c.Diffs[0].Values[1] != 6 || c.Diffs[1].Values[0] != -2 {
		t.Fatalf("diffs %+v", c.Diffs)
	}
	if c.Diffs[0].Label != "Difference T2-T1 x 2" {
		t.Fatalf("label %q", c.Diffs[0].Label)
	}
	c.Difference(1)
	if c.Diffs[1].Label != "Difference T3-T1" || c.Diffs[1].Values[0] != -1 {
		t.Fatalf("unscaled diff %+v", c.Diffs[1])
	}
}

func TestWaterfall(t *testing.T) {
	c := cutOf([]float64{0, 5, 0}, []float64{1, 1, 1}, []float64{2, 0, 0})
	c.Waterfall(0)
	for i := 1; i < len(c.Slices); i++ {
		for j, v := range c.Slices[i].Values {
			if v < c.Slices[i-1].Values[j]-1e-12 {
				t.Fatalf("slice %d dips below its predecessor: %v", i, c.Slices)
			}
		}
	}
	// 1 needs +4, then 2 needs +5 over the lifted 1
	if c.Slices[1].Values[1] != 5 || c.Slices[2].Values[2] != 5 {
		t.Fatalf("lifted %v %v", c.Slices[1].Values, c.Slices[2].Values)
	}

	o := cutOf([]float64{0, 1}, []float64{0, 1})
	o.Waterfall(0.5)
	if o.Slices[1].Values[0] != 0.5 {
		t.Fatalf("offset %v", o.Slices[1].Values)
	}
}

func TestFaddeevaOrigin(t *testing.T) {
	if w := faddeeva(0); !near(real(w), 1) || !near(imag(w), 0) {
		t.Fatalf("w(0) = %v", w)
	}
	// w(iy) for large y tends to 1/(sqrt(pi) y)
	if w := faddeeva(complex(0, 20)); math.Abs(real(w)-1/(math.SqrtPi*20)) > 1e-4 {
		t.Fatalf("w(20i) = %v", w)
	}
}

type fakeSolver struct {
	init, lower, upper []float64
	err                error
	panic              bool
}

func (f *fakeSolver) Minimize(_ func([]float64) float64, init, lower, upper []float64) ([]float64, error) {
	if f.panic {
		panic("singular")
	}
	f.init, f.lower, f.upper = init, lower, upper
	if f.err != nil {
		return nil, f.err
	}
	return append([]float64(nil), init...), nil
}

func peakCut() *MapCut {
	c := &MapCut{Axis: demap.TimeAxis}
	v := make([]float64, 0, 41)
	for i := 0; i <= 40; i++ {
		x := -2 + 0.1*float64(i)
		c.Coords = append(c.Coords, x)
		v = append(v, Voigt(x, []float64{1, 0.3, 0.15, 0.1, 0.05}))
	}
	c.Slices = []Slice{{Values: v, HasData: true}}
	return c
}

func TestFitGuesses(t *testing.T) {
	c := peakCut()
	s := &fakeSolver{}
	res, err := c.FitPeak(s)
	if err != nil {
		t.Fatal(err)
	}
	step := 0.1
	if !near(s.init[ParCenter], 0.3) || !near(s.init[ParSigma], 2*step) || !near(s.init[ParGamma], 2*step) {
		t.Fatalf("init %v", s.init)
	}
	if !near(s.lower[ParSigma], step) || !near(s.upper[ParGamma], 200*step) {
		t.Fatalf("width bounds %v %v", s.lower, s.upper)
	}
	if !near(s.lower[ParCenter], -2) || !near(s.upper[ParCenter], 2) {
		t.Fatalf("center bounds %v %v", s.lower, s.upper)
	}
	a := s.init[ParAmplitude]
	if !near(s.lower[ParAmplitude], a/10) || !near(s.upper[ParAmplitude], 100*a) {
		t.Fatalf("amplitude bounds %v %v", s.lower, s.upper)
	}
	if s.lower[ParBackground] > s.init[ParBackground] || s.upper[ParBackground] < s.init[ParBackground] {
		t.Fatalf("background guess outside bounds")
	}
	if len(res.XFit) < 390 || res.XFit[0] != -2 || c.Fit != res {
		t.Fatalf("resampled curve of %d points", len(res.XFit))
	}
}

func TestFitFailure(t *testing.T) {
	c := peakCut()
	if _, err := c.FitPeak(&fakeSolver{err: errors.New("no progress")}); !errors.Is(err, ErrNotConverged) {
		t.Fatalf("expected ErrNotConverged, got %v", err)
	}
	if c.Fit != nil {
		t.Fatal("fit set after failure")
	}
	_, err := c.FitPeak(&fakeSolver{panic: true})
	if !errors.Is(err, ErrSolverFault) || errors.Is(err, ErrNotConverged) {
		t.Fatalf("expected ErrSolverFault after panic, got %v", err)
	}
	if c.Fit != nil {
		t.Fatal("fit set after solver fault")
	}
}

func TestFitNelderMead(t *testing.T) {
	c := peakCut()
	res, err := c.FitPeak(NelderMead{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Center-0.3) > 0.02 {
		t.Fatalf("center %v", res.Center)
	}
	if want := VoigtFWHM(0.15, 0.1); math.Abs(res.FWHM-want) > 0.05 {
		t.Fatalf("fwhm %v, want %v", res.FWHM, want)
	}
}
