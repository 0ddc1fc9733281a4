// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package demap

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/potorocd/WESPE-data-viewer/binning"
	"github.com/potorocd/WESPE-data-viewer/data"
)

const mono = 110

func makeEvents(t *testing.T, n int, seed int64) (*data.EventSet, data.RunMetadata) {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	raw := &data.RawRun{Run: 44000 + int(seed), Detector: "DLD4Q", KineticEnergy: 100, PassEnergy: 20}
	for i := 0; i < n; i++ {
		raw.Energy = append(raw.Energy, 100+3*rnd.Float64())
		raw.Delay = append(raw.Delay, 1328+0.3*float64(rnd.Intn(10))+0.01*rnd.NormFloat64())
		raw.MacroBunch = append(raw.MacroBunch, float64(i/10))
		raw.MicroBunch = append(raw.MicroBunch, float64(i%40))
		raw.BAM = append(raw.BAM, 0)
		raw.Mono = append(raw.Mono, mono)
	}
	ev, err := data.NewEventSet(raw)
	if err != nil {
		t.Fatal(err)
	}
	return ev, data.Summarize(ev)
}

// newMap builds a delay map on the given coordinates with values in row-major
// order.
func newMap(raw, kinetic []float64, values ...float64) *Map {
	m := &Map{
		Name:       "test",
		Values:     values,
		Kinetic:    kinetic,
		Raw:        raw,
		EnergyStep: 0.1,
		TimeStep:   0.1,
		MergeOK:    true,
	}
	for _, ke := range kinetic {
		m.Binding = append(m.Binding, binning.RoundToStep(data.BindingEnergy(mono, ke), 0.1))
	}
	return m
}

func TestBuildConservesCounts(t *testing.T) {
	ev, md := makeEvents(t, 5000, 1)
	for _, s := range []Strategy{Exact, Vectorized} {
		m, err := Build(ev, md, BuildOptions{EnergyStep: 0.05, TimeStep: 0.1, Strategy: s})
		if err != nil {
			t.Fatal(err)
		}
		if got := m.Total(); got != float64(ev.Len()) {
			t.Fatalf("%v: total %v, want %d", s, got, ev.Len())
		}
		if len(m.Values) != m.Rows()*m.Cols() {
			t.Fatalf("%v: grid is not rectangular", s)
		}
	}
}

func TestBuildStrategiesAgree(t *testing.T) {
	ev, md := makeEvents(t, 3000, 2)
	opts := BuildOptions{EnergyStep: 0.1, TimeStep: 0.1}
	exact, err := Build(ev, md, opts)
	if err != nil {
		t.Fatal(err)
	}
	opts.Strategy = Vectorized
	vec, err := Build(ev, md, opts)
	if err != nil {
		t.Fatal(err)
	}

	if exact.Cols() != vec.Cols() || exact.Kinetic[0] != vec.Kinetic[0] {
		t.Fatalf("energy axes differ: %v vs %v", exact.Kinetic, vec.Kinetic)
	}
	if vec.Rows() <= exact.Rows() {
		t.Fatalf("expected zero-filled time gaps, got %d and %d rows", vec.Rows(), exact.Rows())
	}
	seen := make(map[int]bool)
	for r, tr := range exact.Raw {
		vr := binning.Index(tr, vec.Raw[0], vec.TimeStep)
		if vec.Raw[vr] != tr {
			t.Fatalf("row %v not on vectorized axis", tr)
		}
		seen[vr] = true
		for c := 0; c < exact.Cols(); c++ {
			if exact.At(r, c) != vec.At(vr, c) {
				t.Fatalf("cell (%v, %v): %v vs %v", tr, exact.Kinetic[c], exact.At(r, c), vec.At(vr, c))
			}
		}
	}
	for r := 0; r < vec.Rows(); r++ {
		if seen[r] {
			continue
		}
		for _, v := range vec.Row(r) {
			if v != 0 {
				t.Fatalf("unobserved row %v holds counts", vec.Raw[r])
			}
		}
	}
}

func TestBuildLabels(t *testing.T) {
	ev, md := makeEvents(t, 500, 3)
	m, err := Build(ev, md, BuildOptions{EnergyStep: 0.1, TimeStep: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if m.EnergyLabel != KineticEnergy || m.TimeLabel != DelayStage || !m.MergeOK || m.Normalized {
		t.Fatalf("unexpected attributes %+v", m)
	}
	for i, ke := range m.Kinetic {
		want := binning.RoundToStep(mono-ke-4.5, 0.1)
		if m.Binding[i] != want {
			t.Fatalf("binding %v for kinetic %v, want %v", m.Binding[i], ke, want)
		}
	}
	if m.TimeUnits() != "ps" {
		t.Fatalf("units %q", m.TimeUnits())
	}

	mb, err := Build(ev, md, BuildOptions{EnergyStep: 0.1, TimeStep: 1, Ordinate: MicroBunchOrdinate})
	if err != nil {
		t.Fatal(err)
	}
	if mb.TimeLabel != BunchIndex || mb.TimeUnits() != "u." || mb.Rows() != 40 {
		t.Fatalf("bunch ordinate map: label %v units %q rows %d", mb.TimeLabel, mb.TimeUnits(), mb.Rows())
	}
	if err := mb.SetTimeLabel(DelayStage); !errors.Is(err, ErrLabelUnavailable) {
		t.Fatalf("expected ErrLabelUnavailable, got %v", err)
	}
}

func TestBuildRejectsBadStep(t *testing.T) {
	ev, md := makeEvents(t, 10, 4)
	if _, err := Build(ev, md, BuildOptions{EnergyStep: 0, TimeStep: 0.1}); !errors.Is(err, binning.ErrInvalidStep) {
		t.Fatalf("expected ErrInvalidStep, got %v", err)
	}
}

func TestMergeAdditive(t *testing.T) {
	a := newMap([]float64{1328}, []float64{100}, 5)
	b := newMap([]float64{1328}, []float64{100}, 3)
	c := newMap([]float64{1328}, []float64{100}, 2)

	for _, in := range [][]*Map{{a, b}, {b, a}} {
		m, err := Merge(in)
		if err != nil {
			t.Fatal(err)
		}
		if m.Values[0] != 8 || !m.MergeOK {
			t.Fatalf("merged %v, ok %t", m.Values, m.MergeOK)
		}
	}

	ab, _ := Merge([]*Map{a, b})
	left, err := Merge([]*Map{ab, c})
	if err != nil {
		t.Fatal(err)
	}
	bc, _ := Merge([]*Map{b, c})
	right, err := Merge([]*Map{a, bc})
	if err != nil {
		t.Fatal(err)
	}
	if left.Values[0] != 10 || right.Values[0] != 10 {
		t.Fatalf("not associative: %v vs %v", left.Values, right.Values)
	}
	if a.Values[0] != 5 {
		t.Fatal("input map modified")
	}
}

func TestMergeUnion(t *testing.T) {
	a := newMap([]float64{1, 2}, []float64{10, 11}, 2, 2, 2, 2)
	b := newMap([]float64{2, 3}, []float64{11, 12}, 2, 2, 2, 2)
	m, err := Merge([]*Map{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if !m.MergeOK || m.Rows() != 3 || m.Cols() != 3 {
		t.Fatalf("union shape %dx%d ok %t", m.Rows(), m.Cols(), m.MergeOK)
	}
	want := []float64{
		2, 2, 0,
		2, 4, 2,
		0, 2, 2,
	}
	for i, v := range want {
		if m.Values[i] != v {
			t.Fatalf("union values %v, want %v", m.Values, want)
		}
	}
	if m.Total() != a.Total()+b.Total() {
		t.Fatal("union lost counts")
	}
	if m.Binding[2] != binning.RoundToStep(mono-12-4.5, 0.1) {
		t.Fatalf("binding %v", m.Binding)
	}
}

func TestMergeDropsEmptyRows(t *testing.T) {
	a := newMap([]float64{1, 2, 3}, []float64{10, 11}, 4, 4, 0, 1, 3, 3)
	m, err := Merge([]*Map{a})
	if err != nil {
		t.Fatal(err)
	}
	if m.Rows() != 2 || m.Raw[0] != 1 || m.Raw[1] != 3 {
		t.Fatalf("rows %v", m.Raw)
	}
	if m.Index[0] != 0 || m.Index[1] != 1 {
		t.Fatalf("index %v", m.Index)
	}
	if err := m.SetTimeLabel(RowIndex); err != nil {
		t.Fatal(err)
	}
}

func TestMergeDegenerate(t *testing.T) {
	a := newMap([]float64{1, 2}, []float64{10, 11}, 0, 1, 1, 0)
	m, err := Merge([]*Map{a})
	if err != nil {
		t.Fatal(err)
	}
	if m.MergeOK || !m.Empty() {
		t.Fatalf("expected degenerate merge, got %dx%d ok %t", m.Rows(), m.Cols(), m.MergeOK)
	}
	if _, err := Merge(nil); !errors.Is(err, ErrNoMaps) {
		t.Fatalf("expected ErrNoMaps, got %v", err)
	}
}

func TestMergeReversesEnergy(t *testing.T) {
	a := newMap([]float64{1}, []float64{12, 11, 10}, 1, 2, 3)
	m, err := Merge([]*Map{a})
	if err != nil {
		t.Fatal(err)
	}
	if m.Kinetic[0] != 10 || m.Kinetic[2] != 12 {
		t.Fatalf("kinetic %v", m.Kinetic)
	}
	if m.Binding[0] <= m.Binding[2] {
		t.Fatalf("binding %v", m.Binding)
	}
	if m.Values[0] != 3 || m.Values[2] != 1 {
		t.Fatalf("values %v", m.Values)
	}
}

func TestWithTimeZero(t *testing.T) {
	m := newMap([]float64{4.8, 5.0, 5.3}, []float64{100}, 1, 1, 1)
	z, err := m.WithTimeZero(5.0)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.2, 0, -0.3}
	for i := range want {
		if z.Relative[i] != want[i] {
			t.Fatalf("relative %v, want %v", z.Relative, want)
		}
	}
	if z.TimeLabel != DelayRelativeT0 || m.TimeLabel != DelayStage {
		t.Fatal("time zero labeling not applied to the copy only")
	}
	if err := z.SetTimeLabel(DelayStage); err != nil {
		t.Fatal(err)
	}
	if z.TimeCoords()[0] != 4.8 {
		t.Fatal("switching labels changed coordinates")
	}
}

func TestDiffBaselineIsZero(t *testing.T) {
	raw := []float64{-1, -0.8, -0.6, -0.4, -0.2, 0}
	m := newMap(raw, []float64{10, 11},
		1, 5,
		3, 3,
		2, 7,
		9, 9,
		4, 1,
		0, 8,
	)
	d, err := m.Diff()
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != DifferenceMap || m.Kind != RawMap {
		t.Fatal("kind not set on the result only")
	}
	// baseline window ends at -2.5 * 0.2
	for c := 0; c < d.Cols(); c++ {
		var sum float64
		for r := 0; r < 3; r++ {
			sum += d.At(r, c)
		}
		if math.Abs(sum) > 1e-12 {
			t.Fatalf("baseline column %d does not vanish: %v", c, sum)
		}
	}
	if d.At(3, 0) != 7 || d.At(3, 1) != 4 {
		t.Fatalf("row after baseline %v", d.Row(3))
	}

	flat := newMap([]float64{-4, -3, -2, -1, 0}, []float64{10}, 4, 4, 9, 9, 9)
	fd, err := flat.Diff()
	if err != nil {
		t.Fatal(err)
	}
	for r := 0; r < 2; r++ {
		if fd.At(r, 0) != 0 {
			t.Fatalf("baseline row %d = %v", r, fd.At(r, 0))
		}
	}

	late := newMap([]float64{1, 2, 3}, []float64{10}, 1, 1, 1)
	if _, err := late.Diff(); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("expected ErrNoBaseline, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	m := newMap([]float64{1, 2}, []float64{10, 11}, 1, 2, 3, 5)
	n, err := m.Normalize(ZeroOne)
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := extrema(n.Values)
	if lo != 0 || hi != 1 || !n.Normalized || m.Normalized {
		t.Fatalf("01 normalization %v", n.Values)
	}

	flat := newMap([]float64{1}, []float64{10, 11}, 3, 3)
	fn, err := flat.Normalize(ZeroOne)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range fn.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("degenerate map produced %v", fn.Values)
		}
	}

	sym := newMap([]float64{1, 2}, []float64{10, 11}, -2, 4, 3, -5)
	sn, err := sym.Normalize(MinusOneOne)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-0.4, 0.8, 0.6, -1}
	for i := range want {
		if sn.Values[i] != want[i] {
			t.Fatalf("11 normalization %v, want %v", sn.Values, want)
		}
	}

	tot := newMap([]float64{1, 2, 3}, []float64{10, 11}, 1, 3, 5, 7, 0, 0)
	tn, err := tot.Normalize(TotalElectron)
	if err != nil {
		t.Fatal(err)
	}
	for r := 0; r < 2; r++ {
		sum := tn.At(r, 0) + tn.At(r, 1)
		if math.Abs(sum-16.0/3) > 1e-12 {
			t.Fatalf("row %d sum %v", r, sum)
		}
	}
	if tn.At(2, 0) != 0 || tn.At(2, 1) != 0 {
		t.Fatal("empty row changed")
	}
}

func TestROIOrientation(t *testing.T) {
	m := newMap([]float64{1, 2, 3, 4, 5}, []float64{10, 10.1, 10.2},
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
		13, 14, 15,
	)
	z, err := m.WithTimeZero(3)
	if err != nil {
		t.Fatal(err)
	}
	// relative coordinates run 2, 1, 0, -1, -2
	rel, err := z.ROI(-1, 1, TimeAxis)
	if err != nil {
		t.Fatal(err)
	}
	stage, err := m.ROI(2, 4, TimeAxis)
	if err != nil {
		t.Fatal(err)
	}
	if rel.Rows() != 3 || stage.Rows() != 3 {
		t.Fatalf("rows %d and %d", rel.Rows(), stage.Rows())
	}
	for i := range stage.Values {
		if rel.Values[i] != stage.Values[i] {
			t.Fatalf("relative %v vs stage %v", rel.Values, stage.Values)
		}
	}

	be := m.Clone()
	if err := be.SetEnergyLabel(BindingEnergy); err != nil {
		t.Fatal(err)
	}
	// binding coordinates run 95.5, 95.4, 95.3
	byBE, err := be.ROI(95.4, 95.5, EnergyAxis)
	if err != nil {
		t.Fatal(err)
	}
	byKE, err := m.ROI(10, 10.1, EnergyAxis)
	if err != nil {
		t.Fatal(err)
	}
	if byBE.Cols() != 2 {
		t.Fatalf("binding clip kept %v", byBE.Binding)
	}
	for i := range byKE.Values {
		if byKE.Values[i] != byBE.Values[i] {
			t.Fatalf("kinetic %v vs binding %v", byKE.Values, byBE.Values)
		}
	}

	if _, err := m.ROI(4, 2, TimeAxis); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
	if _, err := m.ROI(2, 2, TimeAxis); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("degenerate bounds: expected ErrInvalidBounds, got %v", err)
	}
	if _, err := m.ROI(math.NaN(), 2, TimeAxis); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
	empty, err := m.ROI(100, 200, TimeAxis)
	if err != nil || !empty.Empty() {
		t.Fatalf("expected empty clip, got %v %v", empty, err)
	}
}

func TestFeaturePosition(t *testing.T) {
	m := newMap([]float64{1, 2, 3}, []float64{10, 10.1, 10.2},
		1, 5, 2,
		1, 6, 2,
		9, 4, 2,
	)
	cases := []struct {
		position string
		axis     Axis
		want     float64
	}{
		{"Main", EnergyAxis, 10.1},
		{"sb", EnergyAxis, 12.51},
		{"sb, 1.5", EnergyAxis, 11.6},
		{"5.123", EnergyAxis, 5.12},
		{"main", TimeAxis, 3},
	}
	for _, c := range cases {
		got, err := FeaturePosition(m, c.position, c.axis)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("FeaturePosition(%q, %v) = %v, want %v", c.position, c.axis, got, c.want)
		}
	}
	if _, err := FeaturePosition(m, "sb, x", EnergyAxis); err == nil {
		t.Fatal("expected parse error")
	}
}
