// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package cut

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/potorocd/WESPE-data-viewer/binning"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/optimize"
)

var (
	ErrNotConverged = errors.New("fit did not converge")
	ErrSolverFault  = errors.New("solver panicked")
)

// Voigt parameter order used by Solver implementations.
const (
	ParAmplitude = iota
	ParCenter
	ParSigma
	ParGamma
	ParBackground
	nPar
)

// Solver minimizes f within the box [lower, upper] starting from init.
// Infinite bounds leave a parameter free.
type Solver interface {
	Minimize(f func(p []float64) float64, init, lower, upper []float64) ([]float64, error)
}

type FitResult struct {
	// Params is indexed by the Par constants.
	Params []float64
	Center float64
	FWHM   float64
	XFit   []float64
	YFit   []float64
}

// Voigt evaluates an area normalized Voigt profile plus a constant.
func Voigt(x float64, p []float64) float64 {
	sigma, gamma := p[ParSigma], p[ParGamma]
	z := complex(x-p[ParCenter], gamma) / complex(sigma*math.Sqrt2, 0)
	w := faddeeva(z)
	return p[ParAmplitude]*real(w)/(sigma*math.Sqrt(2*math.Pi)) + p[ParBackground]
}

// VoigtFWHM approximates the full width at half maximum of a Voigt profile.
func VoigtFWHM(sigma, gamma float64) float64 {
	return 1.0692*gamma + math.Sqrt(0.8664*gamma*gamma+5.545083*sigma*sigma)
}

// faddeeva is Humlicek's rational approximation of w(z) for Im(z) >= 0.
func faddeeva(z complex128) complex128 {
	x, y := real(z), imag(z)
	t := complex(y, -x)
	s := math.Abs(x) + y
	switch {
	case s >= 15:
		return t * 0.5641896 / (0.5 + t*t)
	case s >= 5.5:
		u := t * t
		return t * (1.410474 + u*0.5641896) / (0.75 + u*(3+u))
	case y >= 0.195*math.Abs(x)-0.176:
		return (16.4955 + t*(20.20933+t*(11.96482+t*(3.778987+t*0.5642236)))) /
			(16.4955 + t*(38.82363+t*(39.27121+t*(21.69274+t*(6.699398+t)))))
	default:
		u := t * t
		return cmplx.Exp(u) - t*(36183.31-u*(3321.9905-u*(1540.787-u*(219.0313-u*(35.76683-u*(1.320522-u*0.56419))))))/
			(32066.6-u*(24322.84-u*(9022.228-u*(2186.181-u*(364.2191-u*(61.57037-u*(1.841439-u)))))))
	}
}

// initialGuess derives the starting point and box of a Voigt fit to y.
func initialGuess(x, y []float64) (init, lower, upper []float64) {
	step := math.Abs(floats.Sum(binning.Gradient(x)) / float64(len(x)))
	ymin, ymax := floats.Min(y), floats.Max(y)
	xmin, xmax := floats.Min(x), floats.Max(x)

	init = make([]float64, nPar)
	init[ParAmplitude] = ymax / 2
	init[ParCenter] = x[floats.MaxIdx(y)]
	init[ParSigma] = 2 * step
	init[ParGamma] = 2 * step
	init[ParBackground] = binning.Median(y)

	inf := math.Inf(1)
	lower = []float64{-inf, xmin, step, step, -inf}
	upper = []float64{inf, xmax, 200 * step, 200 * step, inf}
	if a := init[ParAmplitude]; a != 0 {
		lower[ParAmplitude], upper[ParAmplitude] = math.Min(a/10, a*100), math.Max(a/10, a*100)
	}
	if ymin < ymax {
		lower[ParBackground], upper[ParBackground] = ymin, ymax
	}
	return init, lower, upper
}

// FitPeak fits a Voigt profile on a constant background to the first slice.
// On failure the cut keeps no fit.
func (c *MapCut) FitPeak(s Solver) (res *FitResult, err error) {
	c.Fit = nil
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrSolverFault, r)
		}
		if err != nil {
			logger.Warn(fmt.Sprintf("Fit failed: %v", err), "module", "fit")
		}
	}()

	if len(c.Slices) == 0 {
		return nil, ErrNoPositions
	}
	x, y := c.Coords, c.Slices[0].Values
	if len(x) < 3 || len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d points", ErrNotConverged, len(x))
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: invalid sample %v", ErrNotConverged, v)
		}
	}

	init, lower, upper := initialGuess(x, y)
	if lower[ParSigma] == 0 {
		return nil, fmt.Errorf("%w: zero coordinate step", ErrNotConverged)
	}
	chi2 := func(p []float64) float64 {
		var sum float64
		for i := range x {
			d := Voigt(x[i], p) - y[i]
			sum += d * d
		}
		return sum
	}
	p, err := s.Minimize(chi2, init, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}

	res = &FitResult{
		Params: p,
		Center: scalar.Round(p[ParCenter], 2),
		FWHM:   scalar.Round(VoigtFWHM(p[ParSigma], p[ParGamma]), 2),
	}
	dx := (x[1] - x[0]) / 10
	for v := x[0]; (dx > 0 && v < x[len(x)-1]) || (dx < 0 && v > x[len(x)-1]); v += dx {
		res.XFit = append(res.XFit, v)
		res.YFit = append(res.YFit, Voigt(v, p))
	}
	c.Fit = res
	logger.Info(fmt.Sprintf("Fit center %v, FWHM %v", res.Center, res.FWHM), "module", "fit")
	return res, nil
}

// NelderMead is the default Solver. Bounded parameters are mapped through
// lo + (hi-lo)(1+sin u)/2 so the simplex search stays unconstrained.
type NelderMead struct {
	// MaxEvaluations caps objective evaluations; zero means 50000.
	MaxEvaluations int
}

func (nm NelderMead) Minimize(f func(p []float64) float64, init, lower, upper []float64) ([]float64, error) {
	n := len(init)
	toBox := func(u []float64) []float64 {
		p := make([]float64, n)
		for i := range u {
			if math.IsInf(lower[i], 0) || math.IsInf(upper[i], 0) {
				p[i] = u[i]
				continue
			}
			p[i] = lower[i] + (upper[i]-lower[i])*(1+math.Sin(u[i]))/2
		}
		return p
	}
	u0 := make([]float64, n)
	for i, v := range init {
		if math.IsInf(lower[i], 0) || math.IsInf(upper[i], 0) {
			u0[i] = v
			continue
		}
		if upper[i] == lower[i] {
			u0[i] = 0
			continue
		}
		r := 2*(v-lower[i])/(upper[i]-lower[i]) - 1
		u0[i] = math.Asin(math.Max(-1, math.Min(1, r)))
	}

	evals := nm.MaxEvaluations
	if evals == 0 {
		evals = 50000
	}
	problem := optimize.Problem{
		Func: func(u []float64) float64 { return f(toBox(u)) },
	}
	settings := &optimize.Settings{
		FuncEvaluations: evals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 200,
		},
	}
	res, err := optimize.Minimize(problem, u0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return nil, fmt.Errorf("stopped by %v", res.Status)
	}
	return toBox(res.X), nil
}
