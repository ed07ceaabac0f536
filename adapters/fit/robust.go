package fit

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"smefit/domain/sme"
	"smefit/domain/spectral"
)

// RobustRegression fits a line to log power versus log frequency by
// iteratively reweighted least squares. The slope is the raw log-log
// coefficient (negative for 1/f-shaped spectra) and the residual is the
// observed minus fitted log power at every frequency.
type RobustRegression struct {
	norm    weightNorm
	maxIter int
	tol     float64
}

// NewRobustRegression builds the fitter from its configuration
func NewRobustRegression(cfg sme.RobustConfig) (*RobustRegression, error) {
	norm, err := normFromName(cfg.Norm)
	if err != nil {
		return nil, err
	}
	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 50
	}
	tol := cfg.Tol
	if tol <= 0 {
		tol = 1e-8
	}
	return &RobustRegression{norm: norm, maxIter: maxIter, tol: tol}, nil
}

// Name returns the strategy name
func (f *RobustRegression) Name() string {
	return string(sme.StrategyRobustRegression)
}

// Description returns a human-readable description
func (f *RobustRegression) Description() string {
	return fmt.Sprintf("IRLS line fit of log power on log frequency (%s weights)", f.norm.Name())
}

// WantsLogPower reports that this fitter consumes log10 power
func (f *RobustRegression) WantsLogPower() bool {
	return true
}

// Fit regresses every event's spectrum independently. Events containing
// non-finite power are left as NaN.
func (f *RobustRegression) Fit(freqs spectral.FrequencyAxis, spectra *spectral.Tensor) (spectral.FitResult, error) {
	layout, err := resolveLayout(len(freqs), spectra)
	if err != nil {
		return spectral.FitResult{}, err
	}

	res := spectral.NaNFitResult(layout.events, layout.nf, layout.subs)
	logf := freqs.Log10()
	y := make([]float64, layout.nf)
	resid := make([]float64, layout.nf)

	for e := 0; e < layout.events; e++ {
		for j := 0; j < layout.subCount(); j++ {
			layout.spectrum(y, spectra, e, j)
			if !allFinite(y) {
				continue
			}
			offset, slope, ok := fitLineIRLS(logf, y, f.norm, f.maxIter, f.tol)
			if !ok {
				continue
			}
			for i := range y {
				resid[i] = y[i] - (offset + slope*logf[i])
			}
			layout.store(&res, e, j, offset, slope, resid)
		}
	}
	return res, nil
}

// weightNorm maps a scaled residual to an IRLS weight
type weightNorm interface {
	Name() string
	Weight(u float64) float64
}

// leastSquaresNorm keeps every weight at one, reducing IRLS to plain OLS
type leastSquaresNorm struct{}

func (leastSquaresNorm) Name() string             { return "leastsquares" }
func (leastSquaresNorm) Weight(u float64) float64 { return 1 }

// huberNorm downweights residuals beyond c scaled deviations
type huberNorm struct{ c float64 }

func (n huberNorm) Name() string { return "huber" }
func (n huberNorm) Weight(u float64) float64 {
	au := math.Abs(u)
	if au <= n.c {
		return 1
	}
	return n.c / au
}

// bisquareNorm zeroes residuals beyond c scaled deviations entirely
type bisquareNorm struct{ c float64 }

func (n bisquareNorm) Name() string { return "bisquare" }
func (n bisquareNorm) Weight(u float64) float64 {
	au := math.Abs(u)
	if au >= n.c {
		return 0
	}
	r := u / n.c
	w := 1 - r*r
	return w * w
}

// normFromName maps a config string to its weight norm with the standard
// tuning constants (Huber 1.345, bisquare 4.685 for 95% efficiency under
// normal errors).
func normFromName(name string) (weightNorm, error) {
	switch name {
	case "", "huber":
		return huberNorm{c: 1.345}, nil
	case "bisquare":
		return bisquareNorm{c: 4.685}, nil
	case "leastsquares":
		return leastSquaresNorm{}, nil
	default:
		return nil, fmt.Errorf("unknown robust norm %q", name)
	}
}

// fitLineIRLS fits y = offset + slope*x by iteratively reweighted least
// squares. The scale is the median absolute deviation over 0.6745, the
// usual consistency constant for normal errors. Iteration stops on
// parameter convergence, a perfect fit, or maxIter; like other IRLS
// implementations the current estimate is kept when the cap is reached.
func fitLineIRLS(x, y []float64, norm weightNorm, maxIter int, tol float64) (offset, slope float64, ok bool) {
	offset, slope = stat.LinearRegression(x, y, nil, false)
	if !finitePair(offset, slope) {
		return math.NaN(), math.NaN(), false
	}
	if _, isOLS := norm.(leastSquaresNorm); isOLS {
		return offset, slope, true
	}

	resid := make([]float64, len(y))
	weights := make([]float64, len(y))
	for iter := 0; iter < maxIter; iter++ {
		for i := range y {
			resid[i] = y[i] - (offset + slope*x[i])
		}
		scale := madScale(resid)
		if scale == 0 {
			// perfect fit, nothing left to reweight
			return offset, slope, true
		}
		for i := range resid {
			weights[i] = norm.Weight(resid[i] / scale)
		}
		newOffset, newSlope := stat.LinearRegression(x, y, weights, false)
		if !finitePair(newOffset, newSlope) {
			return math.NaN(), math.NaN(), false
		}
		converged := math.Abs(newOffset-offset) < tol && math.Abs(newSlope-slope) < tol
		offset, slope = newOffset, newSlope
		if converged {
			break
		}
	}
	return offset, slope, true
}

// madScale estimates residual scale as MAD/0.6745
func madScale(resid []float64) float64 {
	med, err := stats.Median(resid)
	if err != nil {
		return 0
	}
	absDev := make([]float64, len(resid))
	for i, r := range resid {
		absDev[i] = math.Abs(r - med)
	}
	mad, err := stats.Median(absDev)
	if err != nil {
		return 0
	}
	return mad / 0.6745
}

func finitePair(a, b float64) bool {
	return !math.IsNaN(a) && !math.IsInf(a, 0) && !math.IsNaN(b) && !math.IsInf(b, 0)
}
