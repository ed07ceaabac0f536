package fit

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/optimize"

	"smefit/domain/sme"
	"smefit/domain/spectral"
)

// OscillationDecomposition separates each spectrum into an aperiodic
// background and a sum of Gaussian oscillatory peaks, in log10 power space.
// The offset is the background intercept, the slope is the aperiodic
// exponent (positive for decaying spectra), and the residual is the fitted
// peak-only curve: the oscillatory power above the background at every
// frequency.
//
// The procedure: robust background line fit, iterative extraction of peak
// guesses from the flattened spectrum, joint Nelder-Mead refinement of all
// peaks, then a final background re-fit on the peak-removed spectrum.
type OscillationDecomposition struct {
	widthLo   float64 // minimum peak full width, Hz
	widthHi   float64 // maximum peak full width, Hz
	threshold float64 // extraction cutoff, sd of the flattened spectrum
	minHeight float64 // absolute extraction floor, log10 power
	maxPeaks  int
}

// NewOscillationDecomposition builds the fitter from its configuration
func NewOscillationDecomposition(cfg sme.OscillationConfig) (*OscillationDecomposition, error) {
	lo, hi := cfg.PeakWidthLimits[0], cfg.PeakWidthLimits[1]
	if lo <= 0 || hi < lo {
		return nil, fmt.Errorf("peak width limits (%v, %v) are not an increasing positive pair", lo, hi)
	}
	maxPeaks := cfg.MaxPeaks
	if maxPeaks <= 0 {
		maxPeaks = 6
	}
	return &OscillationDecomposition{
		widthLo:   lo,
		widthHi:   hi,
		threshold: cfg.PeakThreshold,
		minHeight: cfg.MinPeakHeight,
		maxPeaks:  maxPeaks,
	}, nil
}

// Name returns the strategy name
func (f *OscillationDecomposition) Name() string {
	return string(sme.StrategyOscillationDecomposition)
}

// Description returns a human-readable description
func (f *OscillationDecomposition) Description() string {
	return "aperiodic background plus Gaussian peak decomposition of power spectra"
}

// WantsLogPower reports that this fitter consumes linear power
func (f *OscillationDecomposition) WantsLogPower() bool {
	return false
}

// Fit decomposes every event's spectrum independently. Events with
// non-positive or non-finite power, and events whose decomposition fails,
// are left as NaN.
func (f *OscillationDecomposition) Fit(freqs spectral.FrequencyAxis, spectra *spectral.Tensor) (spectral.FitResult, error) {
	layout, err := resolveLayout(len(freqs), spectra)
	if err != nil {
		return spectral.FitResult{}, err
	}

	res := spectral.NaNFitResult(layout.events, layout.nf, layout.subs)
	logf := freqs.Log10()
	power := make([]float64, layout.nf)
	logp := make([]float64, layout.nf)

	for e := 0; e < layout.events; e++ {
		for j := 0; j < layout.subCount(); j++ {
			layout.spectrum(power, spectra, e, j)
			if !allPositiveFinite(power) {
				continue
			}
			for i, p := range power {
				logp[i] = math.Log10(p)
			}
			offset, exponent, peakFit, ok := f.decompose(freqs, logf, logp)
			if !ok {
				continue
			}
			layout.store(&res, e, j, offset, exponent, peakFit)
		}
	}
	return res, nil
}

// gaussPeak is one oscillatory component in log10 power space
type gaussPeak struct {
	height float64 // log10 power above background
	center float64 // Hz
	sigma  float64 // Hz
}

// decompose runs the full background/peak separation for one spectrum
func (f *OscillationDecomposition) decompose(freqs spectral.FrequencyAxis, logf, logp []float64) (offset, exponent float64, peakFit []float64, ok bool) {
	// initial background estimate; Huber weights keep large peaks from
	// dragging the line up
	bgOffset, bgSlope, ok := fitLineIRLS(logf, logp, huberNorm{c: 1.345}, 30, 1e-7)
	if !ok {
		return math.NaN(), math.NaN(), nil, false
	}

	flat := make([]float64, len(logp))
	for i := range logp {
		flat[i] = logp[i] - (bgOffset + bgSlope*logf[i])
	}

	peaks := f.extractPeaks(freqs, flat)
	peakFit = make([]float64, len(logp))
	if len(peaks) > 0 {
		peaks = f.refinePeaks(freqs, flat, peaks)
		evalPeaks(peakFit, freqs, peaks)
	}

	// final background fit on the peak-removed spectrum; plain OLS is
	// enough once the peaks are gone
	remain := make([]float64, len(logp))
	for i := range logp {
		remain[i] = logp[i] - peakFit[i]
	}
	finalOffset, finalSlope, ok := fitLineIRLS(logf, remain, leastSquaresNorm{}, 1, 0)
	if !ok || !allFinite(peakFit) {
		return math.NaN(), math.NaN(), nil, false
	}
	return finalOffset, -finalSlope, peakFit, true
}

// extractPeaks pulls peak guesses off the flattened spectrum tallest-first,
// subtracting each guess before searching for the next. Extraction stops at
// the relative threshold (sd of the flattened spectrum), the absolute
// height floor, or the peak cap.
func (f *OscillationDecomposition) extractPeaks(freqs spectral.FrequencyAxis, flat []float64) []gaussPeak {
	sd, err := stats.StandardDeviation(flat)
	if err != nil {
		return nil
	}
	work := append([]float64(nil), flat...)

	var peaks []gaussPeak
	for len(peaks) < f.maxPeaks {
		imax := argmax(work)
		height := work[imax]
		if height <= 0 || height < f.threshold*sd || height < f.minHeight {
			break
		}
		sigma := f.guessSigma(freqs, work, imax, height)
		peak := gaussPeak{height: height, center: freqs[imax], sigma: sigma}
		peaks = append(peaks, peak)
		subtractPeak(work, freqs, peak)
	}
	return peaks
}

// guessSigma estimates a peak's width from its half-height crossings,
// falling back to the midpoint of the width limits when the flanks never
// drop that far. The result is clamped to the configured width limits.
func (f *OscillationDecomposition) guessSigma(freqs spectral.FrequencyAxis, work []float64, imax int, height float64) float64 {
	half := height / 2
	left, right := -1, -1
	for i := imax - 1; i >= 0; i-- {
		if work[i] < half {
			left = i
			break
		}
	}
	for i := imax + 1; i < len(work); i++ {
		if work[i] < half {
			right = i
			break
		}
	}

	var fwhm float64
	switch {
	case left >= 0 && right >= 0:
		fwhm = freqs[right] - freqs[left]
	case left >= 0:
		fwhm = 2 * (freqs[imax] - freqs[left])
	case right >= 0:
		fwhm = 2 * (freqs[right] - freqs[imax])
	default:
		fwhm = (f.widthLo + f.widthHi) / 2
	}

	sigma := fwhm / 2.355 // FWHM to standard deviation
	return clamp(sigma, f.widthLo/2, f.widthHi/2)
}

// refinePeaks jointly adjusts all peak parameters by Nelder-Mead least
// squares against the flattened spectrum. Bounds are enforced by evaluating
// clamped parameters plus a quadratic penalty on the excursion. If the
// optimizer fails the extraction guesses are kept.
func (f *OscillationDecomposition) refinePeaks(freqs spectral.FrequencyAxis, flat []float64, guesses []gaussPeak) []gaussPeak {
	fLo, fHi := freqs[0], freqs[len(freqs)-1]
	sigLo, sigHi := f.widthLo/2, f.widthHi/2

	clampParams := func(x []float64) ([]gaussPeak, float64) {
		peaks := make([]gaussPeak, len(x)/3)
		pen := 0.0
		for k := range peaks {
			h, c, s := x[3*k], x[3*k+1], x[3*k+2]
			ch := clamp(h, 0, math.Inf(1))
			cc := clamp(c, fLo, fHi)
			cs := clamp(s, sigLo, sigHi)
			pen += sq(h-ch) + sq(c-cc) + sq(s-cs)
			peaks[k] = gaussPeak{height: ch, center: cc, sigma: cs}
		}
		return peaks, pen
	}

	model := make([]float64, len(flat))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			peaks, pen := clampParams(x)
			for i := range model {
				model[i] = 0
			}
			evalPeaks(model, freqs, peaks)
			sse := 0.0
			for i := range flat {
				sse += sq(flat[i] - model[i])
			}
			return sse + 1e3*pen
		},
	}

	x0 := make([]float64, 0, 3*len(guesses))
	for _, p := range guesses {
		x0 = append(x0, p.height, p.center, p.sigma)
	}

	result, err := optimize.Minimize(problem, x0, &optimize.Settings{MajorIterations: 1000}, &optimize.NelderMead{})
	if err != nil || result == nil || !allFinite(result.X) {
		return guesses
	}
	refined, _ := clampParams(result.X)
	return refined
}

// evalPeaks adds every Gaussian to dst at each frequency
func evalPeaks(dst []float64, freqs spectral.FrequencyAxis, peaks []gaussPeak) {
	for _, p := range peaks {
		for i, fr := range freqs {
			d := fr - p.center
			dst[i] += p.height * math.Exp(-(d*d)/(2*p.sigma*p.sigma))
		}
	}
}

// subtractPeak removes one Gaussian from the working spectrum in place
func subtractPeak(work []float64, freqs spectral.FrequencyAxis, p gaussPeak) {
	for i, fr := range freqs {
		d := fr - p.center
		work[i] -= p.height * math.Exp(-(d*d)/(2*p.sigma*p.sigma))
	}
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sq(v float64) float64 { return v * v }
