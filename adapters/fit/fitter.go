// Package fit implements the spectral background decomposition strategies.
// Each fitter takes one analysis unit's power spectra and returns background
// slope and offset per event plus residual power per event and frequency.
package fit

import (
	"fmt"
	"math"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/domain/spectral"
)

// Fitter decomposes observed power spectra into an aperiodic background and
// residual power. Implementations are stateless and safe for concurrent use
// across analysis units.
type Fitter interface {
	Name() string
	Description() string

	// WantsLogPower reports whether Fit consumes log10 power (true) or
	// linear power (false). The caller converts the whole tensor once.
	WantsLogPower() bool

	// Fit decomposes one unit. spectra is (events, freqs) or
	// (events, d1, d2) with the frequency axis resolved by matching axis
	// length against len(freqs). An event that cannot be fitted yields NaN
	// at its coordinates; only structural problems return an error.
	Fit(freqs spectral.FrequencyAxis, spectra *spectral.Tensor) (spectral.FitResult, error)
}

// New builds the fitter selected by the analysis configuration
func New(cfg sme.AnalysisConfig) (Fitter, error) {
	switch cfg.Strategy {
	case sme.StrategyRobustRegression:
		return NewRobustRegression(cfg.Robust)
	case sme.StrategyOscillationDecomposition:
		return NewOscillationDecomposition(cfg.Oscillation)
	default:
		return nil, fmt.Errorf("unknown fit strategy %q", cfg.Strategy)
	}
}

// unitLayout describes how one unit's spectra tensor maps onto events,
// frequencies, and optional sub-units.
type unitLayout struct {
	events int
	nf     int
	subs   int // 0 when the input is rank 2
	// freqFirst marks the frequency axis as the first axis of each
	// per-event block
	freqFirst bool
	d1, d2    int
}

// resolveLayout matches the frequency axis of a unit tensor by length. When
// both block axes match len(freqs) the first one wins, keeping behavior
// deterministic for square blocks.
func resolveLayout(nf int, spectra *spectral.Tensor) (unitLayout, error) {
	if nf == 0 {
		return unitLayout{}, core.NewPreconditionError("freqs", "frequency axis is empty")
	}
	switch spectra.Rank() {
	case 2:
		if spectra.Dim(1) != nf {
			return unitLayout{}, core.NewUnresolvedAxisError(nf, spectra.Dim(1), 0)
		}
		return unitLayout{events: spectra.Dim(0), nf: nf}, nil
	case 3:
		d1, d2 := spectra.Dim(1), spectra.Dim(2)
		switch {
		case d1 == nf:
			return unitLayout{events: spectra.Dim(0), nf: nf, subs: d2, freqFirst: true, d1: d1, d2: d2}, nil
		case d2 == nf:
			return unitLayout{events: spectra.Dim(0), nf: nf, subs: d1, freqFirst: false, d1: d1, d2: d2}, nil
		default:
			return unitLayout{}, core.NewUnresolvedAxisError(nf, d1, d2)
		}
	default:
		return unitLayout{}, core.NewPreconditionError("spectra", fmt.Sprintf("rank %d unsupported, want 2 or 3", spectra.Rank()))
	}
}

// spectrum copies the (event e, sub-unit j) spectrum into dst. For rank-2
// layouts j is ignored.
func (l unitLayout) spectrum(dst []float64, spectra *spectral.Tensor, e, j int) {
	data := spectra.Data()
	if l.subs == 0 {
		copy(dst, data[e*l.nf:(e+1)*l.nf])
		return
	}
	if l.freqFirst {
		// block element (f, j): stride d2 along frequency
		base := (e*l.d1)*l.d2 + j
		for f := 0; f < l.nf; f++ {
			dst[f] = data[base+f*l.d2]
		}
		return
	}
	// block element (j, f): contiguous along frequency
	base := (e*l.d1 + j) * l.d2
	copy(dst, data[base:base+l.nf])
}

// store writes one fitted event into the result arrays
func (l unitLayout) store(res *spectral.FitResult, e, j int, offset, slope float64, resid []float64) {
	if l.subs == 0 {
		res.Offsets.Set(offset, e)
		res.Slopes.Set(slope, e)
		for f, v := range resid {
			res.Residual.Set(v, e, f)
		}
		return
	}
	res.Offsets.Set(offset, e, j)
	res.Slopes.Set(slope, e, j)
	for f, v := range resid {
		res.Residual.Set(v, e, f, j)
	}
}

// subCount returns the number of per-event spectra to iterate
func (l unitLayout) subCount() int {
	if l.subs == 0 {
		return 1
	}
	return l.subs
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func allPositiveFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
			return false
		}
	}
	return true
}
