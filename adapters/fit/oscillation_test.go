package fit

import (
	"math"
	"math/rand"
	"testing"

	"smefit/domain/sme"
	"smefit/domain/spectral"
)

func defaultOscillation(t *testing.T) *OscillationDecomposition {
	t.Helper()
	fitter, err := NewOscillationDecomposition(sme.DefaultConfig().Oscillation)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return fitter
}

// backgroundPower builds one linear-power spectrum 10^(offset - exponent*log10 f)
func backgroundPower(freqs spectral.FrequencyAxis, offset, exponent float64) []float64 {
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = math.Pow(10, offset-exponent*math.Log10(f))
	}
	return out
}

func TestOscillationDecomposition_RecoversAperiodicParams(t *testing.T) {
	freqs := logSpacedFreqs(60, 2, 80)
	const wantOffset, wantExponent = 1.8, 1.4

	power := backgroundPower(freqs, wantOffset, wantExponent)
	spectra := spectral.FromSlice(power, 1, len(freqs))

	res, err := defaultOscillation(t).Fit(freqs, spectra)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	if got := res.Offsets.At(0); math.Abs(got-wantOffset) > 0.05 {
		t.Fatalf("offset = %.4f, want %.4f", got, wantOffset)
	}
	if got := res.Slopes.At(0); math.Abs(got-wantExponent) > 0.05 {
		t.Fatalf("exponent = %.4f, want %.4f", got, wantExponent)
	}
	for i := range freqs {
		if got := res.Residual.At(0, i); math.Abs(got) > 0.02 {
			t.Fatalf("peak curve at %d = %.5f, want ~0 for pure background", i, got)
		}
	}
}

func TestOscillationDecomposition_RecoversInjectedPeak(t *testing.T) {
	// dense linear axis so half-height crossings are well resolved
	freqs := make(spectral.FrequencyAxis, 77)
	for i := range freqs {
		freqs[i] = 2 + 0.5*float64(i) // 2..40 Hz
	}
	const wantOffset, wantExponent = 2.0, 1.2
	const peakFreq, peakHeight, peakSigma = 10.0, 0.8, 1.5

	power := backgroundPower(freqs, wantOffset, wantExponent)
	for i, f := range freqs {
		d := f - peakFreq
		bump := peakHeight * math.Exp(-(d*d)/(2*peakSigma*peakSigma))
		power[i] *= math.Pow(10, bump) // additive in log10 space
	}
	spectra := spectral.FromSlice(power, 1, len(freqs))

	res, err := defaultOscillation(t).Fit(freqs, spectra)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	// the peak-only curve should crest at the injected frequency
	best, bestVal := 0, math.Inf(-1)
	for i := range freqs {
		if v := res.Residual.At(0, i); v > bestVal {
			best, bestVal = i, v
		}
	}
	if math.Abs(freqs[best]-peakFreq) > 1.0 {
		t.Fatalf("peak crest at %.2f Hz, want ~%.1f", freqs[best], peakFreq)
	}
	if math.Abs(bestVal-peakHeight) > 0.2 {
		t.Fatalf("peak height = %.3f, want ~%.2f", bestVal, peakHeight)
	}

	// background parameters should not be dragged by the peak
	if got := res.Slopes.At(0); math.Abs(got-wantExponent) > 0.15 {
		t.Fatalf("exponent = %.4f, want ~%.2f", got, wantExponent)
	}
	if got := res.Offsets.At(0); math.Abs(got-wantOffset) > 0.15 {
		t.Fatalf("offset = %.4f, want ~%.2f", got, wantOffset)
	}

	// far from the peak the oscillatory curve returns to the floor
	if v := res.Residual.At(0, len(freqs)-1); math.Abs(v) > 0.1 {
		t.Fatalf("peak curve at top frequency = %.4f, want ~0", v)
	}
}

func TestOscillationDecomposition_ToleratesNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	freqs := make(spectral.FrequencyAxis, 77)
	for i := range freqs {
		freqs[i] = 2 + 0.5*float64(i)
	}
	const wantExponent = 1.0

	logp := make([]float64, len(freqs))
	for i, f := range freqs {
		logp[i] = 1.5 - wantExponent*math.Log10(f)
		d := f - 12.0
		logp[i] += 0.6 * math.Exp(-(d*d)/(2*2.0*2.0))
	}
	addNoise(rng, logp, 0.02)

	power := make([]float64, len(logp))
	for i, lp := range logp {
		power[i] = math.Pow(10, lp)
	}
	spectra := spectral.FromSlice(power, 1, len(freqs))

	res, err := defaultOscillation(t).Fit(freqs, spectra)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if got := res.Slopes.At(0); math.Abs(got-wantExponent) > 0.2 {
		t.Fatalf("exponent under noise = %.4f, want ~%.1f", got, wantExponent)
	}
}

func TestOscillationDecomposition_NonPositivePowerYieldsNaN(t *testing.T) {
	freqs := logSpacedFreqs(20, 2, 50)

	good := backgroundPower(freqs, 1.0, 1.0)
	bad := backgroundPower(freqs, 1.0, 1.0)
	bad[3] = 0 // log10 undefined

	data := append(append([]float64(nil), good...), bad...)
	spectra := spectral.FromSlice(data, 2, len(freqs))

	res, err := defaultOscillation(t).Fit(freqs, spectra)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.IsNaN(res.Slopes.At(0)) {
		t.Fatal("clean event should fit")
	}
	if !math.IsNaN(res.Slopes.At(1)) {
		t.Fatal("event with zero power should yield NaN, not a fabricated fit")
	}
}
