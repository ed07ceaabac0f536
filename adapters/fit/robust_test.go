package fit

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/domain/spectral"
)

const tol = 1e-9

func logSpacedFreqs(n int, lo, hi float64) spectral.FrequencyAxis {
	out := make(spectral.FrequencyAxis, n)
	step := (math.Log10(hi) - math.Log10(lo)) / float64(n-1)
	for i := range out {
		out[i] = math.Pow(10, math.Log10(lo)+float64(i)*step)
	}
	return out
}

// lineSpectra builds (events, freqs) log-power data on an exact line with
// per-event offsets and slopes.
func lineSpectra(freqs spectral.FrequencyAxis, offsets, slopes []float64) *spectral.Tensor {
	t := spectral.New(len(offsets), len(freqs))
	logf := freqs.Log10()
	for e := range offsets {
		for i, lf := range logf {
			t.Set(offsets[e]+slopes[e]*lf, e, i)
		}
	}
	return t
}

func TestRobustRegression_MatchesOLSOnCleanLine(t *testing.T) {
	freqs := logSpacedFreqs(30, 2, 100)
	offsets := []float64{2.5, 1.0, -0.5}
	slopes := []float64{-1.2, -0.8, -2.0}
	spectra := lineSpectra(freqs, offsets, slopes)

	for _, norm := range []string{"leastsquares", "huber", "bisquare"} {
		fitter, err := NewRobustRegression(sme.RobustConfig{Norm: norm, MaxIter: 50, Tol: 1e-10})
		if err != nil {
			t.Fatalf("%s: new: %v", norm, err)
		}
		res, err := fitter.Fit(freqs, spectra)
		if err != nil {
			t.Fatalf("%s: fit: %v", norm, err)
		}

		logf := freqs.Log10()
		for e := range offsets {
			y := make([]float64, len(freqs))
			for i := range y {
				y[i] = spectra.At(e, i)
			}
			wantOff, wantSlope := stat.LinearRegression(logf, y, nil, false)

			if got := res.Offsets.At(e); math.Abs(got-wantOff) > tol {
				t.Fatalf("%s: event %d offset = %v, want %v (OLS)", norm, e, got, wantOff)
			}
			if got := res.Slopes.At(e); math.Abs(got-wantSlope) > tol {
				t.Fatalf("%s: event %d slope = %v, want %v (OLS)", norm, e, got, wantSlope)
			}
			for i := range freqs {
				if got := res.Residual.At(e, i); math.Abs(got) > 1e-8 {
					t.Fatalf("%s: event %d residual[%d] = %v, want ~0 on exact line", norm, e, i, got)
				}
			}
		}
	}
}

func TestRobustRegression_HuberResistsOutlier(t *testing.T) {
	freqs := logSpacedFreqs(40, 2, 100)
	logf := freqs.Log10()
	const trueOffset, trueSlope = 2.0, -1.5

	y := make([]float64, len(freqs))
	for i, lf := range logf {
		y[i] = trueOffset + trueSlope*lf
	}
	y[5] += 4.0 // single gross outlier

	spectra := spectral.FromSlice(append([]float64(nil), y...), 1, len(freqs))

	olsFitter, _ := NewRobustRegression(sme.RobustConfig{Norm: "leastsquares"})
	huberFitter, _ := NewRobustRegression(sme.RobustConfig{Norm: "huber", MaxIter: 100, Tol: 1e-10})

	olsRes, err := olsFitter.Fit(freqs, spectra)
	if err != nil {
		t.Fatalf("ols fit: %v", err)
	}
	huberRes, err := huberFitter.Fit(freqs, spectra)
	if err != nil {
		t.Fatalf("huber fit: %v", err)
	}

	olsErr := math.Abs(olsRes.Slopes.At(0) - trueSlope)
	huberErr := math.Abs(huberRes.Slopes.At(0) - trueSlope)
	if huberErr >= olsErr {
		t.Fatalf("huber slope error %.5f not better than OLS %.5f under outlier", huberErr, olsErr)
	}
	if huberErr > 0.05 {
		t.Fatalf("huber slope error %.5f too large, outlier not contained", huberErr)
	}
}

func TestRobustRegression_NaNEventIsolated(t *testing.T) {
	freqs := logSpacedFreqs(20, 2, 50)
	spectra := lineSpectra(freqs, []float64{1, 1, 1}, []float64{-1, -1, -1})
	spectra.Set(math.NaN(), 1, 7)

	fitter, _ := NewRobustRegression(sme.RobustConfig{Norm: "huber"})
	res, err := fitter.Fit(freqs, spectra)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	if !math.IsNaN(res.Slopes.At(1)) || !math.IsNaN(res.Offsets.At(1)) {
		t.Fatal("event with NaN power should yield NaN parameters")
	}
	if !math.IsNaN(res.Residual.At(1, 0)) {
		t.Fatal("event with NaN power should yield NaN residuals")
	}
	for _, e := range []int{0, 2} {
		if math.IsNaN(res.Slopes.At(e)) {
			t.Fatalf("clean event %d contaminated by neighbor's NaN", e)
		}
	}
}

func TestRobustRegression_SubUnitAxisResolution(t *testing.T) {
	freqs := logSpacedFreqs(12, 2, 50)
	logf := freqs.Log10()
	const events, subs = 3, 5

	// freq-first blocks: (events, freqs, subs)
	freqFirst := spectral.New(events, len(freqs), subs)
	// freq-last blocks: (events, subs, freqs)
	freqLast := spectral.New(events, subs, len(freqs))
	for e := 0; e < events; e++ {
		for j := 0; j < subs; j++ {
			off := 1.0 + 0.1*float64(e) + 0.01*float64(j)
			slope := -1.0 - 0.05*float64(j)
			for i, lf := range logf {
				v := off + slope*lf
				freqFirst.Set(v, e, i, j)
				freqLast.Set(v, e, j, i)
			}
		}
	}

	fitter, _ := NewRobustRegression(sme.RobustConfig{Norm: "leastsquares"})
	resFirst, err := fitter.Fit(freqs, freqFirst)
	if err != nil {
		t.Fatalf("freq-first fit: %v", err)
	}
	resLast, err := fitter.Fit(freqs, freqLast)
	if err != nil {
		t.Fatalf("freq-last fit: %v", err)
	}

	if !resFirst.Slopes.EqualApprox(resLast.Slopes, tol) {
		t.Fatal("slope estimates differ between freq-first and freq-last layouts")
	}
	if !resFirst.Residual.EqualApprox(resLast.Residual, tol) {
		t.Fatal("residuals differ between freq-first and freq-last layouts")
	}

	sh := resFirst.Residual.Shape()
	if sh[0] != events || sh[1] != len(freqs) || sh[2] != subs {
		t.Fatalf("residual shape = %v, want [%d %d %d]", sh, events, len(freqs), subs)
	}
}

func TestRobustRegression_UnresolvableAxisFails(t *testing.T) {
	freqs := logSpacedFreqs(10, 2, 50)
	spectra := spectral.New(4, 7, 9) // neither trailing axis matches 10

	fitter, _ := NewRobustRegression(sme.RobustConfig{Norm: "huber"})
	_, err := fitter.Fit(freqs, spectra)
	if !core.IsUnresolvedAxisError(err) {
		t.Fatalf("error = %v, want ErrUnresolvedAxis", err)
	}
}

func TestResolveLayout_SquareBlockPrefersFirstAxis(t *testing.T) {
	layout, err := resolveLayout(6, spectral.New(2, 6, 6))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !layout.freqFirst {
		t.Fatal("square block should resolve frequency to the first block axis")
	}
}

func TestFitterFactory(t *testing.T) {
	cfg := sme.DefaultConfig()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, isRobust := f.(*RobustRegression); !isRobust {
		t.Fatalf("default strategy built %T", f)
	}
	if !f.WantsLogPower() {
		t.Fatal("robust regression must consume log power")
	}

	cfg.Strategy = sme.StrategyOscillationDecomposition
	f, err = New(cfg)
	if err != nil {
		t.Fatalf("new oscillation: %v", err)
	}
	if f.WantsLogPower() {
		t.Fatal("oscillation decomposition must consume linear power")
	}

	cfg.Strategy = "cubic_spline"
	if _, err := New(cfg); err == nil {
		t.Fatal("unknown strategy accepted")
	}
}

// noise helper shared with the oscillation tests
func addNoise(rng *rand.Rand, v []float64, sd float64) {
	for i := range v {
		v[i] += rng.NormFloat64() * sd
	}
}
