package sme

import (
	"fmt"
)

// FitStrategy selects the background decomposition method
type FitStrategy string

const (
	// StrategyRobustRegression fits a robust line to log power vs log
	// frequency and keeps the residual at every frequency.
	StrategyRobustRegression FitStrategy = "robust_regression"
	// StrategyOscillationDecomposition separates the aperiodic background
	// from Gaussian oscillatory peaks and keeps the peak-only model.
	StrategyOscillationDecomposition FitStrategy = "oscillation_decomposition"
)

// ContrastMode names which of the two mutually exclusive result forms a run
// produces. There is no mixed form.
type ContrastMode string

const (
	// ModeWithStats: every event fitted individually, group deltas plus
	// t and p at every coordinate.
	ModeWithStats ContrastMode = "with_stats"
	// ModeDeltasOnly: only the two condition-mean spectra fitted, group
	// deltas without significance statistics.
	ModeDeltasOnly ContrastMode = "deltas_only"
)

// RobustConfig tunes the IRLS regression
type RobustConfig struct {
	// Norm is the weight function: "huber" (default), "bisquare", or
	// "leastsquares" for plain OLS behavior.
	Norm    string
	MaxIter int
	Tol     float64
}

// OscillationConfig tunes the background/peak decomposition
type OscillationConfig struct {
	// PeakWidthLimits bounds a fitted peak's full width, in Hz
	PeakWidthLimits [2]float64
	// PeakThreshold is the extraction cutoff in standard deviations of the
	// flattened spectrum
	PeakThreshold float64
	// MinPeakHeight is an absolute floor in log10 power units
	MinPeakHeight float64
	MaxPeaks      int
}

// AnalysisConfig carries every knob of a run explicitly. It replaces the
// habit of mutating analysis objects between method calls; a config value
// is immutable once the run starts.
type AnalysisConfig struct {
	Strategy FitStrategy `json:"strategy"`

	// FitEachEvent opts the oscillation strategy into per-event fitting.
	// Only consulted for StrategyOscillationDecomposition; robust
	// regression always fits every event.
	FitEachEvent bool `json:"fit_each_event"`

	// LogPower declares whether the power tensor holds log10 power (true)
	// or linear power (false).
	LogPower bool `json:"log_power"`

	// Welch switches the group comparison to Welch's unequal-variance
	// t-test. Default is the pooled-variance Student's t.
	Welch bool `json:"welch"`

	// Workers bounds the fit pool; 0 means one worker per CPU
	Workers int `json:"workers"`

	Robust      RobustConfig      `json:"robust"`
	Oscillation OscillationConfig `json:"oscillation"`
}

// DefaultConfig returns the standard SME run configuration: robust
// regression over log power, per-event fits, pooled-variance tests.
func DefaultConfig() AnalysisConfig {
	return AnalysisConfig{
		Strategy: StrategyRobustRegression,
		LogPower: true,
		Robust: RobustConfig{
			Norm:    "huber",
			MaxIter: 50,
			Tol:     1e-8,
		},
		Oscillation: OscillationConfig{
			PeakWidthLimits: [2]float64{1.0, 8.0},
			PeakThreshold:   0.5,
			MinPeakHeight:   0.0,
			MaxPeaks:        6,
		},
	}
}

// Mode resolves the one contrast mode this configuration runs in
func (c AnalysisConfig) Mode() ContrastMode {
	if c.Strategy == StrategyOscillationDecomposition && !c.FitEachEvent {
		return ModeDeltasOnly
	}
	return ModeWithStats
}

// Validate rejects configurations before any data is touched
func (c AnalysisConfig) Validate() error {
	switch c.Strategy {
	case StrategyRobustRegression, StrategyOscillationDecomposition:
	default:
		return fmt.Errorf("unknown fit strategy %q", c.Strategy)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Strategy == StrategyRobustRegression {
		switch c.Robust.Norm {
		case "huber", "bisquare", "leastsquares":
		default:
			return fmt.Errorf("unknown robust norm %q", c.Robust.Norm)
		}
		if c.Robust.MaxIter <= 0 {
			return fmt.Errorf("robust max iterations must be positive")
		}
	}
	if c.Strategy == StrategyOscillationDecomposition {
		o := c.Oscillation
		if o.PeakWidthLimits[0] <= 0 || o.PeakWidthLimits[1] < o.PeakWidthLimits[0] {
			return fmt.Errorf("peak width limits %v are not an increasing positive pair", o.PeakWidthLimits)
		}
		if o.PeakThreshold < 0 {
			return fmt.Errorf("peak threshold must be >= 0")
		}
		if o.MaxPeaks <= 0 {
			return fmt.Errorf("max peaks must be positive")
		}
	}
	return nil
}
