package spectral

import (
	"fmt"
	"math"
)

// FitResult holds the background decomposition of one analysis unit.
//
// Shapes: for rank-2 input (events, freqs) the slopes and offsets are
// (events) and the residual is (events, freqs). For rank-3 input
// (events, d1, d2) a sub-unit axis is appended: (events, subs) and
// (events, freqs, subs).
//
// An event whose fit failed carries NaN in all three arrays at its
// coordinates; the contrast stage excludes those values per coordinate.
type FitResult struct {
	Slopes   *Tensor
	Offsets  *Tensor
	Residual *Tensor
}

// NaNFitResult builds a result pre-filled with NaN. Fitters start from this
// and overwrite the events that converge.
func NaNFitResult(events, freqs, subs int) FitResult {
	nan := math.NaN()
	if subs <= 0 {
		return FitResult{
			Slopes:   Filled(nan, events),
			Offsets:  Filled(nan, events),
			Residual: Filled(nan, events, freqs),
		}
	}
	return FitResult{
		Slopes:   Filled(nan, events, subs),
		Offsets:  Filled(nan, events, subs),
		Residual: Filled(nan, events, freqs, subs),
	}
}

// Validate checks the three arrays agree with each other and the axis
func (r FitResult) Validate(events, freqs int) error {
	if r.Slopes == nil || r.Offsets == nil || r.Residual == nil {
		return fmt.Errorf("fit result has nil arrays")
	}
	if !r.Slopes.SameShape(r.Offsets) {
		return fmt.Errorf("slopes shape %v != offsets shape %v", r.Slopes.Shape(), r.Offsets.Shape())
	}
	if r.Slopes.Dim(0) != events || r.Residual.Dim(0) != events {
		return fmt.Errorf("fit result event axis %d, want %d", r.Slopes.Dim(0), events)
	}
	if r.Residual.Dim(1) != freqs {
		return fmt.Errorf("residual frequency axis %d, want %d", r.Residual.Dim(1), freqs)
	}
	switch r.Slopes.Rank() {
	case 1:
		if r.Residual.Rank() != 2 {
			return fmt.Errorf("residual rank %d with scalar slopes", r.Residual.Rank())
		}
	case 2:
		if r.Residual.Rank() != 3 || r.Residual.Dim(2) != r.Slopes.Dim(1) {
			return fmt.Errorf("residual shape %v does not carry sub-unit axis %d", r.Residual.Shape(), r.Slopes.Dim(1))
		}
	default:
		return fmt.Errorf("slopes rank %d unsupported", r.Slopes.Rank())
	}
	return nil
}
