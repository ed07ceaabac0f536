package spectral

import (
	"smefit/domain/core"
)

// Orientation records what NormalizeUnits did to a power tensor so both the
// input layout and statistic layouts can be restored after analysis.
type Orientation struct {
	Swapped bool `json:"swapped"`
}

// NormalizeUnits arranges a power tensor so its last axis carries the
// analysis units the worker pool fans out over. Rank 3 (event, frequency,
// electrode) passes through with electrodes as units. Rank 4 (event,
// frequency, electrode, time) swaps the trailing axes when the time axis is
// the smaller one, so the larger axis is always outermost and each worker's
// slice stays small. Returns a copy; the input is never mutated.
func NormalizeUnits(t *Tensor) (*Tensor, Orientation, error) {
	switch t.Rank() {
	case 3:
		return t.Clone(), Orientation{}, nil
	case 4:
		if t.Dim(3) < t.Dim(2) {
			return t.SwapAxes(2, 3), Orientation{Swapped: true}, nil
		}
		return t.Clone(), Orientation{}, nil
	default:
		return nil, Orientation{}, core.NewPreconditionError("power", "tensor rank must be 3 or 4")
	}
}

// RestoreInput undoes NormalizeUnits on a tensor with the input's rank.
// RestoreInput(NormalizeUnits(x)) is exactly x, bit for bit.
func (o Orientation) RestoreInput(t *Tensor) *Tensor {
	if !o.Swapped {
		return t.Clone()
	}
	return t.SwapAxes(2, 3)
}

// RestoreStats undoes NormalizeUnits on a stacked statistic tensor, whose
// trailing axis is the unit axis. Statistic tensors have one axis fewer
// than the input per reduced dimension, so the uniform rule is to swap the
// last two axes: (freq, sub, unit) residual stats and (sub, unit) slope or
// offset stats both come back to electrode-major order.
func (o Orientation) RestoreStats(t *Tensor) *Tensor {
	if !o.Swapped || t.Rank() < 2 {
		return t.Clone()
	}
	r := t.Rank()
	return t.SwapAxes(r-2, r-1)
}
