package spectral

import (
	"fmt"
	"math"
)

// FrequencyAxis is the ordered set of frequencies (Hz) shared by every
// event, electrode, and time bin of a subject's power data.
type FrequencyAxis []float64

// Validate checks the axis is non-empty, positive, and strictly increasing
func (f FrequencyAxis) Validate() error {
	if len(f) == 0 {
		return fmt.Errorf("frequency axis is empty")
	}
	for i, v := range f {
		if math.IsNaN(v) || v <= 0 {
			return fmt.Errorf("frequency %d is %v, must be positive", i, v)
		}
		if i > 0 && v <= f[i-1] {
			return fmt.Errorf("frequency axis not strictly increasing at %d (%v after %v)", i, v, f[i-1])
		}
	}
	return nil
}

// Log10 returns log10 of every frequency, the regressor for aperiodic fits
func (f FrequencyAxis) Log10() []float64 {
	out := make([]float64, len(f))
	for i, v := range f {
		out[i] = math.Log10(v)
	}
	return out
}
