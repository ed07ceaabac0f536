package contrast

import (
	"smefit/domain/sme"
	"smefit/domain/spectral"
)

// assembleResult restores every statistic tensor to the caller's axis
// orientation and packages the run output. Restoration swaps the trailing
// two axes of each stacked tensor when the input was normalized, bringing
// residual statistics back to (frequency, electrode[, time]) and parameter
// statistics back to (electrode[, time]).
func assembleResult(in Input, stack stackedStats) *sme.ContrastResult {
	restore := func(t *spectral.Tensor) *spectral.Tensor {
		if t == nil {
			return nil
		}
		return in.Orient.RestoreStats(t)
	}

	return &sme.ContrastResult{
		Mode: in.Mode,

		TsResid:   restore(stack.tResid),
		PsResid:   restore(stack.pResid),
		TsSlopes:  restore(stack.tSlopes),
		PsSlopes:  restore(stack.pSlopes),
		TsOffsets: restore(stack.tOffs),
		PsOffsets: restore(stack.pOffs),

		DeltaResid:   restore(stack.deltaResid),
		DeltaSlopes:  restore(stack.deltaSlopes),
		DeltaOffsets: restore(stack.deltaOffs),

		PRecall:  in.Recalled.Rate(),
		Recalled: append(sme.RecallLabels(nil), in.Recalled...),
		Freqs:    append(spectral.FrequencyAxis(nil), in.Freqs...),
	}
}
