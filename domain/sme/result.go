package sme

import (
	"smefit/domain/spectral"
)

// ContrastResult is the output of one SME run.
//
// Statistic tensors are shaped (frequency, electrode[, time]) for the
// residual family and (electrode[, time]) for slopes and offsets, in the
// orientation of the caller's input. Deltas are recalled minus not
// recalled. In ModeDeltasOnly the t and p tensors are nil.
//
// Field names in JSON are the analysis result keys consumed by downstream
// tooling: ts_resid, ps_resid, ts_slopes, ps_slopes, ts_offsets,
// ps_offsets, delta_resid, delta_slopes, delta_offsets, p_recall, recalled.
type ContrastResult struct {
	Mode ContrastMode `json:"mode"`

	TsResid   *spectral.Tensor `json:"ts_resid,omitempty"`
	PsResid   *spectral.Tensor `json:"ps_resid,omitempty"`
	TsSlopes  *spectral.Tensor `json:"ts_slopes,omitempty"`
	PsSlopes  *spectral.Tensor `json:"ps_slopes,omitempty"`
	TsOffsets *spectral.Tensor `json:"ts_offsets,omitempty"`
	PsOffsets *spectral.Tensor `json:"ps_offsets,omitempty"`

	DeltaResid   *spectral.Tensor `json:"delta_resid"`
	DeltaSlopes  *spectral.Tensor `json:"delta_slopes"`
	DeltaOffsets *spectral.Tensor `json:"delta_offsets"`

	PRecall  float64                `json:"p_recall"`
	Recalled RecallLabels           `json:"recalled"`
	Freqs    spectral.FrequencyAxis `json:"freqs"`
}

// HasStats reports whether per-coordinate t and p values are present
func (r *ContrastResult) HasStats() bool {
	return r.Mode == ModeWithStats
}

// StatTensors returns the named statistic arrays present in the result, in
// a stable order. Export and reporting iterate this instead of hardcoding
// the field list.
func (r *ContrastResult) StatTensors() []NamedTensor {
	out := []NamedTensor{
		{"delta_resid", r.DeltaResid},
		{"delta_slopes", r.DeltaSlopes},
		{"delta_offsets", r.DeltaOffsets},
	}
	if r.HasStats() {
		out = append(out,
			NamedTensor{"ts_resid", r.TsResid},
			NamedTensor{"ps_resid", r.PsResid},
			NamedTensor{"ts_slopes", r.TsSlopes},
			NamedTensor{"ps_slopes", r.PsSlopes},
			NamedTensor{"ts_offsets", r.TsOffsets},
			NamedTensor{"ps_offsets", r.PsOffsets},
		)
	}
	return out
}

// NamedTensor pairs a statistic array with its result key
type NamedTensor struct {
	Key    string
	Tensor *spectral.Tensor
}
