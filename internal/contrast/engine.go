package contrast

import (
	"fmt"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/domain/spectral"
)

// Engine runs the recalled vs not-recalled comparison over the per-unit fit
// results of one analysis run.
type Engine struct {
	// Welch switches every t-test to the unequal-variance form
	Welch bool
}

// Input carries everything the contrast stage needs. FitLabels splits the
// rows actually fitted: the real labels in per-event mode, the two-row
// recalled/not-recalled pseudo-labels in condition-mean mode. Recalled is
// always the real event labels and flows into the result untouched.
type Input struct {
	Units     []spectral.FitResult
	FitLabels sme.RecallLabels
	Recalled  sme.RecallLabels
	Orient    spectral.Orientation
	Mode      sme.ContrastMode
	Freqs     spectral.FrequencyAxis
}

// stackedStats are the statistic tensors in normalized orientation, units
// on the trailing axis. The t and p tensors are nil in deltas-only mode.
type stackedStats struct {
	tResid, pResid, deltaResid    *spectral.Tensor
	tSlopes, pSlopes, deltaSlopes *spectral.Tensor
	tOffs, pOffs, deltaOffs       *spectral.Tensor
}

// Contrast computes group deltas (and, in per-event mode, t and p) at every
// coordinate, stacks units along the trailing axis, and returns the result
// restored to the input orientation.
func (e Engine) Contrast(in Input) (*sme.ContrastResult, error) {
	if len(in.Units) == 0 {
		return nil, core.NewPreconditionError("units", "no fit results to contrast")
	}
	ref := in.Units[0]
	events := ref.Slopes.Dim(0)
	nf := ref.Residual.Dim(1)
	if err := in.FitLabels.Validate(events); err != nil {
		return nil, core.NewPreconditionError("labels", err.Error())
	}
	for u, unit := range in.Units {
		if err := unit.Validate(events, nf); err != nil {
			return nil, fmt.Errorf("unit %d: %w", u, err)
		}
		if !unit.Residual.SameShape(ref.Residual) || !unit.Slopes.SameShape(ref.Slopes) {
			return nil, fmt.Errorf("unit %d shape differs from unit 0", u)
		}
	}

	subs := 0
	if ref.Residual.Rank() == 3 {
		subs = ref.Residual.Dim(2)
	}
	nu := len(in.Units)

	residShape := []int{nf, nu}
	paramShape := []int{nu}
	if subs > 0 {
		residShape = []int{nf, subs, nu}
		paramShape = []int{subs, nu}
	}

	withStats := in.Mode == sme.ModeWithStats
	stack := stackedStats{
		deltaResid:  spectral.New(residShape...),
		deltaSlopes: spectral.New(paramShape...),
		deltaOffs:   spectral.New(paramShape...),
	}
	if withStats {
		stack.tResid, stack.pResid = spectral.New(residShape...), spectral.New(residShape...)
		stack.tSlopes, stack.pSlopes = spectral.New(paramShape...), spectral.New(paramShape...)
		stack.tOffs, stack.pOffs = spectral.New(paramShape...), spectral.New(paramShape...)
	}

	recIdx, notIdx := in.FitLabels.Split()
	residInner := nf
	paramInner := 1
	if subs > 0 {
		residInner = nf * subs
		paramInner = subs
	}
	xbuf := make([]float64, len(recIdx))
	ybuf := make([]float64, len(notIdx))

	for u, unit := range in.Units {
		e.fillUnit(unit.Residual.Data(), residInner, u, nu, recIdx, notIdx, xbuf, ybuf,
			stack.deltaResid, stack.tResid, stack.pResid)
		e.fillUnit(unit.Slopes.Data(), paramInner, u, nu, recIdx, notIdx, xbuf, ybuf,
			stack.deltaSlopes, stack.tSlopes, stack.pSlopes)
		e.fillUnit(unit.Offsets.Data(), paramInner, u, nu, recIdx, notIdx, xbuf, ybuf,
			stack.deltaOffs, stack.tOffs, stack.pOffs)
	}

	return assembleResult(in, stack), nil
}

// fillUnit writes one unit's statistics for one array family. data is an
// (events, inner) row-major block; outputs live at stacked offset m*nu+u.
func (e Engine) fillUnit(data []float64, inner, u, nu int, recIdx, notIdx []int, xbuf, ybuf []float64, delta, tOut, pOut *spectral.Tensor) {
	for m := 0; m < inner; m++ {
		gather(xbuf, data, recIdx, inner, m)
		gather(ybuf, data, notIdx, inner, m)

		out := m*nu + u
		delta.Data()[out] = nanMean(xbuf) - nanMean(ybuf)
		if tOut != nil {
			tStat, p := twoSampleTTest(xbuf, ybuf, e.Welch)
			tOut.Data()[out] = tStat
			pOut.Data()[out] = p
		}
	}
}

// gather copies the per-event values at inner coordinate m for the given
// event rows
func gather(dst, data []float64, rows []int, inner, m int) {
	for k, r := range rows {
		dst[k] = data[r*inner+m]
	}
}
