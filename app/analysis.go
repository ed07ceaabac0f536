package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"smefit/adapters/fit"
	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/domain/spectral"
	"smefit/internal"
	"smefit/internal/contrast"
	"smefit/internal/parallel"
	"smefit/ports"
)

// AnalysisService runs the subsequent memory effect analysis: background
// fits per analysis unit over a worker pool, then the recalled vs not
// recalled contrast.
type AnalysisService struct {
	log *internal.Logger
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(log *internal.Logger) *AnalysisService {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &AnalysisService{log: log.WithTag("Analysis")}
}

// AnalysisRequest defines one run. Power is (events, frequencies,
// electrodes[, time bins]); values are log10 power when Config.LogPower is
// set, linear power otherwise. Labels align with the event axis.
type AnalysisRequest struct {
	Subject core.SubjectID
	Task    string
	Montage int

	Freqs  spectral.FrequencyAxis
	Power  *spectral.Tensor
	Labels sme.RecallLabels
	Config sme.AnalysisConfig
}

// Run executes the analysis and returns the contrast result in the
// orientation of the caller's input. All precondition failures surface
// before any fitting starts; the input tensors are never mutated.
func (s *AnalysisService) Run(ctx context.Context, req AnalysisRequest) (*sme.ContrastResult, error) {
	started := time.Now()
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	fitter, err := fit.New(req.Config)
	if err != nil {
		return nil, core.NewPreconditionError("config", err.Error())
	}

	// one transform up front puts the tensor in the fitter's power space
	work := req.Power
	if fitter.WantsLogPower() != req.Config.LogPower {
		if fitter.WantsLogPower() {
			work = work.Map(math.Log10)
		} else {
			work = work.Map(func(v float64) float64 { return math.Pow(10, v) })
		}
	}

	mode := req.Config.Mode()
	fitLabels := req.Labels
	if mode == sme.ModeDeltasOnly {
		work = stackConditionMeans(work, req.Labels)
		fitLabels = sme.RecallLabels{true, false}
	}

	norm, orient, err := spectral.NormalizeUnits(work)
	if err != nil {
		return nil, err
	}

	units := norm.Dim(norm.Rank() - 1)
	s.log.Info("subject=%s strategy=%s mode=%s units=%d events=%d workers=%d",
		req.Subject, req.Config.Strategy, mode, units, req.Power.Dim(0), req.Config.Workers)

	results, err := parallel.MapOrdered(ctx, req.Config.Workers, units,
		func(ctx context.Context, i int) (spectral.FitResult, error) {
			return fitter.Fit(req.Freqs, norm.SubLast(i))
		})
	if err != nil {
		return nil, err
	}

	engine := contrast.Engine{Welch: req.Config.Welch}
	res, err := engine.Contrast(contrast.Input{
		Units:     results,
		FitLabels: fitLabels,
		Recalled:  req.Labels,
		Orient:    orient,
		Mode:      mode,
		Freqs:     req.Freqs,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subject=%s done in %s (p_recall=%.3f)", req.Subject, time.Since(started).Round(time.Millisecond), res.PRecall)
	return res, nil
}

// validateRequest applies every precondition eagerly so misaligned inputs
// never reach the pool
func validateRequest(req AnalysisRequest) error {
	if req.Power == nil {
		return core.NewPreconditionError("power", "tensor is nil")
	}
	if r := req.Power.Rank(); r != 3 && r != 4 {
		return core.NewPreconditionError("power", fmt.Sprintf("rank %d, want 3 or 4", r))
	}
	if err := req.Freqs.Validate(); err != nil {
		return core.NewPreconditionError("freqs", err.Error())
	}
	if req.Power.Dim(1) != len(req.Freqs) {
		return core.NewPreconditionError("freqs",
			fmt.Sprintf("power frequency axis %d does not match %d frequencies", req.Power.Dim(1), len(req.Freqs)))
	}
	if err := req.Labels.Validate(req.Power.Dim(0)); err != nil {
		return core.NewPreconditionError("labels", err.Error())
	}
	if err := req.Config.Validate(); err != nil {
		return core.NewPreconditionError("config", err.Error())
	}
	return nil
}

// stackConditionMeans replaces the event axis with two pseudo-events: the
// across-event mean spectrum of each recall condition. An empty condition
// yields a NaN row, which degrades to NaN outputs downstream instead of an
// error.
func stackConditionMeans(power *spectral.Tensor, labels sme.RecallLabels) *spectral.Tensor {
	recIdx, notIdx := labels.Split()
	recMean := spectral.MeanOverEvents(power, recIdx)
	notMean := spectral.MeanOverEvents(power, notIdx)

	inner := recMean.Len()
	out := spectral.New(append([]int{2}, recMean.Shape()...)...)
	copy(out.Data()[:inner], recMean.Data())
	copy(out.Data()[inner:], notMean.Data())
	return out
}

// BuildRunRecord packages a finished run for persistence
func BuildRunRecord(req AnalysisRequest, res *sme.ContrastResult) ports.RunRecord {
	rec := ports.RunRecord{
		ID:        core.NewRunID(),
		Subject:   req.Subject,
		Task:      req.Task,
		Montage:   req.Montage,
		Strategy:  string(req.Config.Strategy),
		Mode:      string(res.Mode),
		PRecall:   res.PRecall,
		Events:    req.Power.Dim(0),
		Freqs:     len(req.Freqs),
		CreatedAt: core.Now(),
		Result:    res,
	}
	rec.Electrodes = req.Power.Dim(2)
	if req.Power.Rank() == 4 {
		rec.TimeBins = req.Power.Dim(3)
	}
	return rec
}
