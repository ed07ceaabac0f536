package app

import (
	"context"
	"fmt"
	"time"

	"smefit/adapters/export"
	"smefit/domain/sme"
	"smefit/internal"
	"smefit/ports"
)

// PipelineState flows through the steps of one subject's pipeline. Steps
// read the subject data and append results; the data itself is treated as
// read-only.
type PipelineState struct {
	Data   *sme.SubjectData
	Labels sme.RecallLabels

	// Results accumulates named outputs; Last always points at the most
	// recent one so downstream steps can build on their predecessor.
	Results map[string]*sme.ContrastResult
	Last    *sme.ContrastResult

	lastRequest AnalysisRequest

	// SavedRuns collects the records persisted by store steps
	SavedRuns []ports.RunRecord
}

// Step is one stage of a subject pipeline
type Step interface {
	Name() string
	Run(ctx context.Context, st *PipelineState) error
}

// Pipeline runs steps sequentially over shared state, aborting on the
// first failure.
type Pipeline struct {
	log   *internal.Logger
	steps []Step
}

// NewPipeline creates a pipeline from ordered steps
func NewPipeline(log *internal.Logger, steps ...Step) *Pipeline {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Pipeline{log: log.WithTag("Pipeline"), steps: steps}
}

// Run executes every step in order
func (p *Pipeline) Run(ctx context.Context, st *PipelineState) error {
	if st.Data == nil {
		return fmt.Errorf("pipeline state has no subject data")
	}
	if st.Results == nil {
		st.Results = make(map[string]*sme.ContrastResult)
	}
	for i, step := range p.steps {
		started := time.Now()
		p.log.Info("step %d/%d %s: start", i+1, len(p.steps), step.Name())
		if err := step.Run(ctx, st); err != nil {
			p.log.Error("step %s failed: %v", step.Name(), err)
			return fmt.Errorf("pipeline step %s: %w", step.Name(), err)
		}
		p.log.Info("step %s: done in %s", step.Name(), time.Since(started).Round(time.Millisecond))
	}
	return nil
}

// AnalyzeStep runs one configured analysis over the state's subject data
type AnalyzeStep struct {
	Service *AnalysisService
	Key     string
	Config  sme.AnalysisConfig
}

// Name returns the step name
func (s AnalyzeStep) Name() string {
	return "analyze:" + s.Key
}

// Run executes the analysis and records the result under the step key
func (s AnalyzeStep) Run(ctx context.Context, st *PipelineState) error {
	req := AnalysisRequest{
		Subject: st.Data.Subject,
		Task:    st.Data.Task,
		Montage: st.Data.Montage,
		Freqs:   st.Data.Freqs,
		Power:   st.Data.Power,
		Labels:  st.Labels,
		Config:  s.Config,
	}
	res, err := s.Service.Run(ctx, req)
	if err != nil {
		return err
	}
	st.Results[s.Key] = res
	st.Last = res
	st.lastRequest = req
	return nil
}

// PersistStep saves the most recent result through the store port
type PersistStep struct {
	Store ports.ResultStore
}

// Name returns the step name
func (s PersistStep) Name() string {
	return "persist"
}

// Run persists the last result; it is an error to persist before analyzing
func (s PersistStep) Run(ctx context.Context, st *PipelineState) error {
	if st.Last == nil {
		return fmt.Errorf("no result to persist")
	}
	rec := BuildRunRecord(st.lastRequest, st.Last)
	if err := s.Store.SaveRun(ctx, rec); err != nil {
		return err
	}
	st.SavedRuns = append(st.SavedRuns, rec)
	return nil
}

// ExportStep writes the most recent result to an xlsx workbook at Path
type ExportStep struct {
	Path string
}

// Name returns the step name
func (s ExportStep) Name() string {
	return "export"
}

// Run exports the last result. When a persist step already built a record
// for it, that record is reused so the workbook and the store agree on the
// run id.
func (s ExportStep) Run(ctx context.Context, st *PipelineState) error {
	if st.Last == nil {
		return fmt.Errorf("no result to export")
	}
	rec := BuildRunRecord(st.lastRequest, st.Last)
	if n := len(st.SavedRuns); n > 0 && st.SavedRuns[n-1].Result == st.Last {
		rec = st.SavedRuns[n-1]
	}
	return export.WriteWorkbook(s.Path, rec)
}
