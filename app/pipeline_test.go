package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/internal/synth"
	"smefit/ports"
)

type memStore struct {
	saved []ports.RunRecord
	fail  error
}

func (m *memStore) SaveRun(ctx context.Context, rec ports.RunRecord) error {
	if m.fail != nil {
		return m.fail
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memStore) GetRun(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	for i := range m.saved {
		if m.saved[i].ID == id {
			return &m.saved[i], nil
		}
	}
	return nil, core.ErrRunNotFound
}

func (m *memStore) ListRuns(ctx context.Context, f ports.RunFilters) ([]ports.RunSummary, error) {
	out := make([]ports.RunSummary, 0, len(m.saved))
	for _, r := range m.saved {
		out = append(out, ports.RunSummary{ID: r.ID, Subject: r.Subject})
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func pipelineState(t *testing.T) *PipelineState {
	t.Helper()
	cfg := synth.DefaultConfig()
	cfg.Events = 40
	cfg.NFreqs = 15
	cfg.Electrodes = 4
	data, err := synth.Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	labels, err := data.Labels(sme.LabelByRecalled())
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	return &PipelineState{Data: data, Labels: labels}
}

func TestPipelineAnalyzeThenPersist(t *testing.T) {
	st := pipelineState(t)
	store := &memStore{}
	svc := NewAnalysisService(nil)

	p := NewPipeline(nil,
		AnalyzeStep{Service: svc, Key: "robust", Config: sme.DefaultConfig()},
		PersistStep{Store: store},
	)
	if err := p.Run(context.Background(), st); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	res, ok := st.Results["robust"]
	if !ok || res == nil {
		t.Fatal("analyze step did not record its result")
	}
	if st.Last != res {
		t.Fatal("Last does not point at the most recent result")
	}
	if len(store.saved) != 1 {
		t.Fatalf("store holds %d records, want 1", len(store.saved))
	}
	if len(st.SavedRuns) != 1 || st.SavedRuns[0].ID != store.saved[0].ID {
		t.Fatal("saved run not tracked in state")
	}
	if store.saved[0].Subject != st.Data.Subject {
		t.Errorf("persisted subject = %s, want %s", store.saved[0].Subject, st.Data.Subject)
	}
	if store.saved[0].Result == nil {
		t.Error("persisted record has no result payload")
	}
}

func TestPipelineRunsMultipleAnalyses(t *testing.T) {
	st := pipelineState(t)
	svc := NewAnalysisService(nil)

	meanCfg := sme.DefaultConfig()
	meanCfg.Strategy = sme.StrategyOscillationDecomposition

	p := NewPipeline(nil,
		AnalyzeStep{Service: svc, Key: "robust", Config: sme.DefaultConfig()},
		AnalyzeStep{Service: svc, Key: "oscillation", Config: meanCfg},
	)
	if err := p.Run(context.Background(), st); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if len(st.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(st.Results))
	}
	if st.Results["robust"].Mode != sme.ModeWithStats {
		t.Errorf("robust mode = %q", st.Results["robust"].Mode)
	}
	if st.Results["oscillation"].Mode != sme.ModeDeltasOnly {
		t.Errorf("oscillation mode = %q", st.Results["oscillation"].Mode)
	}
	if st.Last != st.Results["oscillation"] {
		t.Error("Last does not track the final step")
	}
}

func TestPipelineAbortsOnFailure(t *testing.T) {
	st := pipelineState(t)
	store := &memStore{}
	svc := NewAnalysisService(nil)

	bad := sme.DefaultConfig()
	bad.Robust.Norm = "cauchy"

	p := NewPipeline(nil,
		AnalyzeStep{Service: svc, Key: "broken", Config: bad},
		PersistStep{Store: store},
	)
	err := p.Run(context.Background(), st)
	if err == nil {
		t.Fatal("expected pipeline failure")
	}
	if !core.IsPreconditionError(err) {
		t.Errorf("error %v does not unwrap to the precondition sentinel", err)
	}
	if len(store.saved) != 0 {
		t.Fatal("persist step ran after a failed analyze step")
	}
}

func TestPersistBeforeAnalyzeFails(t *testing.T) {
	st := pipelineState(t)
	p := NewPipeline(nil, PersistStep{Store: &memStore{}})
	if err := p.Run(context.Background(), st); err == nil {
		t.Fatal("expected error persisting before any analysis")
	}
}

func TestPersistSurfacesStoreError(t *testing.T) {
	st := pipelineState(t)
	boom := errors.New("disk full")
	p := NewPipeline(nil,
		AnalyzeStep{Service: NewAnalysisService(nil), Key: "robust", Config: sme.DefaultConfig()},
		PersistStep{Store: &memStore{fail: boom}},
	)
	err := p.Run(context.Background(), st)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped store failure", err)
	}
}

func TestPipelineRequiresSubjectData(t *testing.T) {
	p := NewPipeline(nil)
	if err := p.Run(context.Background(), &PipelineState{}); err == nil {
		t.Fatal("expected error for state without subject data")
	}
}

func TestPipelineExportsWorkbook(t *testing.T) {
	st := pipelineState(t)
	store := &memStore{}
	path := filepath.Join(t.TempDir(), "run.xlsx")

	p := NewPipeline(nil,
		AnalyzeStep{Service: NewAnalysisService(nil), Key: "robust", Config: sme.DefaultConfig()},
		PersistStep{Store: store},
		ExportStep{Path: path},
	)
	if err := p.Run(context.Background(), st); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	// the export step reuses the persisted record, so the workbook and the
	// store name the same run
	id, err := f.GetCellValue("run", "B1")
	if err != nil {
		t.Fatalf("read run id cell: %v", err)
	}
	if id != st.SavedRuns[0].ID.String() {
		t.Errorf("workbook run id = %q, want %q", id, st.SavedRuns[0].ID)
	}

	found := false
	for _, name := range f.GetSheetList() {
		if name == "delta_resid" {
			found = true
		}
	}
	if !found {
		t.Errorf("workbook sheets %v missing delta_resid", f.GetSheetList())
	}
}

func TestPipelineExportWithoutPersist(t *testing.T) {
	st := pipelineState(t)
	path := filepath.Join(t.TempDir(), "run.xlsx")

	p := NewPipeline(nil,
		AnalyzeStep{Service: NewAnalysisService(nil), Key: "robust", Config: sme.DefaultConfig()},
		ExportStep{Path: path},
	)
	if err := p.Run(context.Background(), st); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	id, err := f.GetCellValue("run", "B1")
	if err != nil || id == "" {
		t.Fatalf("run id cell = %q, %v", id, err)
	}
}

func TestExportBeforeAnalyzeFails(t *testing.T) {
	st := pipelineState(t)
	p := NewPipeline(nil, ExportStep{Path: filepath.Join(t.TempDir(), "run.xlsx")})
	if err := p.Run(context.Background(), st); err == nil {
		t.Fatal("expected error exporting before any analysis")
	}
}
