package ui

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/domain/spectral"
	"smefit/ports"
)

type fakeStore struct {
	recs map[core.RunID]ports.RunRecord
}

func (f *fakeStore) SaveRun(ctx context.Context, rec ports.RunRecord) error {
	f.recs[rec.ID] = rec
	return nil
}

func (f *fakeStore) GetRun(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, core.ErrRunNotFound
	}
	return &rec, nil
}

func (f *fakeStore) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	var out []ports.RunSummary
	for _, rec := range f.recs {
		if filters.Subject != "" && rec.Subject.String() != filters.Subject {
			continue
		}
		out = append(out, ports.RunSummary{
			ID: rec.ID, Subject: rec.Subject, Task: rec.Task,
			Strategy: rec.Strategy, Mode: rec.Mode, PRecall: rec.PRecall,
		})
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func testApp() (*App, ports.RunRecord) {
	rec := ports.RunRecord{
		ID:         core.RunID("run-9"),
		Subject:    core.SubjectID("R1065J"),
		Task:       "FR1",
		Strategy:   string(sme.StrategyRobustRegression),
		Mode:       string(sme.ModeWithStats),
		PRecall:    0.4,
		Events:     80,
		Freqs:      2,
		Electrodes: 2,
		CreatedAt:  core.Now(),
		Result: &sme.ContrastResult{
			Mode:         sme.ModeWithStats,
			TsResid:      spectral.FromSlice([]float64{6.5, 0.1, -0.2, 0.3}, 2, 2),
			PsResid:      spectral.FromSlice([]float64{1e-6, 0.9, 0.8, 0.7}, 2, 2),
			TsSlopes:     spectral.FromSlice([]float64{0.1, 0.2}, 2),
			PsSlopes:     spectral.FromSlice([]float64{0.5, 0.6}, 2),
			TsOffsets:    spectral.FromSlice([]float64{0.1, 0.2}, 2),
			PsOffsets:    spectral.FromSlice([]float64{0.5, 0.6}, 2),
			DeltaResid:   spectral.FromSlice([]float64{0.4, 0.0, math.NaN(), 0.0}, 2, 2),
			DeltaSlopes:  spectral.FromSlice([]float64{0, 0}, 2),
			DeltaOffsets: spectral.FromSlice([]float64{0, 0}, 2),
			Recalled:     sme.RecallLabels{true, false},
			Freqs:        spectral.FrequencyAxis{5, 40},
		},
	}
	store := &fakeStore{recs: map[core.RunID]ports.RunRecord{rec.ID: rec}}
	return NewApp(Config{Port: "0"}, store, nil), rec
}

func TestHealthz(t *testing.T) {
	app, _ := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestListRuns(t *testing.T) {
	app, rec := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var runs []ports.RunSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rec.ID, runs[0].ID)
	assert.Equal(t, rec.Subject, runs[0].Subject)
}

func TestListRunsFilterMiss(t *testing.T) {
	app, _ := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs?subject=NOPE", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()), "empty result should be a JSON array")
}

func TestListRunsBadLimit(t *testing.T) {
	app, _ := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs?limit=lots", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetRun(t *testing.T) {
	app, rec := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/run-9", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Contains(t, string(got["ID"]), string(rec.ID))

	var result map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(got["Result"], &result))
	assert.Contains(t, result, "ts_resid")
	assert.Contains(t, result, "delta_resid")
	assert.Contains(t, result, "p_recall")
}

func TestGetRunNotFound(t *testing.T) {
	app, _ := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/absent", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRunReportHTML(t *testing.T) {
	app, _ := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/run-9/report", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	body := rr.Body.String()
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "R1065J")
	assert.Contains(t, body, "<table>", "markdown tables should render as HTML tables")
	assert.Contains(t, body, "<h1")
}

func TestRunReportNotFound(t *testing.T) {
	app, _ := testApp()
	rr := httptest.NewRecorder()
	app.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/absent/report", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
