package ui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"smefit/domain/core"
	"smefit/internal/report"
	"smefit/ports"
)

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleListRuns returns run summaries, filterable by subject, task, and
// limit query parameters
func (a *App) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filters := ports.RunFilters{
		Subject: r.URL.Query().Get("subject"),
		Task:    r.URL.Query().Get("task"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filters.Limit = limit
	}

	runs, err := a.store.ListRuns(r.Context(), filters)
	if err != nil {
		a.log.Error("list runs: %v", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []ports.RunSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// handleGetRun returns one run with its full result payload
func (a *App) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleRunReport renders the run's Markdown report as HTML
func (a *App) handleRunReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadRun(w, r)
	if !ok {
		return
	}

	md := report.RunMarkdown(*rec)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	body := markdown.Render(p.Parse([]byte(md)), renderer)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageShell, rec.ID, body)
}

// loadRun resolves the {id} parameter against the store, writing the error
// response itself on failure
func (a *App) loadRun(w http.ResponseWriter, r *http.Request) (*ports.RunRecord, bool) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return nil, false
	}
	rec, err := a.store.GetRun(r.Context(), id)
	if core.IsNotFoundError(err) {
		http.Error(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		a.log.Error("get run %s: %v", id, err)
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return nil, false
	}
	return rec, true
}

const pageShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>SME run %s</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: right; }
th { background: #f0f0f0; }
</style>
</head>
<body>
%s
</body>
</html>
`
