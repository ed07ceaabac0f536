package ports

import (
	"context"

	"smefit/domain/core"
	"smefit/domain/sme"
)

// RunRecord is one persisted analysis run: identity, provenance, the
// headline numbers list views need, and the full result payload.
type RunRecord struct {
	ID      core.RunID
	Subject core.SubjectID
	Task    string
	Montage int

	Strategy string
	Mode     string
	PRecall  float64

	Events     int
	Freqs      int
	Electrodes int
	TimeBins   int // 0 for averaged (rank-3) power

	CreatedAt core.Timestamp
	Result    *sme.ContrastResult
}

// RunSummary is the payload-free projection used by list views
type RunSummary struct {
	ID      core.RunID
	Subject core.SubjectID
	Task    string
	Montage int

	Strategy string
	Mode     string
	PRecall  float64

	Events     int
	Freqs      int
	Electrodes int
	TimeBins   int

	CreatedAt core.Timestamp
}

// RunFilters narrows ListRuns; zero values mean no constraint
type RunFilters struct {
	Subject string
	Task    string
	Limit   int
}

// ResultStore persists analysis runs
type ResultStore interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id core.RunID) (*RunRecord, error)
	ListRuns(ctx context.Context, filters RunFilters) ([]RunSummary, error)
	Close() error
}
