package ports

import (
	"context"

	"smefit/domain/core"
	"smefit/domain/sme"
)

// SubjectKey addresses one subject's cached power data
type SubjectKey struct {
	Subject core.SubjectID
	Task    string
	Montage int
}

// SubjectSource provides subject power data to the pipeline and CLI.
// Implementations decide where the tensors live (local cache, cluster
// filesystem) and how expensive a miss is.
type SubjectSource interface {
	Load(ctx context.Context, key SubjectKey) (*sme.SubjectData, error)
	Save(ctx context.Context, data *sme.SubjectData) error
	Exists(key SubjectKey) bool
}
