package sme

import (
	"fmt"

	"smefit/domain/core"
	"smefit/domain/spectral"
)

// SubjectData bundles one subject's power tensor with its frequency axis
// and event metadata. This is the unit the data cache stores and the
// analysis pipeline consumes.
type SubjectData struct {
	Subject core.SubjectID
	Task    string
	Montage int

	Freqs  spectral.FrequencyAxis
	Power  *spectral.Tensor
	Events []Event
}

// Validate checks internal consistency before analysis or caching
func (d *SubjectData) Validate() error {
	if d.Subject.String() == "" {
		return fmt.Errorf("subject id is empty")
	}
	if d.Power == nil {
		return fmt.Errorf("power tensor is nil")
	}
	if r := d.Power.Rank(); r != 3 && r != 4 {
		return fmt.Errorf("power tensor rank %d, want 3 or 4", r)
	}
	if err := d.Freqs.Validate(); err != nil {
		return fmt.Errorf("frequency axis: %w", err)
	}
	if d.Power.Dim(1) != len(d.Freqs) {
		return fmt.Errorf("power frequency axis %d does not match %d frequencies", d.Power.Dim(1), len(d.Freqs))
	}
	if len(d.Events) != d.Power.Dim(0) {
		return fmt.Errorf("%d events for %d power rows", len(d.Events), d.Power.Dim(0))
	}
	return nil
}

// Labels derives the recall vector using the given labeler
func (d *SubjectData) Labels(labeler Labeler) (RecallLabels, error) {
	labels, err := labeler(d.Events)
	if err != nil {
		return nil, err
	}
	if err := labels.Validate(d.Power.Dim(0)); err != nil {
		return nil, err
	}
	return labels, nil
}
