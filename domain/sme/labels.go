// Package sme defines the subsequent-memory-effect analysis contract: the
// recall label vector, the analysis configuration, and the contrast result
// returned to callers and persisted by the result store.
package sme

import (
	"fmt"
	"math"
)

// RecallLabels marks, per event, whether the studied item was later
// recalled. Index i labels row i of the power tensor's event axis. The
// slice is boolean so a missing label cannot be represented; callers decide
// upstream how unlabeled events are handled.
type RecallLabels []bool

// CountRecalled returns the number of recalled events
func (l RecallLabels) CountRecalled() int {
	n := 0
	for _, r := range l {
		if r {
			n++
		}
	}
	return n
}

// Rate returns the fraction of recalled events (NaN for an empty vector)
func (l RecallLabels) Rate() float64 {
	if len(l) == 0 {
		return math.NaN()
	}
	return float64(l.CountRecalled()) / float64(len(l))
}

// Split returns the event indices of each group in input order
func (l RecallLabels) Split() (recalled, notRecalled []int) {
	for i, r := range l {
		if r {
			recalled = append(recalled, i)
		} else {
			notRecalled = append(notRecalled, i)
		}
	}
	return recalled, notRecalled
}

// Validate checks the label vector lines up with the event axis. A vector
// with only one class is still valid; the contrast stage reports NaN
// statistics for it rather than failing the run.
func (l RecallLabels) Validate(events int) error {
	if len(l) == 0 {
		return fmt.Errorf("recall labels are empty")
	}
	if len(l) != events {
		return fmt.Errorf("%d recall labels for %d events", len(l), events)
	}
	return nil
}
