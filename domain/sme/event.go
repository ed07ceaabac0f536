package sme

import (
	"fmt"
)

// Event is the behavioral record for one study trial, the row the recall
// labelers consume. RecallLatencyMS is negative when the item was never
// recalled.
type Event struct {
	Item            string  `json:"item"`
	List            int     `json:"list"`
	SerialPos       int     `json:"serial_pos"`
	Recalled        bool    `json:"recalled"`
	RecallLatencyMS float64 `json:"recall_latency_ms"`
}

// Labeler derives the recall label vector from event metadata. The analysis
// core never inspects events itself; whatever definition of "recalled" an
// experiment uses is injected here.
type Labeler func(events []Event) (RecallLabels, error)

// LabelByRecalled labels events straight from their recalled flag
func LabelByRecalled() Labeler {
	return func(events []Event) (RecallLabels, error) {
		if len(events) == 0 {
			return nil, fmt.Errorf("no events to label")
		}
		labels := make(RecallLabels, len(events))
		for i, ev := range events {
			labels[i] = ev.Recalled
		}
		return labels, nil
	}
}

// LabelByLatency labels an event recalled only when it was recalled within
// maxMS milliseconds. Slow recalls count as failures.
func LabelByLatency(maxMS float64) Labeler {
	return func(events []Event) (RecallLabels, error) {
		if len(events) == 0 {
			return nil, fmt.Errorf("no events to label")
		}
		if maxMS <= 0 {
			return nil, fmt.Errorf("latency bound must be positive, got %v", maxMS)
		}
		labels := make(RecallLabels, len(events))
		for i, ev := range events {
			labels[i] = ev.Recalled && ev.RecallLatencyMS >= 0 && ev.RecallLatencyMS <= maxMS
		}
		return labels, nil
	}
}

// LabelerByName resolves the labelers addressable from configuration
func LabelerByName(name string, latencyMS float64) (Labeler, error) {
	switch name {
	case "", "recalled":
		return LabelByRecalled(), nil
	case "latency":
		return LabelByLatency(latencyMS), nil
	default:
		return nil, fmt.Errorf("unknown labeler %q", name)
	}
}
