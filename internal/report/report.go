package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"smefit/domain/spectral"
	"smefit/ports"
)

const (
	// significanceLevel gates which residual effects the report lists
	significanceLevel = 0.05
	// maxHits caps the effects table
	maxHits = 15
)

// hit is one listed coordinate of the residual statistic tensors
type hit struct {
	freqHz float64
	elec   int
	bin    int // -1 for averaged power
	t      float64
	p      float64
	delta  float64
}

// RunMarkdown renders one persisted run as a Markdown document: provenance
// header, the strongest residual effects, and per-electrode counts.
func RunMarkdown(rec ports.RunRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# SME run %s\n\n", rec.ID)
	fmt.Fprintf(&b, "- **Subject:** %s\n", rec.Subject)
	fmt.Fprintf(&b, "- **Task:** %s (montage %d)\n", rec.Task, rec.Montage)
	fmt.Fprintf(&b, "- **Strategy:** %s, mode %s\n", rec.Strategy, rec.Mode)
	fmt.Fprintf(&b, "- **Events:** %d (recall rate %.1f%%)\n", rec.Events, rec.PRecall*100)
	if rec.TimeBins > 0 {
		fmt.Fprintf(&b, "- **Dimensions:** %d frequencies x %d electrodes x %d time bins\n", rec.Freqs, rec.Electrodes, rec.TimeBins)
	} else {
		fmt.Fprintf(&b, "- **Dimensions:** %d frequencies x %d electrodes\n", rec.Freqs, rec.Electrodes)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Created:** %s\n", rec.CreatedAt)
	}
	b.WriteString("\n")

	res := rec.Result
	if res == nil {
		b.WriteString("No result payload stored for this run.\n")
		return b.String()
	}

	if res.HasStats() {
		hits := collectSignificant(res.TsResid, res.PsResid, res.DeltaResid, res.Freqs)
		fmt.Fprintf(&b, "## Residual power effects (p < %g)\n\n", significanceLevel)
		if len(hits) == 0 {
			b.WriteString("No coordinate reached significance.\n\n")
		} else {
			writeHitsTable(&b, hits, rec.TimeBins > 0, true)
			fmt.Fprintf(&b, "\n%d significant coordinates in total.\n\n", countBelow(res.PsResid, significanceLevel))
		}

		b.WriteString("## Significant coordinates per electrode\n\n")
		writeElectrodeCounts(&b, res.PsResid)

		fmt.Fprintf(&b, "\nSlope effects: %d of %d electrodes significant; offset effects: %d.\n",
			countBelow(res.PsSlopes, significanceLevel), res.PsSlopes.Len(),
			countBelow(res.PsOffsets, significanceLevel))
	} else {
		b.WriteString("## Largest residual differences (no per-event statistics in this mode)\n\n")
		hits := collectLargestDeltas(res.DeltaResid, res.Freqs)
		if len(hits) == 0 {
			b.WriteString("No finite differences to report.\n")
		} else {
			writeHitsTable(&b, hits, rec.TimeBins > 0, false)
		}
	}

	return b.String()
}

// collectSignificant gathers residual coordinates under the significance
// level, strongest |t| first.
func collectSignificant(ts, ps, deltas *spectral.Tensor, freqs spectral.FrequencyAxis) []hit {
	var hits []hit
	walkResid(ps, func(f, e, bin, flat int) {
		p := ps.Data()[flat]
		if math.IsNaN(p) || p >= significanceLevel {
			return
		}
		hits = append(hits, hit{
			freqHz: freqLabel(freqs, f),
			elec:   e,
			bin:    bin,
			t:      ts.Data()[flat],
			p:      p,
			delta:  deltas.Data()[flat],
		})
	})
	sort.Slice(hits, func(i, j int) bool {
		return math.Abs(hits[i].t) > math.Abs(hits[j].t)
	})
	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	return hits
}

// collectLargestDeltas ranks coordinates by |delta| for deltas-only runs
func collectLargestDeltas(deltas *spectral.Tensor, freqs spectral.FrequencyAxis) []hit {
	var hits []hit
	walkResid(deltas, func(f, e, bin, flat int) {
		d := deltas.Data()[flat]
		if math.IsNaN(d) {
			return
		}
		hits = append(hits, hit{freqHz: freqLabel(freqs, f), elec: e, bin: bin, delta: d})
	})
	sort.Slice(hits, func(i, j int) bool {
		return math.Abs(hits[i].delta) > math.Abs(hits[j].delta)
	})
	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	return hits
}

// walkResid visits every cell of a residual-family tensor, rank 2
// (frequency, electrode) or rank 3 (frequency, electrode, time), passing
// the flat offset along so callers can index sibling tensors.
func walkResid(t *spectral.Tensor, visit func(f, e, bin, flat int)) {
	if t == nil {
		return
	}
	nf := t.Dim(0)
	ne := t.Dim(1)
	if t.Rank() == 2 {
		for f := 0; f < nf; f++ {
			for e := 0; e < ne; e++ {
				visit(f, e, -1, f*ne+e)
			}
		}
		return
	}
	nb := t.Dim(2)
	for f := 0; f < nf; f++ {
		for e := 0; e < ne; e++ {
			for bin := 0; bin < nb; bin++ {
				visit(f, e, bin, (f*ne+e)*nb+bin)
			}
		}
	}
}

func writeHitsTable(b *strings.Builder, hits []hit, hasTime, withStats bool) {
	tw := table.NewWriter()
	header := table.Row{"Frequency (Hz)", "Electrode"}
	if hasTime {
		header = append(header, "Time bin")
	}
	if withStats {
		header = append(header, "t", "p", "Delta")
	} else {
		header = append(header, "Delta")
	}
	tw.AppendHeader(header)

	for _, h := range hits {
		row := table.Row{fmt.Sprintf("%.1f", h.freqHz), h.elec}
		if hasTime {
			row = append(row, h.bin)
		}
		if withStats {
			row = append(row, fmt.Sprintf("%.2f", h.t), fmt.Sprintf("%.2g", h.p), fmt.Sprintf("%+.3f", h.delta))
		} else {
			row = append(row, fmt.Sprintf("%+.3f", h.delta))
		}
		tw.AppendRow(row)
	}
	b.WriteString(tw.RenderMarkdown())
	b.WriteString("\n")
}

func writeElectrodeCounts(b *strings.Builder, ps *spectral.Tensor) {
	if ps == nil {
		return
	}
	counts := make([]int, ps.Dim(1))
	walkResid(ps, func(f, e, bin, flat int) {
		if p := ps.Data()[flat]; !math.IsNaN(p) && p < significanceLevel {
			counts[e]++
		}
	})

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Electrode", "Significant"})
	for e, n := range counts {
		tw.AppendRow(table.Row{e, n})
	}
	b.WriteString(tw.RenderMarkdown())
	b.WriteString("\n")
}

// countBelow counts finite cells under the cutoff
func countBelow(t *spectral.Tensor, cutoff float64) int {
	if t == nil {
		return 0
	}
	n := 0
	for _, v := range t.Data() {
		if !math.IsNaN(v) && v < cutoff {
			n++
		}
	}
	return n
}

func freqLabel(freqs spectral.FrequencyAxis, i int) float64 {
	if i < len(freqs) {
		return freqs[i]
	}
	return math.NaN()
}
