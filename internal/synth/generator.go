package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/xuri/excelize/v2"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/domain/spectral"
)

// Peak injects a Gaussian bump, in log10 power units over linear frequency,
// into the generated spectra. Electrode -1 spreads the peak across every
// electrode; RecalledOnly restricts it to trials that will be recalled.
type Peak struct {
	CenterHz     float64
	SigmaHz      float64
	Height       float64
	Electrode    int
	RecalledOnly bool
}

// Config controls the synthetic subject. Spectra follow a 1/f background,
// offset - exponent*log10(f) in log10 power, with Gaussian noise and the
// configured peaks on top.
type Config struct {
	Subject string
	Task    string
	Montage int

	Events     int
	Electrodes int
	TimeBins   int // 0 generates a rank-3 tensor
	NFreqs     int
	FreqLo     float64
	FreqHi     float64

	Seed       int64
	Offset     float64
	Exponent   float64
	NoiseSD    float64
	RecallRate float64

	ListLength int
	Peaks      []Peak
}

func DefaultConfig() Config {
	return Config{
		Subject:    "SYN001",
		Task:       "FR1",
		Montage:    0,
		Events:     120,
		Electrodes: 16,
		TimeBins:   0,
		NFreqs:     50,
		FreqLo:     2,
		FreqHi:     200,
		Seed:       42,
		Offset:     2.5,
		Exponent:   1.2,
		NoiseSD:    0.05,
		RecallRate: 0.4,
		ListLength: 12,
		Peaks: []Peak{
			{CenterHz: 10, SigmaHz: 2, Height: 0.3, Electrode: 3, RecalledOnly: true},
		},
	}
}

// Generate builds a full subject from the config. Power comes out in log10
// units, the shape the fitting strategies expect as their default input.
func Generate(cfg Config) (*sme.SubjectData, error) {
	if cfg.Events <= 0 {
		return nil, fmt.Errorf("events must be > 0")
	}
	if cfg.Electrodes <= 0 {
		return nil, fmt.Errorf("electrodes must be > 0")
	}
	if cfg.NFreqs < 2 {
		return nil, fmt.Errorf("need at least 2 frequencies")
	}
	if cfg.FreqLo <= 0 || cfg.FreqHi <= cfg.FreqLo {
		return nil, fmt.Errorf("frequency range [%v, %v] is invalid", cfg.FreqLo, cfg.FreqHi)
	}
	if cfg.RecallRate < 0 || cfg.RecallRate > 1 {
		return nil, fmt.Errorf("recall rate %v outside [0, 1]", cfg.RecallRate)
	}
	listLen := cfg.ListLength
	if listLen <= 0 {
		listLen = 12
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	freqs := LogSpacedFreqs(cfg.NFreqs, cfg.FreqLo, cfg.FreqHi)

	events := make([]sme.Event, cfg.Events)
	for i := range events {
		recalled := rng.Float64() < cfg.RecallRate
		latency := -1.0
		if recalled {
			latency = 400 + rng.Float64()*2200
		}
		events[i] = sme.Event{
			Item:            fmt.Sprintf("ITEM%03d", i+1),
			List:            i/listLen + 1,
			SerialPos:       i%listLen + 1,
			Recalled:        recalled,
			RecallLatencyMS: latency,
		}
	}

	// background in log10 power, shared by every event
	background := make([]float64, cfg.NFreqs)
	for j, f := range freqs {
		background[j] = cfg.Offset - cfg.Exponent*math.Log10(f)
	}

	// per-peak Gaussian curves, evaluated once
	curves := make([][]float64, len(cfg.Peaks))
	for k, p := range cfg.Peaks {
		if p.SigmaHz <= 0 {
			return nil, fmt.Errorf("peak %d: sigma must be > 0", k)
		}
		if p.Electrode >= cfg.Electrodes {
			return nil, fmt.Errorf("peak %d: electrode %d out of range", k, p.Electrode)
		}
		curve := make([]float64, cfg.NFreqs)
		for j, f := range freqs {
			d := f - p.CenterHz
			curve[j] = p.Height * math.Exp(-(d*d)/(2*p.SigmaHz*p.SigmaHz))
		}
		curves[k] = curve
	}

	bins := cfg.TimeBins
	rank4 := bins > 0
	if !rank4 {
		bins = 1
	}

	var power *spectral.Tensor
	if rank4 {
		power = spectral.New(cfg.Events, cfg.NFreqs, cfg.Electrodes, cfg.TimeBins)
	} else {
		power = spectral.New(cfg.Events, cfg.NFreqs, cfg.Electrodes)
	}

	for e := 0; e < cfg.Events; e++ {
		for j := 0; j < cfg.NFreqs; j++ {
			for c := 0; c < cfg.Electrodes; c++ {
				signal := background[j]
				for k, p := range cfg.Peaks {
					if p.RecalledOnly && !events[e].Recalled {
						continue
					}
					if p.Electrode >= 0 && p.Electrode != c {
						continue
					}
					signal += curves[k][j]
				}
				for b := 0; b < bins; b++ {
					v := signal + rng.NormFloat64()*cfg.NoiseSD
					if rank4 {
						power.Set(v, e, j, c, b)
					} else {
						power.Set(v, e, j, c)
					}
				}
			}
		}
	}

	return &sme.SubjectData{
		Subject: core.SubjectID(cfg.Subject),
		Task:    cfg.Task,
		Montage: cfg.Montage,
		Freqs:   freqs,
		Power:   power,
		Events:  events,
	}, nil
}

// LogSpacedFreqs returns n frequencies log-spaced over [lo, hi]
func LogSpacedFreqs(n int, lo, hi float64) spectral.FrequencyAxis {
	freqs := make(spectral.FrequencyAxis, n)
	llo, lhi := math.Log10(lo), math.Log10(hi)
	for i := range freqs {
		freqs[i] = math.Pow(10, llo+(lhi-llo)*float64(i)/float64(n-1))
	}
	return freqs
}

// WriteEventsXLSX writes the behavioral events to a workbook readable by the
// events adapter.
func WriteEventsXLSX(path string, events []sme.Event) error {
	f := excelize.NewFile()

	sheet := "Sheet1"
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return err
		}
		f.SetActiveSheet(idx)
	}

	headers := []string{"item", "list", "serial_pos", "recalled", "recall_latency_ms"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for r, ev := range events {
		rowIdx := r + 2
		recalled := 0
		if ev.Recalled {
			recalled = 1
		}
		values := []interface{}{ev.Item, ev.List, ev.SerialPos, recalled, ev.RecallLatencyMS}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, rowIdx)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.SaveAs(path)
}
