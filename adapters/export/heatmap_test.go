package export

import (
	"math"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/domain/spectral"
	"smefit/ports"
)

func exportRecord() ports.RunRecord {
	return ports.RunRecord{
		ID:         core.RunID("run-7"),
		Subject:    core.SubjectID("R1001P"),
		Task:       "FR1",
		Strategy:   string(sme.StrategyRobustRegression),
		Mode:       string(sme.ModeWithStats),
		PRecall:    0.5,
		Events:     40,
		Freqs:      2,
		Electrodes: 3,
		CreatedAt:  core.Now(),
		Result: &sme.ContrastResult{
			Mode:         sme.ModeWithStats,
			TsResid:      spectral.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3),
			PsResid:      spectral.FromSlice([]float64{0.1, 0.2, 0.3, 0.4, 0.5, math.NaN()}, 2, 3),
			TsSlopes:     spectral.FromSlice([]float64{0.5, 0.6, 0.7}, 3),
			PsSlopes:     spectral.FromSlice([]float64{0.1, 0.2, 0.3}, 3),
			TsOffsets:    spectral.FromSlice([]float64{1, 2, 3}, 3),
			PsOffsets:    spectral.FromSlice([]float64{0.4, 0.5, 0.6}, 3),
			DeltaResid:   spectral.FromSlice([]float64{0.25, -0.5, 0, 1.5, 2.5, -3.5}, 2, 3),
			DeltaSlopes:  spectral.FromSlice([]float64{0.01, 0.02, 0.03}, 3),
			DeltaOffsets: spectral.FromSlice([]float64{-0.01, -0.02, -0.03}, 3),
			Freqs:        spectral.FrequencyAxis{3, 48},
		},
	}
}

func TestWriteWorkbookSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, WriteWorkbook(path, exportRecord()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	for _, want := range []string{
		"run", "delta_resid", "ts_resid", "ps_resid",
		"delta_slopes", "ts_slopes", "ps_offsets",
	} {
		assert.Contains(t, sheets, want)
	}
}

func TestWriteWorkbookGridLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	rec := exportRecord()
	require.NoError(t, WriteWorkbook(path, rec))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	// header row: freq label then electrodes
	header, err := f.GetCellValue("delta_resid", "B1")
	require.NoError(t, err)
	assert.Equal(t, "e0", header)

	// frequency labels down column A
	hz, err := f.GetCellValue("delta_resid", "A3")
	require.NoError(t, err)
	assert.Equal(t, "48", hz)

	// value at frequency 1, electrode 2
	cell, err := f.GetCellValue("delta_resid", "D3")
	require.NoError(t, err)
	got, err := strconv.ParseFloat(cell, 64)
	require.NoError(t, err)
	assert.InDelta(t, rec.Result.DeltaResid.At(1, 2), got, 1e-9)

	// NaN stays empty
	nanCell, err := f.GetCellValue("ps_resid", "D3")
	require.NoError(t, err)
	assert.Equal(t, "", nanCell)
}

func TestWriteWorkbookMetaSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, WriteWorkbook(path, exportRecord()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("run")
	require.NoError(t, err)
	meta := map[string]string{}
	for _, row := range rows {
		if len(row) >= 2 {
			meta[row[0]] = row[1]
		}
	}
	assert.Equal(t, "run-7", meta["run_id"])
	assert.Equal(t, "R1001P", meta["subject"])
	assert.Equal(t, "robust_regression", meta["strategy"])
}

func TestWriteWorkbookTimeBins(t *testing.T) {
	rec := exportRecord()
	rec.TimeBins = 2
	rec.Result.TsResid = spectral.FromSlice([]float64{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}, 2, 3, 2)
	rec.Result.PsResid = spectral.Filled(0.5, 2, 3, 2)
	rec.Result.DeltaResid = spectral.Filled(0.1, 2, 3, 2)
	rec.Result.TsSlopes = spectral.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	rec.Result.PsSlopes = spectral.Filled(0.5, 3, 2)
	rec.Result.TsOffsets = spectral.Filled(1.0, 3, 2)
	rec.Result.PsOffsets = spectral.Filled(0.5, 3, 2)
	rec.Result.DeltaSlopes = spectral.Filled(0.0, 3, 2)
	rec.Result.DeltaOffsets = spectral.Filled(0.0, 3, 2)

	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, WriteWorkbook(path, rec))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "ts_resid_t0")
	assert.Contains(t, sheets, "ts_resid_t1")
	assert.NotContains(t, sheets, "ts_resid")

	// bin 1 of (freq 0, electrode 1) is 4 in row-major order
	cell, err := f.GetCellValue("ts_resid_t1", "C2")
	require.NoError(t, err)
	assert.Equal(t, "4", cell)

	// slopes for rank-4 input come out electrode by time
	v, err := f.GetCellValue("ts_slopes", "C3")
	require.NoError(t, err)
	assert.Equal(t, "4", v)
}

func TestWriteWorkbookDeltasOnly(t *testing.T) {
	rec := exportRecord()
	rec.Result = &sme.ContrastResult{
		Mode:         sme.ModeDeltasOnly,
		DeltaResid:   spectral.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3),
		DeltaSlopes:  spectral.FromSlice([]float64{0.1, 0.2, 0.3}, 3),
		DeltaOffsets: spectral.FromSlice([]float64{0.4, 0.5, 0.6}, 3),
		Freqs:        spectral.FrequencyAxis{3, 48},
	}

	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, WriteWorkbook(path, rec))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "delta_resid")
	assert.NotContains(t, sheets, "ts_resid")
}

func TestWriteWorkbookNoPayload(t *testing.T) {
	rec := exportRecord()
	rec.Result = nil
	err := WriteWorkbook(filepath.Join(t.TempDir(), "run.xlsx"), rec)
	require.Error(t, err)
}
