package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"smefit/domain/spectral"
	"smefit/internal/errors"
	"smefit/ports"
)

// WriteWorkbook exports every statistic tensor of a run into one xlsx
// workbook: a sheet per statistic, with frequencies down the rows and
// electrodes across the columns. Rank-3 statistics get one sheet per time
// bin. NaN cells stay empty.
func WriteWorkbook(path string, rec ports.RunRecord) error {
	if rec.Result == nil {
		return errors.DataFormat("run has no result payload to export")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "run"); err != nil {
		return errors.Wrap(err, "rename meta sheet")
	}
	if err := writeMetaSheet(f, rec); err != nil {
		return err
	}

	freqs := rec.Result.Freqs
	for _, nt := range rec.Result.StatTensors() {
		if nt.Tensor == nil {
			continue
		}
		var err error
		switch {
		case strings.Contains(nt.Key, "resid") && nt.Tensor.Rank() == 3:
			for bin := 0; bin < nt.Tensor.Dim(2); bin++ {
				name := fmt.Sprintf("%s_t%d", nt.Key, bin)
				if err = writeFreqGrid(f, name, binSlice(nt.Tensor, bin), freqs); err != nil {
					break
				}
			}
		case strings.Contains(nt.Key, "resid"):
			err = writeFreqGrid(f, nt.Key, nt.Tensor, freqs)
		case nt.Tensor.Rank() == 2:
			err = writeElectrodeGrid(f, nt.Key, nt.Tensor)
		default:
			err = writeElectrodeColumn(f, nt.Key, nt.Tensor)
		}
		if err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, "save workbook")
	}
	return nil
}

func writeMetaSheet(f *excelize.File, rec ports.RunRecord) error {
	rows := [][]interface{}{
		{"run_id", rec.ID.String()},
		{"subject", rec.Subject.String()},
		{"task", rec.Task},
		{"montage", rec.Montage},
		{"strategy", rec.Strategy},
		{"mode", rec.Mode},
		{"p_recall", rec.PRecall},
		{"events", rec.Events},
		{"frequencies", rec.Freqs},
		{"electrodes", rec.Electrodes},
		{"time_bins", rec.TimeBins},
		{"created_at", rec.CreatedAt.String()},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue("run", cell, v); err != nil {
				return errors.Wrap(err, "write meta sheet")
			}
		}
	}
	return nil
}

// writeFreqGrid writes a (frequency, electrode) tensor: Hz labels in the
// first column, electrode headers across the top.
func writeFreqGrid(f *excelize.File, name string, t *spectral.Tensor, freqs spectral.FrequencyAxis) error {
	if _, err := f.NewSheet(name); err != nil {
		return errors.Wrapf(err, "create sheet %s", name)
	}
	if err := setCell(f, name, 1, 1, "freq_hz"); err != nil {
		return err
	}
	nf, ne := t.Dim(0), t.Dim(1)
	for e := 0; e < ne; e++ {
		if err := setCell(f, name, e+2, 1, fmt.Sprintf("e%d", e)); err != nil {
			return err
		}
	}
	for fr := 0; fr < nf; fr++ {
		label := interface{}(fr)
		if fr < len(freqs) {
			label = freqs[fr]
		}
		if err := setCell(f, name, 1, fr+2, label); err != nil {
			return err
		}
		for e := 0; e < ne; e++ {
			if err := setValueCell(f, name, e+2, fr+2, t.At(fr, e)); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeElectrodeGrid writes an (electrode, time) tensor with electrodes
// down the rows
func writeElectrodeGrid(f *excelize.File, name string, t *spectral.Tensor) error {
	if _, err := f.NewSheet(name); err != nil {
		return errors.Wrapf(err, "create sheet %s", name)
	}
	if err := setCell(f, name, 1, 1, "electrode"); err != nil {
		return err
	}
	ne, nb := t.Dim(0), t.Dim(1)
	for b := 0; b < nb; b++ {
		if err := setCell(f, name, b+2, 1, fmt.Sprintf("t%d", b)); err != nil {
			return err
		}
	}
	for e := 0; e < ne; e++ {
		if err := setCell(f, name, 1, e+2, e); err != nil {
			return err
		}
		for b := 0; b < nb; b++ {
			if err := setValueCell(f, name, b+2, e+2, t.At(e, b)); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeElectrodeColumn writes a rank-1 per-electrode tensor
func writeElectrodeColumn(f *excelize.File, name string, t *spectral.Tensor) error {
	if _, err := f.NewSheet(name); err != nil {
		return errors.Wrapf(err, "create sheet %s", name)
	}
	if err := setCell(f, name, 1, 1, "electrode"); err != nil {
		return err
	}
	if err := setCell(f, name, 2, 1, "value"); err != nil {
		return err
	}
	for e := 0; e < t.Dim(0); e++ {
		if err := setCell(f, name, 1, e+2, e); err != nil {
			return err
		}
		if err := setValueCell(f, name, 2, e+2, t.At(e)); err != nil {
			return err
		}
	}
	return nil
}

// binSlice extracts one time bin of a (frequency, electrode, time) tensor
func binSlice(t *spectral.Tensor, bin int) *spectral.Tensor {
	nf, ne := t.Dim(0), t.Dim(1)
	out := spectral.New(nf, ne)
	for f := 0; f < nf; f++ {
		for e := 0; e < ne; e++ {
			out.Set(t.At(f, e, bin), f, e)
		}
	}
	return out
}

func setCell(f *excelize.File, sheet string, col, row int, v interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return errors.Wrap(err, "cell name")
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return errors.Wrapf(err, "write %s!%s", sheet, cell)
	}
	return nil
}

// setValueCell writes one statistic value, leaving NaN cells empty
func setValueCell(f *excelize.File, sheet string, col, row int, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return setCell(f, sheet, col, row, v)
}
