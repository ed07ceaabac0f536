package events

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"smefit/domain/sme"
	"smefit/internal/errors"
)

// Reader loads behavioral events from xlsx or csv workbooks. Columns are
// matched by header name, so column order does not matter.
type Reader struct {
	path     string
	fileType string // "xlsx" or "csv"
}

// NewReader creates a reader for the given file, dispatching on extension
func NewReader(path string) *Reader {
	ext := strings.ToLower(filepath.Ext(path))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &Reader{path: path, fileType: fileType}
}

// Column aliases accepted for each event field. The first name is the
// canonical one the synthetic writer produces; the rest cover the common
// export conventions for free-recall event files.
var (
	itemAliases     = []string{"item", "word", "item_name"}
	listAliases     = []string{"list", "trial", "list_num"}
	serialAliases   = []string{"serial_pos", "serialpos", "serial_position"}
	recalledAliases = []string{"recalled", "rec", "remembered"}
	latencyAliases  = []string{"recall_latency_ms", "rectime", "rt", "latency_ms"}
)

// ReadEvents parses the file into event records
func (r *Reader) ReadEvents() ([]sme.Event, error) {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, errors.NotFound("events file " + r.path)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, errors.DataFormat("unsupported file type " + r.fileType)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.DataFormat("events file needs a header row and at least one data row")
	}
	return parseRows(rows)
}

func (r *Reader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, errors.Wrap(err, "open events workbook")
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, errors.Wrap(err, "read Sheet1")
	}
	return rows, nil
}

func (r *Reader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, errors.Wrap(err, "open events file")
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read events csv")
	}
	return rows, nil
}

func parseRows(rows [][]string) ([]sme.Event, error) {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	itemCol := findColumn(headers, itemAliases)
	listCol := findColumn(headers, listAliases)
	serialCol := findColumn(headers, serialAliases)
	recalledCol := findColumn(headers, recalledAliases)
	latencyCol := findColumn(headers, latencyAliases)

	if recalledCol < 0 {
		return nil, errors.DataFormat("no recalled column found (tried " + strings.Join(recalledAliases, ", ") + ")")
	}

	out := make([]sme.Event, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ev := sme.Event{RecallLatencyMS: -1}
		if itemCol >= 0 {
			ev.Item = strings.TrimSpace(cellAt(row, itemCol))
		}
		if listCol >= 0 {
			if v, err := parseIntCell(cellAt(row, listCol)); err == nil {
				ev.List = v
			}
		}
		if serialCol >= 0 {
			if v, err := parseIntCell(cellAt(row, serialCol)); err == nil {
				ev.SerialPos = v
			}
		}
		recalled, err := parseBoolCell(cellAt(row, recalledCol))
		if err != nil {
			return nil, errors.DataFormat(fmt.Sprintf("row %d: bad recalled value %q", i+2, cellAt(row, recalledCol)))
		}
		ev.Recalled = recalled
		if latencyCol >= 0 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(cellAt(row, latencyCol)), 64); err == nil {
				ev.RecallLatencyMS = v
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func findColumn(headers []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range headers {
			if h == alias {
				return i
			}
		}
	}
	return -1
}

func cellAt(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

func parseIntCell(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	// excel often renders integers as floats
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func parseBoolCell(s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n", "-999":
		return false, nil
	}
	return false, fmt.Errorf("unparseable boolean %q", s)
}
