package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var errNoColumns = errors.New("dataset has no columns")

// Dataset is a table with positional rows matching Columns.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Append adds one row. Missing trailing cells render empty; extra cells are dropped.
func (d *Dataset) Append(cells ...string) {
	row := make([]string, len(d.Columns))
	copy(row, cells)
	d.Rows = append(d.Rows, row)
}

// CSVExporter writes datasets as RFC 4180 CSV.
type CSVExporter struct {
	// BOM prefixes output with a UTF-8 byte order mark so Excel detects the encoding.
	BOM bool
}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{BOM: true}
}

func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the dataset to w. Cells a spreadsheet would evaluate as
// a formula get a leading apostrophe.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Columns) == 0 {
		return errNoColumns
	}
	if e.BOM {
		if _, err := io.WriteString(w, "\ufeff"); err != nil {
			return fmt.Errorf("write bom: %w", err)
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(data.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(data.Columns))
	for n, row := range data.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = inert(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", n+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func inert(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + cell
	}
	return cell
}
