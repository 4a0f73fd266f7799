// Package export renders tabular data for spreadsheet downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// Dataset is a header row plus records keyed by header.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders a Dataset as CSV.
type CSVExporter struct {
	comma rune
	bom   bool
}

// NewCSVExporter builds a CSV exporter. Semicolon separated output with a UTF-8 BOM opens
// cleanly in spreadsheet tools configured for Spanish locales.
func NewCSVExporter(semicolon bool) *CSVExporter {
	e := &CSVExporter{comma: ',', bom: semicolon}
	if semicolon {
		e.comma = ';'
	}
	return e
}

// Write streams data to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	if e.bom {
		if _, err := w.Write([]byte("\xEF\xBB\xBF")); err != nil {
			return fmt.Errorf("write bom: %w", err)
		}
	}
	writer := csv.NewWriter(w)
	writer.Comma = e.comma
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Render returns the CSV encoding of data.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := e.Write(buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
