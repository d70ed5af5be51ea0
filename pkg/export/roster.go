package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Roster is a tabular rendering of frozen on-call history for one month.
type Roster struct {
	Month   string
	Headers []string
	Rows    []map[string]string
}

// RenderCSV produces CSV-encoded bytes for the roster.
func RenderCSV(r Roster) ([]byte, error) {
	if len(r.Headers) == 0 {
		return nil, fmt.Errorf("roster requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(r.Headers); err != nil {
		return nil, fmt.Errorf("write roster headers: %w", err)
	}
	for _, row := range r.Rows {
		record := make([]string, len(r.Headers))
		for i, header := range r.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write roster row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush roster csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPDF produces a simple tabular PDF of the roster.
func RenderPDF(r Roster) ([]byte, error) {
	if len(r.Headers) == 0 {
		return nil, fmt.Errorf("roster requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper("On-call roster "+r.Month), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(r.Headers))
	for _, header := range r.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range r.Rows {
		for _, header := range r.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render roster pdf: %w", err)
	}
	return buf.Bytes(), nil
}
