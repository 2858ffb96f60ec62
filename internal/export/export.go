// Package export writes the visible equipment rows and the loaded summary
// to files: CSV, XLSX, JSON or YAML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"chemviz/internal/models"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Header matches the column names the backend accepts on upload, so an
// exported CSV can be uploaded again.
var Header = []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, xlsx, json or yaml)", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	}
	return "application/octet-stream"
}

// Filename is the download name for dataset id.
func (f Format) Filename(id int64) string {
	return fmt.Sprintf("equipment_%d.%s", id, f)
}

// Document is what JSON and YAML exports contain.
type Document struct {
	Summary *models.SummaryReport `json:"summary" yaml:"summary"`
	Search  string                `json:"search,omitempty" yaml:"search,omitempty"`
	Rows    []models.EquipmentRow `json:"rows" yaml:"rows"`
}

// Write encodes the report and the rows in format f. CSV and XLSX carry
// the rows only (plus a summary sheet for XLSX).
func Write(w io.Writer, f Format, report *models.SummaryReport, search string, rows []models.EquipmentRow) error {
	switch f {
	case FormatCSV:
		return CSV(w, rows)
	case FormatXLSX:
		return XLSX(w, report, rows)
	case FormatJSON:
		return JSON(w, Document{Summary: withoutRows(report), Search: search, Rows: rows})
	case FormatYAML:
		return YAML(w, Document{Summary: withoutRows(report), Search: search, Rows: rows})
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// CSV writes rows with the upload header.
func CSV(w io.Writer, rows []models.EquipmentRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Name, r.Type, num(r.Flowrate), num(r.Pressure), num(r.Temperature)}); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSX writes an "Equipment" sheet with the rows and, when report is
// non-nil, a "Summary" sheet with totals, averages and the type counts.
func XLSX(w io.Writer, report *models.SummaryReport, rows []models.EquipmentRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Equipment"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	f.SetCellStyle(sheet, "A1", "E1", bold)
	f.SetColWidth(sheet, "A", "B", 22)

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{r.Name, r.Type, r.Flowrate, r.Pressure, r.Temperature}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+1, err)
		}
	}

	if report != nil {
		if err := summarySheet(f, report, bold); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func summarySheet(f *excelize.File, report *models.SummaryReport, bold int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("xlsx summary: %w", err)
	}

	lines := [][]interface{}{
		{"File", report.FileName},
		{"Total Equipment", report.TotalCount},
		{"Avg Flowrate", report.Averages.Flowrate},
		{"Avg Pressure", report.Averages.Pressure},
		{"Avg Temperature", report.Averages.Temperature},
		{},
		{"Type", "Count"},
	}
	for _, t := range sortedTypes(report.TypeDistribution) {
		lines = append(lines, []interface{}{t, report.TypeDistribution[t]})
	}

	for i, line := range lines {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return fmt.Errorf("xlsx summary row %d: %w", i+1, err)
		}
	}
	f.SetCellStyle(sheet, "A1", "A5", bold)
	f.SetCellStyle(sheet, "A7", "B7", bold)
	f.SetColWidth(sheet, "A", "A", 20)
	return nil
}

// JSON writes v indented.
func JSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v with two-space indentation.
func YAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func withoutRows(report *models.SummaryReport) *models.SummaryReport {
	if report == nil {
		return nil
	}
	cp := *report
	cp.Data = nil
	return &cp
}

func sortedTypes(dist map[string]int) []string {
	types := make([]string, 0, len(dist))
	for t := range dist {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
