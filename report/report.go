// Package report exports check results to spreadsheets.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/surerank/seo-analyzer/checks"
)

// Columns of the findings sheet.
var Columns = []string{"Check", "Status", "Type", "Message", "Details"}

const (
	findingsSheet = "Findings"
	summarySheet  = "Summary"
)

var statusColors = map[checks.Status]string{
	checks.StatusSuccess:    "C8E6C9",
	checks.StatusWarning:    "FFE0B2",
	checks.StatusError:      "FFCDD2",
	checks.StatusSuggestion: "BBDEFB",
}

// WriteXLSX writes rs as a workbook with one row per finding and a summary sheet.
func WriteXLSX(w io.Writer, title string, rs *checks.ResultSet) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(findingsSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"37474F"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	statusStyles := make(map[checks.Status]int, len(statusColors))
	for status, color := range statusColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err == nil {
			statusStyles[status] = style
		}
	}
	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	for i, col := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(findingsSheet, cell, col)
		f.SetCellStyle(findingsSheet, cell, cell, headerStyle)
	}
	for col, width := range map[string]float64{"A": 28, "B": 12, "C": 10, "D": 60, "E": 80} {
		f.SetColWidth(findingsSheet, col, col, width)
	}

	keys := rs.Keys()
	for i, key := range keys {
		finding, _ := rs.Get(key)
		row := i + 2
		values := []interface{}{key, string(finding.Status), string(finding.Type), finding.Message, details(finding)}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			f.SetCellValue(findingsSheet, cell, v)
		}
		if style, ok := statusStyles[finding.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(2, row)
			f.SetCellStyle(findingsSheet, cell, cell, style)
		}
		first, _ := excelize.CoordinatesToCellName(4, row)
		last, _ := excelize.CoordinatesToCellName(5, row)
		f.SetCellStyle(findingsSheet, first, last, wrapStyle)
	}

	if len(keys) > 0 {
		lastCol, _ := excelize.ColumnNumberToName(len(Columns))
		f.AutoFilter(findingsSheet, fmt.Sprintf("A1:%s%d", lastCol, len(keys)+1), nil)
	}
	f.SetPanes(findingsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	addSummarySheet(f, title, rs)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func addSummarySheet(f *excelize.File, title string, rs *checks.ResultSet) {
	f.NewSheet(summarySheet)

	counts := rs.Counts()
	rows := [][]interface{}{
		{"Report", title},
		{"Generated", time.Now().Format(time.RFC3339)},
		{"Checks", rs.Len()},
		{"Overall", string(rs.Worst())},
		{"Errors", counts[checks.StatusError]},
		{"Warnings", counts[checks.StatusWarning]},
		{"Suggestions", counts[checks.StatusSuggestion]},
		{"Passed", counts[checks.StatusSuccess]},
	}
	for i, row := range rows {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}
	f.SetColWidth(summarySheet, "A", "A", 16)
	f.SetColWidth(summarySheet, "B", "B", 50)
}

// details flattens the description blocks into one cell, one line per text block or list item.
func details(f checks.Finding) string {
	var lines []string
	for _, b := range f.Description {
		if !b.IsList() {
			if b.Text != "" {
				lines = append(lines, b.Text)
			}
			continue
		}
		for _, item := range b.List {
			lines = append(lines, "- "+item)
		}
		for _, l := range b.Links {
			line := "- " + l.URL
			if l.Details != "" {
				line += " (" + l.Details + ")"
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
