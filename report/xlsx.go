package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/docstat"
)

// SheetName is the worksheet WriteXLSX fills.
const SheetName = "Analyses"

// Header lists the exported columns in order.
var Header = []string{
	"ID", "File", "Format", "Size", "Characters", "Characters (no spaces)",
	"Words", "Spaces", "Images", "Analyzed At",
}

// WriteXLSX writes results as a single-sheet workbook: one header row and one
// row per result, in the given order.
func WriteXLSX(w io.Writer, results []docstat.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range results {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			r.ID,
			r.FileName,
			string(r.Format),
			FormatSize(r.FileSize),
			r.Statistics.CharCount,
			r.Statistics.CharCountNoSpace,
			r.Statistics.WordCount,
			r.Statistics.SpaceCount,
			r.Statistics.ImageCount,
			r.AnalyzedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 38); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, "B", "B", 30); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
