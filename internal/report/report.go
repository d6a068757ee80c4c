// Package report exports stored diary entries to a spreadsheet.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TechnicallyShaun/nota-diary/internal/store"
)

// SheetName is the worksheet that holds the entries.
const SheetName = "Entries"

// Columns is the header row.
var Columns = []string{
	"Diary ID", "Created", "Title", "Mood", "Tags", "Source", "Model",
	"Language", "FFmpeg", "Total tokens", "Text",
}

// maxCellText is the longest string a cell accepts.
const maxCellText = 32767

// WriteXLSX writes entries to path, one row per entry.
func WriteXLSX(path string, entries []store.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := Row(e)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "K", "K", 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Row renders one entry. Unknown values are left blank.
func Row(e store.Entry) []any {
	ffmpeg := ""
	if e.FFmpegUsed.Valid {
		ffmpeg = fmt.Sprintf("%t", e.FFmpegUsed.Bool)
	}
	var tokens any = ""
	if e.TotalTokens.Valid {
		tokens = e.TotalTokens.Int64
	}

	text := e.Text
	if len(text) > maxCellText {
		text = text[:maxCellText]
	}

	return []any{
		e.DiaryID,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.Title,
		e.Mood,
		strings.Join(e.Tags, ", "),
		e.SourcePath,
		e.Model,
		e.RoutedLanguage,
		ffmpeg,
		tokens,
		text,
	}
}
