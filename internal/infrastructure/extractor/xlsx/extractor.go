package xlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
	"github.com/kirillkom/collision-estimator/internal/core/ports"
)

// Extractor renders spreadsheets (price lists, labor time tables) row by row.
// The first non-empty row of each sheet is treated as the header so every
// data row becomes a self-describing "header: value" line.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, key string) (string, error) {
	reader, err := e.storage.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	book, err := excelize.OpenReader(reader)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract xlsx", fmt.Errorf("%s: %w", key, err))
	}
	defer book.Close()

	var out strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "extract xlsx", fmt.Errorf("%s sheet %q: %w", key, sheet, err))
		}
		renderSheet(&out, sheet, rows)
	}
	return strings.TrimSpace(out.String()), nil
}

func renderSheet(out *strings.Builder, sheet string, rows [][]string) {
	var header []string
	wroteTitle := false
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		if !wroteTitle {
			fmt.Fprintf(out, "## %s\n", sheet)
			wroteTitle = true
		}
		cells := make([]string, 0, len(row))
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				cells = append(cells, strings.TrimSpace(header[i])+": "+cell)
				continue
			}
			cells = append(cells, cell)
		}
		out.WriteString(strings.Join(cells, "; "))
		out.WriteString("\n")
	}
	if wroteTitle {
		out.WriteString("\n")
	}
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
