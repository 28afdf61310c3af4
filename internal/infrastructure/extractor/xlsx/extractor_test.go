package xlsx

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/collision-estimator/internal/infrastructure/storage/localfs"
)

func TestExtractRendersRowsWithHeaders(t *testing.T) {
	dir := t.TempDir()
	book := excelize.NewFile()
	defer book.Close()
	rows := [][]any{
		{"Part", "USD", "Hours"},
		{"Front bumper cover", 250, 1.5},
		{},
		{"Headlamp assembly", 410, ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := book.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if err := book.SaveAs(filepath.Join(dir, "prices.xlsx")); err != nil {
		t.Fatalf("save: %v", err)
	}

	text, err := NewExtractor(localfs.New(dir)).Extract(context.Background(), "prices.xlsx")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	for _, want := range []string{
		"## Sheet1",
		"Part: Front bumper cover; USD: 250; Hours: 1.5",
		"Part: Headlamp assembly; USD: 410",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
}

func TestRenderSheetSkipsHeaderOnlySheets(t *testing.T) {
	var out strings.Builder
	renderSheet(&out, "Empty", [][]string{{"Part", "USD"}, {"", ""}})
	if out.Len() != 0 {
		t.Fatalf("expected nothing rendered, got %q", out.String())
	}
}
