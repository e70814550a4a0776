// Package spreadsheet normalises Excel workbooks. Office Open XML files
// (.xlsx, .xlsm, .xltx, .xltm) are read with excelize; legacy BIFF files
// (.xls) are read with extrame/xls. The container is detected from the
// payload's magic bytes, not its extension.
package spreadsheet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/normalisers/tabular"
)

// Ensure Normaliser implements the interfaces.
var (
	_ driven.Normaliser  = (*Normaliser)(nil)
	_ driven.SheetLister = (*Normaliser)(nil)
)

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Normaliser handles spreadsheet payloads.
type Normaliser struct{}

// New creates a new spreadsheet normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFormats returns the formats this normaliser handles.
func (n *Normaliser) SupportedFormats() []domain.Format {
	return []domain.Format{domain.FormatSpreadsheet}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 60
}

// workbook is the common view over both container formats.
type workbook interface {
	sheets() []string
	rows(sheet string) ([][]string, error)
	close()
}

// Normalise reads the selected sheet (the first when none is named).
func (n *Normaliser) Normalise(ctx context.Context, payload *domain.FilePayload) (*domain.Dataset, error) {
	if payload == nil {
		return nil, domain.ErrInvalidInput
	}
	wb, err := open(payload)
	if err != nil {
		return nil, err
	}
	defer wb.close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sheet, err := pickSheet(wb.sheets(), payload)
	if err != nil {
		return nil, err
	}
	rows, err := wb.rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading sheet %q: %v", domain.ErrParse, payload.Name, sheet, err)
	}

	ds := tabular.Build(payload.Name, domain.FormatSpreadsheet, rows)
	ds.Sheet = sheet
	ds.SizeBytes = int64(len(payload.Data))
	return ds, nil
}

// Sheets returns the worksheet names in workbook order.
func (n *Normaliser) Sheets(_ context.Context, payload *domain.FilePayload) ([]string, error) {
	if payload == nil {
		return nil, domain.ErrInvalidInput
	}
	wb, err := open(payload)
	if err != nil {
		return nil, err
	}
	defer wb.close()
	return wb.sheets(), nil
}

func open(payload *domain.FilePayload) (workbook, error) {
	switch {
	case bytes.HasPrefix(payload.Data, zipMagic):
		f, err := excelize.OpenReader(bytes.NewReader(payload.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, payload.Name, err)
		}
		return &xlsxBook{f: f}, nil
	case bytes.HasPrefix(payload.Data, oleMagic):
		wb, err := xls.OpenReader(bytes.NewReader(payload.Data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, payload.Name, err)
		}
		return &xlsBook{wb: wb}, nil
	default:
		return nil, fmt.Errorf("%w: %s is not an Excel workbook", domain.ErrParse, payload.Name)
	}
}

func pickSheet(sheets []string, payload *domain.FilePayload) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: %s has no sheets", domain.ErrParse, payload.Name)
	}
	if payload.Sheet == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == payload.Sheet {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no sheet %q", domain.ErrParse, payload.Name, payload.Sheet)
}

type xlsxBook struct {
	f *excelize.File
}

func (b *xlsxBook) sheets() []string {
	return b.f.GetSheetList()
}

func (b *xlsxBook) rows(sheet string) ([][]string, error) {
	return b.f.GetRows(sheet)
}

func (b *xlsxBook) close() {
	_ = b.f.Close()
}

type xlsBook struct {
	wb *xls.WorkBook
}

func (b *xlsBook) sheets() []string {
	names := make([]string, 0, b.wb.NumSheets())
	for i := 0; i < b.wb.NumSheets(); i++ {
		if s := b.wb.GetSheet(i); s != nil {
			names = append(names, s.Name)
		}
	}
	return names
}

func (b *xlsBook) rows(sheet string) ([][]string, error) {
	for i := 0; i < b.wb.NumSheets(); i++ {
		s := b.wb.GetSheet(i)
		if s == nil || s.Name != sheet {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(s.MaxRow); r++ {
			row := s.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := range cells {
				cells[c] = row.Col(c)
			}
			rows = append(rows, cells)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("sheet %q not found", sheet)
}

func (b *xlsBook) close() {}
