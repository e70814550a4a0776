package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

type stubPromptStore struct {
	prompt string
	err    error
}

func (s *stubPromptStore) Load(string) (string, error) { return s.prompt, s.err }
func (s *stubPromptStore) Reload()                     {}

func regionDataset(rows int) *domain.Dataset {
	region := domain.Column{Name: "region"}
	sales := domain.Column{Name: "sales"}
	for i := 0; i < rows; i++ {
		region.Cells = append(region.Cells, domain.StringCell("r"+strings.Repeat("x", i)))
		sales.Cells = append(sales.Cells, domain.NumberCell("1.50"))
	}
	return &domain.Dataset{
		Name:    "sales.csv",
		Format:  domain.FormatCSV,
		Columns: []domain.Column{region, sales},
	}
}

func TestDescribeDatasets_Tabular(t *testing.T) {
	ds := regionDataset(3)
	ds.Columns[1].Cells[2] = domain.NullCell()

	out := DescribeDatasets([]*domain.Dataset{ds}, DescribeOptions{SampleRows: 50})

	assert.Contains(t, out, "Dataset 1: sales.csv (csv)\n")
	assert.Contains(t, out, "Rows: 3, Columns: 2\n")
	assert.Contains(t, out, "- region (string)\n")
	assert.Contains(t, out, "- sales (number)\n")
	assert.Contains(t, out, "Rows:\nregion,sales\nr,1.50\nrx,1.50\nrxx,\n")
}

func TestDescribeDatasets_SampleIsBounded(t *testing.T) {
	out := DescribeDatasets([]*domain.Dataset{regionDataset(10)}, DescribeOptions{SampleRows: 2})

	assert.Contains(t, out, "Sample rows (first 2 of 10):\n")
	assert.Contains(t, out, "rx,1.50\n")
	assert.NotContains(t, out, "rxx,1.50")
}

func TestDescribeDatasets_ZeroSampleRows(t *testing.T) {
	out := DescribeDatasets([]*domain.Dataset{regionDataset(4)}, DescribeOptions{SampleRows: 0})

	assert.Contains(t, out, "- sales (number)\n")
	assert.NotContains(t, out, "region,sales")
}

func TestDescribeDatasets_TextIsTruncated(t *testing.T) {
	ds := &domain.Dataset{
		Name:    "notes.txt",
		Format:  domain.FormatText,
		Columns: []domain.Column{{Name: "text", Cells: []domain.Cell{domain.StringCell("héllo wörld")}}},
		RawText: "héllo wörld",
	}

	out := DescribeDatasets([]*domain.Dataset{ds}, DescribeOptions{MaxTextChars: 5})
	assert.Contains(t, out, "Content (first 5 characters):\nhéllo\n")

	out = DescribeDatasets([]*domain.Dataset{ds}, DescribeOptions{MaxTextChars: 100})
	assert.Contains(t, out, "Content:\nhéllo wörld\n")
}

func TestDescribeDatasets_KeepsOrder(t *testing.T) {
	a := regionDataset(1)
	b := regionDataset(1)
	b.Name = "other.xlsx"
	b.Format = domain.FormatSpreadsheet
	b.Sheet = "Q1"

	out := DescribeDatasets([]*domain.Dataset{a, b}, DescribeOptions{SampleRows: 5})

	first := strings.Index(out, "Dataset 1: sales.csv")
	second := strings.Index(out, `Dataset 2: other.xlsx (spreadsheet, sheet "Q1")`)
	assert.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
}

func TestPromptBuilder_Build(t *testing.T) {
	b := NewPromptBuilder(nil, DescribeOptions{SampleRows: 5})

	p := b.Build([]*domain.Dataset{regionDataset(2)}, "  Which region sells most?  ")

	assert.Equal(t, domain.DefaultAnalysisPreamble, p.System)
	assert.True(t, strings.HasPrefix(p.User, "Data:\n\nDataset 1: sales.csv"))
	assert.True(t, strings.HasSuffix(p.User, "\nQuestion:\nWhich region sells most?\n"))
}

func TestPromptBuilder_Preamble(t *testing.T) {
	tests := []struct {
		name  string
		store *stubPromptStore
		want  string
	}{
		{"custom", &stubPromptStore{prompt: "Be terse."}, "Be terse."},
		{"load error", &stubPromptStore{err: errors.New("boom")}, domain.DefaultAnalysisPreamble},
		{"blank", &stubPromptStore{prompt: "  \n"}, domain.DefaultAnalysisPreamble},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewPromptBuilder(tt.store, DescribeOptions{})
			p := b.Build([]*domain.Dataset{regionDataset(1)}, "q")
			assert.Equal(t, tt.want, p.System)
		})
	}
}
