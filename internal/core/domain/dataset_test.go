package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"sales.xlsx", FormatSpreadsheet},
		{"LEGACY.XLS", FormatSpreadsheet},
		{"data.csv", FormatCSV},
		{"data.tsv", FormatCSV},
		{"records.json", FormatJSON},
		{"records.yml", FormatYAML},
		{"records.yaml", FormatYAML},
		{"notes.txt", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferFormat(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := InferFormat("report.pdf")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestFilePayload_ResolveFormat(t *testing.T) {
	f, err := FilePayload{Name: "x.bin", Format: FormatCSV}.ResolveFormat()
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = FilePayload{Name: "x.csv", Format: "parquet"}.ResolveFormat()
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestIngestMode_IsValid(t *testing.T) {
	for _, m := range []IngestMode{IngestSingle, IngestMixed, IngestConcat, IngestJoin} {
		assert.True(t, m.IsValid(), m)
	}
	assert.False(t, IngestMode("zip").IsValid())
}

func TestJoinSpec_Resolved(t *testing.T) {
	assert.Equal(t, JoinSpec{Column: "id", Type: JoinInner}, JoinSpec{Column: "id"}.Resolved())
	assert.Equal(t, JoinOuter, JoinSpec{Type: JoinOuter}.Resolved().Type)
	assert.False(t, JoinType("cross").IsValid())
}

func TestInferCell(t *testing.T) {
	assert.Equal(t, NullCell(), InferCell(""))
	assert.Equal(t, NullCell(), InferCell("   "))
	assert.Equal(t, NumberCell("42"), InferCell("42"))
	assert.Equal(t, NumberCell("-3.50"), InferCell(" -3.50 "))
	assert.Equal(t, StringCell("NaN"), InferCell("NaN"))
	assert.Equal(t, StringCell("Inf"), InferCell("Inf"))
	assert.Equal(t, StringCell("north"), InferCell("north"))
}

func TestCell_Float(t *testing.T) {
	v, ok := NumberCell("2.5").Float()
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	_, ok = StringCell("2.5").Float()
	assert.False(t, ok)
}

func TestColumn_Type(t *testing.T) {
	assert.Equal(t, "empty", Column{Cells: []Cell{NullCell()}}.Type())
	assert.Equal(t, "number", Column{Cells: []Cell{NumberCell("1"), NullCell()}}.Type())
	assert.Equal(t, "string", Column{Cells: []Cell{StringCell("a")}}.Type())
	assert.Equal(t, "mixed", Column{Cells: []Cell{StringCell("a"), NumberCell("1")}}.Type())
}

func testDataset() *Dataset {
	return &Dataset{
		Name:   "sales.csv",
		Format: FormatCSV,
		Columns: []Column{
			{Name: "Region", Cells: []Cell{StringCell("north"), StringCell("south")}},
			{Name: "Revenue", Cells: []Cell{NumberCell("10"), NumberCell("20")}},
		},
		SizeBytes: 64,
	}
}

func TestDataset_Accessors(t *testing.T) {
	ds := testDataset()

	assert.Equal(t, 2, ds.RowCount())
	assert.Equal(t, []string{"Region", "Revenue"}, ds.ColumnNames())
	assert.Equal(t, []Cell{StringCell("south"), NumberCell("20")}, ds.Row(1))

	col, ok := ds.Column("revenue")
	require.True(t, ok)
	assert.Equal(t, "Revenue", col.Name)

	_, ok = ds.Column("profit")
	assert.False(t, ok)

	assert.Equal(t, FileRef{Name: "sales.csv", Format: FormatCSV, SizeBytes: 64, Rows: 2, Columns: 2}, ds.FileRef())
}

func TestDataset_Validate(t *testing.T) {
	assert.NoError(t, testDataset().Validate())

	dup := testDataset()
	dup.Columns[1].Name = "Region"
	assert.True(t, errors.Is(dup.Validate(), ErrInvalidInput))

	folded := testDataset()
	folded.Columns[1].Name = "REGION"
	assert.True(t, errors.Is(folded.Validate(), ErrInvalidInput))

	ragged := testDataset()
	ragged.Columns[1].Cells = ragged.Columns[1].Cells[:1]
	assert.True(t, errors.Is(ragged.Validate(), ErrInvalidInput))
}

func TestDataset_Empty(t *testing.T) {
	ds := &Dataset{Name: "empty.csv"}
	assert.Equal(t, 0, ds.RowCount())
	assert.NoError(t, ds.Validate())
}
