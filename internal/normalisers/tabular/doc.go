// Package tabular turns row-oriented string grids into datasets.
//
// It owns the rules every tabular normaliser shares:
//
//   - The first row is the header when it has at least one non-empty cell,
//     no numeric cells and no repeated names. Otherwise columns are named
//     col_1..col_n and the first row is data.
//   - Empty header cells and cells beyond the header get synthetic names.
//   - Short rows are padded with nulls so all columns have equal length.
//   - Fully blank rows are skipped.
//
// Concat stacks several datasets into one, adding a source_file column.
package tabular
