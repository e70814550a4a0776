// Package normalisers contains the format-specific normalisers that turn
// uploaded files into datasets.
//
//   - csv: comma, semicolon and tab separated text
//   - spreadsheet: .xlsx family via excelize, legacy .xls via extrame/xls
//   - records: JSON and YAML structured records
//   - plaintext: free text, one row per line
//   - tabular: shared header detection and row assembly
//
// Normalisers are registered with services.NormaliserRegistry, which picks
// one by format tag and priority.
package normalisers
