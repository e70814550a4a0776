package records

import (
	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/normalisers/tabular"
)

// ValueColumn names the column used for scalar elements.
const ValueColumn = "value"

// field is one key/value pair of a record, in source order.
type field struct {
	key  string
	cell domain.Cell
}

// record is one row before column alignment.
type record []field

// assemble aligns records on the union of their keys.
func assemble(name string, format domain.Format, recs []record) *domain.Dataset {
	var keys []string
	index := make(map[string]int)
	for _, rec := range recs {
		for _, f := range rec {
			if _, ok := index[f.key]; !ok {
				index[f.key] = len(keys)
				keys = append(keys, f.key)
			}
		}
	}

	names := tabular.ColumnNames(keys, len(keys))
	ds := &domain.Dataset{Name: name, Format: format, Columns: make([]domain.Column, len(keys))}
	for i := range keys {
		ds.Columns[i] = domain.Column{Name: names[i], Cells: make([]domain.Cell, len(recs))}
		for r := range recs {
			ds.Columns[i].Cells[r] = domain.NullCell()
		}
	}
	for r, rec := range recs {
		for _, f := range rec {
			ds.Columns[index[f.key]].Cells[r] = f.cell
		}
	}
	return ds
}
