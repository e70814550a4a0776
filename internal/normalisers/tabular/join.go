package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// Suffixes Join appends to non-key columns present on both sides.
const (
	LeftSuffix  = "_left"
	RightSuffix = "_right"
)

// Join merges left and right on the key column named on, matched ignoring
// case. Rows pair up where the key cells hold the same value; null keys
// never match. Every pairing of matching rows is emitted, in left order
// then right order, except for right joins which follow right order.
// Unmatched rows kept by how have nulls on the missing side; an outer join
// appends unmatched right rows after the left-driven ones.
//
// The result holds every left column, then every right column except the
// key. Other names found on both sides get LeftSuffix and RightSuffix.
func Join(name string, left, right *domain.Dataset, on string, how domain.JoinType) (*domain.Dataset, error) {
	if how == "" {
		how = domain.JoinInner
	}
	if !how.IsValid() {
		return nil, fmt.Errorf("%w: unknown join type %q", domain.ErrInvalidInput, how)
	}
	lkey := columnIndex(left, on)
	if lkey < 0 {
		return nil, fmt.Errorf("%w: %s has no column %q", domain.ErrInvalidInput, left.Name, on)
	}
	rkey := columnIndex(right, on)
	if rkey < 0 {
		return nil, fmt.Errorf("%w: %s has no column %q", domain.ErrInvalidInput, right.Name, on)
	}

	var pairs []rowPair
	switch how {
	case domain.JoinRight:
		driven, _ := matchRows(right.Columns[rkey].Cells, left.Columns[lkey].Cells, true)
		pairs = make([]rowPair, len(driven))
		for i, p := range driven {
			pairs[i] = rowPair{left: p.right, right: p.left}
		}
	default:
		keep := how != domain.JoinInner
		var matched []bool
		pairs, matched = matchRows(left.Columns[lkey].Cells, right.Columns[rkey].Cells, keep)
		if how == domain.JoinOuter {
			for r, ok := range matched {
				if !ok {
					pairs = append(pairs, rowPair{left: -1, right: r})
				}
			}
		}
	}

	shared := make(map[string]bool)
	for i, c := range right.Columns {
		if i != rkey && columnIndex(left, c.Name) >= 0 {
			shared[strings.ToLower(c.Name)] = true
		}
	}

	used := make(map[string]bool, len(left.Columns)+len(right.Columns))
	out := &domain.Dataset{
		Name:      name,
		Format:    left.Format,
		SizeBytes: left.SizeBytes + right.SizeBytes,
	}
	for i, c := range left.Columns {
		colName := c.Name
		if i != lkey && shared[strings.ToLower(c.Name)] {
			colName += LeftSuffix
		}
		cells := make([]domain.Cell, len(pairs))
		for j, p := range pairs {
			switch {
			case p.left >= 0:
				cells[j] = c.Cells[p.left]
			case i == lkey:
				cells[j] = right.Columns[rkey].Cells[p.right]
			default:
				cells[j] = domain.NullCell()
			}
		}
		out.Columns = append(out.Columns, domain.Column{Name: Unique(colName, used), Cells: cells})
	}
	for i, c := range right.Columns {
		if i == rkey {
			continue
		}
		colName := c.Name
		if shared[strings.ToLower(c.Name)] {
			colName += RightSuffix
		}
		cells := make([]domain.Cell, len(pairs))
		for j, p := range pairs {
			if p.right >= 0 {
				cells[j] = c.Cells[p.right]
			} else {
				cells[j] = domain.NullCell()
			}
		}
		out.Columns = append(out.Columns, domain.Column{Name: Unique(colName, used), Cells: cells})
	}
	return out, nil
}

// rowPair indexes one output row's source rows. -1 marks a missing side.
type rowPair struct {
	left, right int
}

// matchRows pairs every drive row with the probe rows sharing its key.
// Unmatched drive rows are kept when keep is set. matched reports which
// probe rows found a partner.
func matchRows(drive, probe []domain.Cell, keep bool) (pairs []rowPair, matched []bool) {
	index := make(map[string][]int)
	for r, cell := range probe {
		if k, ok := joinKey(cell); ok {
			index[k] = append(index[k], r)
		}
	}

	matched = make([]bool, len(probe))
	for l, cell := range drive {
		var hits []int
		if k, ok := joinKey(cell); ok {
			hits = index[k]
		}
		if len(hits) == 0 {
			if keep {
				pairs = append(pairs, rowPair{left: l, right: -1})
			}
			continue
		}
		for _, r := range hits {
			pairs = append(pairs, rowPair{left: l, right: r})
			matched[r] = true
		}
	}
	return pairs, matched
}

// joinKey is the comparable form of a key cell. Numbers compare by value,
// so "1" and "1.0" match.
func joinKey(c domain.Cell) (string, bool) {
	switch c.Kind {
	case domain.CellNull:
		return "", false
	case domain.CellNumber:
		if f, ok := c.Float(); ok {
			return "n:" + strconv.FormatFloat(f, 'g', -1, 64), true
		}
	}
	return "s:" + c.Text, true
}

func columnIndex(ds *domain.Dataset, name string) int {
	for i := range ds.Columns {
		if strings.EqualFold(ds.Columns[i].Name, name) {
			return i
		}
	}
	return -1
}
