package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// decodeJSON flattens a JSON document into records, keeping object keys in
// source order.
func decodeJSON(data []byte) ([]record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	if !json.Valid(data) {
		var probe any
		return nil, json.Unmarshal(data, &probe)
	}

	switch data[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, err
		}
		recs := make([]record, 0, len(elems))
		for _, elem := range elems {
			rec, err := jsonRecord(elem)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		return recs, nil
	default:
		rec, err := jsonRecord(data)
		if err != nil {
			return nil, err
		}
		return []record{rec}, nil
	}
}

func jsonRecord(raw json.RawMessage) (record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		cell, err := jsonCell(raw)
		if err != nil {
			return nil, err
		}
		return record{{key: ValueColumn, cell: cell}}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var rec record
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		cell, err := jsonCell(value)
		if err != nil {
			return nil, err
		}
		// Duplicate keys: last one wins, as with encoding/json.
		if i, dup := seen[key]; dup {
			rec[i].cell = cell
			continue
		}
		seen[key] = len(rec)
		rec = append(rec, field{key: key, cell: cell})
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return rec, nil
}

func jsonCell(raw json.RawMessage) (domain.Cell, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.NullCell(), nil
	}
	switch raw[0] {
	case 'n':
		return domain.NullCell(), nil
	case 't', 'f':
		return domain.StringCell(string(raw)), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.Cell{}, err
		}
		return domain.StringCell(s), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return domain.Cell{}, err
		}
		return domain.StringCell(buf.String()), nil
	default:
		return domain.NumberCell(string(raw)), nil
	}
}
