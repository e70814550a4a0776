package records

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// decodeYAML flattens the first YAML document into records, keeping
// mapping keys in source order.
func decodeYAML(data []byte) ([]record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}

	root := resolve(doc.Content[0])
	if root.Kind == yaml.SequenceNode {
		recs := make([]record, 0, len(root.Content))
		for _, elem := range root.Content {
			rec, err := yamlRecord(resolve(elem))
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		return recs, nil
	}
	rec, err := yamlRecord(root)
	if err != nil {
		return nil, err
	}
	return []record{rec}, nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func yamlRecord(n *yaml.Node) (record, error) {
	if n.Kind != yaml.MappingNode {
		cell, err := yamlCell(n)
		if err != nil {
			return nil, err
		}
		return record{{key: ValueColumn, cell: cell}}, nil
	}

	var rec record
	seen := make(map[string]int)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := resolve(n.Content[i]).Value
		cell, err := yamlCell(resolve(n.Content[i+1]))
		if err != nil {
			return nil, err
		}
		if j, dup := seen[key]; dup {
			rec[j].cell = cell
			continue
		}
		seen[key] = len(rec)
		rec = append(rec, field{key: key, cell: cell})
	}
	return rec, nil
}

func yamlCell(n *yaml.Node) (domain.Cell, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return domain.NullCell(), nil
		case "!!int", "!!float":
			if domain.IsNumeric(n.Value) {
				return domain.NumberCell(n.Value), nil
			}
			return domain.StringCell(n.Value), nil
		default:
			return domain.StringCell(n.Value), nil
		}
	case yaml.MappingNode, yaml.SequenceNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return domain.Cell{}, err
		}
		out, err := json.Marshal(jsonSafe(v))
		if err != nil {
			return domain.Cell{}, err
		}
		return domain.StringCell(string(out)), nil
	default:
		return domain.Cell{}, fmt.Errorf("unsupported YAML node at line %d", n.Line)
	}
}

// jsonSafe converts map[any]any values (from non-string YAML keys) into
// map[string]any so encoding/json can marshal them.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = jsonSafe(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonSafe(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = jsonSafe(val)
		}
		return t
	default:
		return v
	}
}
