package domain

// FilePayload represents the raw bytes of one uploaded file.
// It is the input to normalisation.
type FilePayload struct {
	// Name is the original filename.
	Name string

	// Format is the declared format. Empty means infer from Name.
	Format Format

	// Sheet selects a worksheet for spreadsheets. Empty means the first.
	Sheet string

	// Data is the raw content.
	Data []byte
}

// ResolveFormat returns the declared format, or infers one from the name.
func (p FilePayload) ResolveFormat() (Format, error) {
	if p.Format != "" {
		if !p.Format.IsValid() {
			return "", unsupported(p.Format)
		}
		return p.Format, nil
	}
	return InferFormat(p.Name)
}

// IngestMode selects how several payloads become datasets.
type IngestMode string

// Available ingest modes.
const (
	// IngestSingle expects exactly one file.
	IngestSingle IngestMode = "single"

	// IngestMixed keeps one dataset per file, in upload order.
	IngestMixed IngestMode = "mixed"

	// IngestConcat stacks tabular files into one dataset with a
	// source_file column.
	IngestConcat IngestMode = "concat"

	// IngestJoin merges two tabular files on a shared key column.
	IngestJoin IngestMode = "join"
)

// IsValid returns true if the mode is recognised.
func (m IngestMode) IsValid() bool {
	switch m {
	case IngestSingle, IngestMixed, IngestConcat, IngestJoin:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m IngestMode) String() string {
	return string(m)
}

// JoinType decides which unmatched rows a join keeps.
type JoinType string

// Available join types.
const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinOuter JoinType = "outer"
)

// IsValid returns true if the join type is recognised.
func (j JoinType) IsValid() bool {
	switch j {
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
		return true
	default:
		return false
	}
}

// JoinSpec configures IngestJoin. An empty Type means inner.
type JoinSpec struct {
	// Column is the key column, present in both files. Matched ignoring
	// case.
	Column string

	// Type selects which unmatched rows are kept.
	Type JoinType
}

// Resolved returns the spec with defaults applied.
func (j JoinSpec) Resolved() JoinSpec {
	if j.Type == "" {
		j.Type = JoinInner
	}
	return j
}
