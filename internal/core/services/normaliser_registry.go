package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/logger"
	"github.com/tabula-labs/tabula/internal/normalisers/tabular"
)

// Ensure NormaliserRegistry implements the interface.
var _ driven.NormaliserRegistry = (*NormaliserRegistry)(nil)

// MergedDatasetName names the dataset produced by concat mode.
const MergedDatasetName = "merged"

// JoinedDatasetName names the dataset produced by join mode.
const JoinedDatasetName = "joined"

// NormaliserRegistry dispatches payloads to normalisers by format tag.
// When several normalisers claim a format, the highest priority wins.
type NormaliserRegistry struct {
	mu           sync.RWMutex
	normalisers  map[domain.Format][]driven.Normaliser
	maxFileBytes int64
}

// NewNormaliserRegistry creates a registry enforcing the given per-file
// size ceiling. A non-positive ceiling falls back to the default.
func NewNormaliserRegistry(maxFileBytes int64, normalisers ...driven.Normaliser) *NormaliserRegistry {
	if maxFileBytes <= 0 {
		maxFileBytes = domain.DefaultEngineSettings().MaxFileBytes
	}
	r := &NormaliserRegistry{
		normalisers:  make(map[domain.Format][]driven.Normaliser),
		maxFileBytes: maxFileBytes,
	}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// Register adds a normaliser to the registry.
func (r *NormaliserRegistry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range n.SupportedFormats() {
		list := append(r.normalisers[f], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.normalisers[f] = list
	}
}

// SupportedFormats returns all formats that can be normalised.
func (r *NormaliserRegistry) SupportedFormats() []domain.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var formats []domain.Format
	for _, f := range domain.AllFormats() {
		if len(r.normalisers[f]) > 0 {
			formats = append(formats, f)
		}
	}
	return formats
}

func (r *NormaliserRegistry) lookup(payload *domain.FilePayload) (driven.Normaliser, domain.Format, error) {
	format, err := payload.ResolveFormat()
	if err != nil {
		return nil, "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.normalisers[format]
	if len(list) == 0 {
		return nil, "", fmt.Errorf("%w: no normaliser for %s", domain.ErrUnsupportedFormat, format)
	}
	return list[0], format, nil
}

// Normalise converts one payload. The size ceiling is checked first, so an
// oversized file is rejected without being parsed.
func (r *NormaliserRegistry) Normalise(ctx context.Context, payload *domain.FilePayload) (*domain.Dataset, error) {
	if payload == nil {
		return nil, domain.ErrInvalidInput
	}
	if size := int64(len(payload.Data)); size > r.maxFileBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", domain.ErrPayloadTooLarge, payload.Name, size, r.maxFileBytes)
	}

	n, format, err := r.lookup(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", payload.Name, err)
	}

	resolved := *payload
	resolved.Format = format
	logger.Debug("Normalising %s as %s (%d bytes)", payload.Name, format, len(payload.Data))

	ds, err := n.Normalise(ctx, &resolved)
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	logger.Debug("Normalised %s: %d rows, %d columns", ds.Name, ds.RowCount(), len(ds.Columns))
	return ds, nil
}

// NormaliseAll converts payloads in upload order. Every payload passes the
// size check before any is parsed. join is only read in join mode.
func (r *NormaliserRegistry) NormaliseAll(ctx context.Context, payloads []domain.FilePayload, mode domain.IngestMode, join domain.JoinSpec) ([]*domain.Dataset, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: no files", domain.ErrInvalidInput)
	}
	if mode == "" {
		mode = domain.IngestMixed
		if len(payloads) == 1 {
			mode = domain.IngestSingle
		}
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: unknown ingest mode %q", domain.ErrInvalidInput, mode)
	}
	if mode == domain.IngestSingle && len(payloads) != 1 {
		return nil, fmt.Errorf("%w: single mode takes one file, got %d", domain.ErrInvalidInput, len(payloads))
	}
	if mode == domain.IngestJoin {
		join = join.Resolved()
		if len(payloads) != 2 {
			return nil, fmt.Errorf("%w: join mode takes two files, got %d", domain.ErrInvalidInput, len(payloads))
		}
		if strings.TrimSpace(join.Column) == "" {
			return nil, fmt.Errorf("%w: join mode needs a key column", domain.ErrInvalidInput)
		}
		if !join.Type.IsValid() {
			return nil, fmt.Errorf("%w: unknown join type %q", domain.ErrInvalidInput, join.Type)
		}
	}

	for i := range payloads {
		if size := int64(len(payloads[i].Data)); size > r.maxFileBytes {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", domain.ErrPayloadTooLarge, payloads[i].Name, size, r.maxFileBytes)
		}
	}

	datasets := make([]*domain.Dataset, 0, len(payloads))
	for i := range payloads {
		ds, err := r.Normalise(ctx, &payloads[i])
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}

	if mode != domain.IngestConcat && mode != domain.IngestJoin {
		return datasets, nil
	}
	for _, ds := range datasets {
		if !ds.Format.IsTabular() {
			return nil, fmt.Errorf("%w: %s mode needs tabular files, %s is %s", domain.ErrUnsupportedFormat, mode, ds.Name, ds.Format)
		}
	}
	if mode == domain.IngestConcat {
		return []*domain.Dataset{tabular.Concat(MergedDatasetName, datasets)}, nil
	}

	joined, err := tabular.Join(JoinedDatasetName, datasets[0], datasets[1], join.Column, join.Type)
	if err != nil {
		return nil, err
	}
	logger.Debug("Joined %s and %s on %q (%s): %d rows", datasets[0].Name, datasets[1].Name, join.Column, join.Type, joined.RowCount())
	return []*domain.Dataset{joined}, nil
}

// Sheets lists worksheet names for formats that have them. Other formats
// report a single unnamed table.
func (r *NormaliserRegistry) Sheets(ctx context.Context, payload *domain.FilePayload) ([]string, error) {
	if payload == nil {
		return nil, domain.ErrInvalidInput
	}
	n, format, err := r.lookup(payload)
	if err != nil {
		return nil, err
	}
	lister, ok := n.(driven.SheetLister)
	if !ok {
		return []string{}, nil
	}
	resolved := *payload
	resolved.Format = format
	return lister.Sheets(ctx, &resolved)
}
