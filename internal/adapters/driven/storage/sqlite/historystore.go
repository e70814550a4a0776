package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

// historyStore implements driven.HistoryStore.
type historyStore struct {
	store *Store
}

var _ driven.HistoryStore = (*historyStore)(nil)

const historyColumns = `id, created_at, query, provider, model, masked_key, session_id,
	success, error_kind, failure_reason, result_json`

// Append persists a record and its file summaries in one transaction.
func (s *historyStore) Append(ctx context.Context, record *domain.HistoryRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}

	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_history (`+historyColumns+`,
			total_rows, total_columns, total_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		formatTime(record.Timestamp),
		record.Query,
		string(record.Provider),
		record.Model,
		record.MaskedKey,
		record.SessionID,
		boolToInt(record.Success),
		string(record.ErrorKind),
		record.FailureReason,
		string(resultJSON),
		record.TotalRows(),
		record.TotalColumns(),
		record.TotalBytes(),
	)
	if err != nil {
		return fmt.Errorf("inserting history record: %w", err)
	}

	for i, f := range record.Files {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO history_files (history_id, position, name, format, sheet, size_bytes, row_count, column_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, record.ID, i, f.Name, string(f.Format), f.Sheet, f.SizeBytes, f.Rows, f.Columns)
		if err != nil {
			return fmt.Errorf("inserting history file %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *historyStore) Get(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM analysis_history WHERE id = ?
	`, id)

	record, err := scanHistoryRecord(row)
	if err != nil {
		return nil, err
	}

	files, err := s.files(ctx, []string{record.ID})
	if err != nil {
		return nil, err
	}
	record.Files = files[record.ID]
	return record, nil
}

// List returns matching records, most recent first. Records sharing a
// timestamp come back in reverse insertion order.
func (s *historyStore) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, string(filter.Provider))
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Success != nil {
		where = append(where, "success = ?")
		args = append(args, boolToInt(*filter.Success))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(filter.Until))
	}

	query := "SELECT " + historyColumns + " FROM analysis_history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit := filter.EffectiveLimit(); limit >= 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	records := make([]domain.HistoryRecord, 0)
	ids := make([]string, 0)
	for rows.Next() {
		record, err := scanHistoryRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
		ids = append(ids, record.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	if len(ids) == 0 {
		return records, nil
	}

	files, err := s.files(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Files = files[records[i].ID]
	}
	return records, nil
}

// Stats aggregates the whole table.
func (s *historyStore) Stats(ctx context.Context) (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{
		PerProvider: make(map[domain.Provider]int),
		PerFormat:   make(map[domain.Format]int),
	}

	var earliest, latest sql.NullString
	recentSince := formatTime(s.store.now().Add(-domain.RecentWindow))
	err := s.store.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(success), 0),
			COUNT(DISTINCT session_id),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			MIN(created_at),
			MAX(created_at)
		FROM analysis_history
	`, recentSince).Scan(
		&stats.TotalCount,
		&stats.SuccessCount,
		&stats.SessionCount,
		&stats.RecentCount,
		&earliest,
		&latest,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating history: %w", err)
	}
	stats.FailureCount = stats.TotalCount - stats.SuccessCount

	if earliest.Valid {
		if stats.Earliest, err = parseTime(earliest.String); err != nil {
			return nil, fmt.Errorf("parsing earliest timestamp: %w", err)
		}
	}
	if latest.Valid {
		if stats.Latest, err = parseTime(latest.String); err != nil {
			return nil, fmt.Errorf("parsing latest timestamp: %w", err)
		}
	}

	if err := s.countBy(ctx, "SELECT provider, COUNT(*) FROM analysis_history GROUP BY provider", func(key string, n int) {
		stats.PerProvider[domain.Provider(key)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "SELECT format, COUNT(*) FROM history_files GROUP BY format", func(key string, n int) {
		stats.PerFormat[domain.Format(key)] = n
	}); err != nil {
		return nil, err
	}

	stats.MostUsedProvider = domain.MostUsed(stats.PerProvider)
	return stats, nil
}

// ClearAll removes every record and file summary.
func (s *historyStore) ClearAll(ctx context.Context) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM history_files"); err != nil {
		return fmt.Errorf("clearing history files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM analysis_history"); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return tx.Commit()
}

// fileBatch bounds the IN list of one files query, keeping it well under
// SQLite's host parameter limit.
const fileBatch = 500

// files loads the file summaries of the given records, keyed by record ID
// and ordered by upload position.
func (s *historyStore) files(ctx context.Context, ids []string) (map[string][]domain.FileRef, error) {
	result := make(map[string][]domain.FileRef, len(ids))
	for start := 0; start < len(ids); start += fileBatch {
		end := min(start+fileBatch, len(ids))
		if err := s.filesBatch(ctx, ids[start:end], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *historyStore) filesBatch(ctx context.Context, ids []string, result map[string][]domain.FileRef) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT history_id, name, format, sheet, size_bytes, row_count, column_count
		FROM history_files
		WHERE history_id IN (`+placeholders+`)
		ORDER BY history_id, position
	`, args...)
	if err != nil {
		return fmt.Errorf("querying history files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			format string
			ref    domain.FileRef
		)
		if err := rows.Scan(&id, &ref.Name, &format, &ref.Sheet, &ref.SizeBytes, &ref.Rows, &ref.Columns); err != nil {
			return fmt.Errorf("scanning history file: %w", err)
		}
		ref.Format = domain.Format(format)
		result[id] = append(result[id], ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating history files: %w", err)
	}
	return nil
}

func (s *historyStore) countBy(ctx context.Context, query string, add func(key string, n int)) error {
	rows, err := s.store.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("counting history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scanning count: %w", err)
		}
		add(key, n)
	}
	return rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanHistoryRecord(sc scanner) (*domain.HistoryRecord, error) {
	var (
		record     domain.HistoryRecord
		createdAt  string
		provider   string
		success    int
		errorKind  string
		resultJSON string
	)
	err := sc.Scan(
		&record.ID,
		&createdAt,
		&record.Query,
		&provider,
		&record.Model,
		&record.MaskedKey,
		&record.SessionID,
		&success,
		&errorKind,
		&record.FailureReason,
		&resultJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning history record: %w", err)
	}

	if record.Timestamp, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing timestamp of %s: %w", record.ID, err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &record.Result); err != nil {
		return nil, fmt.Errorf("decoding result of %s: %w", record.ID, err)
	}
	record.Provider = domain.Provider(provider)
	record.Success = success != 0
	record.ErrorKind = domain.ErrorKind(errorKind)
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
