package domain

import "time"

// FileRef summarises one input file inside a history record.
type FileRef struct {
	Name      string `json:"name"`
	Format    Format `json:"format"`
	Sheet     string `json:"sheet,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
}

// HistoryRecord is an immutable entry describing one completed analysis,
// successful or not. API keys appear only in masked form.
type HistoryRecord struct {
	// ID is a UUID assigned at creation.
	ID string

	// Timestamp is when the analysis completed, in UTC.
	Timestamp time.Time

	// Query is the user's question.
	Query string

	// Provider and Model identify the backend used.
	Provider Provider
	Model    string

	// MaskedKey is the API key reduced to its last four characters.
	MaskedKey string

	// SessionID groups records.
	SessionID string

	// Files summarises the inputs in upload order.
	Files []FileRef

	// Success mirrors the result.
	Success bool

	// ErrorKind and FailureReason are set for failures.
	ErrorKind     ErrorKind
	FailureReason string

	// Result is the full analysis result.
	Result AnalysisResult
}

// TotalRows sums rows across all input files.
func (r HistoryRecord) TotalRows() int {
	total := 0
	for _, f := range r.Files {
		total += f.Rows
	}
	return total
}

// TotalColumns sums columns across all input files.
func (r HistoryRecord) TotalColumns() int {
	total := 0
	for _, f := range r.Files {
		total += f.Columns
	}
	return total
}

// TotalBytes sums payload sizes across all input files.
func (r HistoryRecord) TotalBytes() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.SizeBytes
	}
	return total
}

// DefaultHistoryLimit bounds List when the filter sets no limit.
const DefaultHistoryLimit = 50

// HistoryFilter narrows a history listing. Zero values match everything.
type HistoryFilter struct {
	Provider  Provider
	SessionID string
	Success   *bool
	Since     time.Time
	Until     time.Time

	// Limit caps the number of records. Zero means DefaultHistoryLimit,
	// negative means unbounded.
	Limit int
}

// Matches reports whether r passes the filter, ignoring Limit.
func (f HistoryFilter) Matches(r *HistoryRecord) bool {
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.Success != nil && r.Success != *f.Success {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// EffectiveLimit resolves the zero and negative conventions of Limit.
// It returns -1 for unbounded.
func (f HistoryFilter) EffectiveLimit() int {
	switch {
	case f.Limit == 0:
		return DefaultHistoryLimit
	case f.Limit < 0:
		return -1
	default:
		return f.Limit
	}
}

// RecentWindow is the span counted by HistoryStats.RecentCount.
const RecentWindow = 7 * 24 * time.Hour

// HistoryStats aggregates the whole history.
type HistoryStats struct {
	TotalCount       int
	SuccessCount     int
	FailureCount     int
	SessionCount     int
	RecentCount      int
	PerProvider      map[Provider]int
	PerFormat        map[Format]int
	MostUsedProvider Provider
	Earliest         time.Time
	Latest           time.Time
}

// MostUsed picks the provider with the highest count, breaking ties by name
// so the answer is deterministic.
func MostUsed(counts map[Provider]int) Provider {
	var best Provider
	bestCount := 0
	for p, n := range counts {
		if n > bestCount || (n == bestCount && n > 0 && p < best) {
			best, bestCount = p, n
		}
	}
	return best
}
