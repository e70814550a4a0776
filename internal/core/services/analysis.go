package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/core/ports/driving"
	"github.com/tabula-labs/tabula/internal/logger"
)

// Ensure AnalysisService implements the interface.
var _ driving.AnalysisService = (*AnalysisService)(nil)

// AnalysisService orchestrates one analysis: normalise the inputs, build
// the prompt, dispatch to the backend with retries, parse the response and
// record the outcome in history.
type AnalysisService struct {
	normalisers driven.NormaliserRegistry
	backends    driven.BackendRegistry
	history     driving.HistoryService
	prompts     *PromptBuilder
	parser      *ResponseParser
	settings    domain.EngineSettings
	retry       RetryPolicy
	sleep       SleepFunc
}

// NewAnalysisService creates the orchestrator. history may be nil, in which
// case nothing is recorded; promptStore may be nil to use the built-in
// preamble.
func NewAnalysisService(
	normalisers driven.NormaliserRegistry,
	backends driven.BackendRegistry,
	history driving.HistoryService,
	promptStore driven.PromptStore,
	settings domain.EngineSettings,
) *AnalysisService {
	return &AnalysisService{
		normalisers: normalisers,
		backends:    backends,
		history:     history,
		prompts: NewPromptBuilder(promptStore, DescribeOptions{
			SampleRows:   settings.SampleRows,
			MaxTextChars: settings.MaxTextChars,
		}),
		parser:   NewResponseParser(),
		settings: settings,
		retry:    NewRetryPolicy(settings),
		sleep:    contextSleep,
	}
}

// RunAnalysis never returns an error. Every completed call, successful or
// not, appends exactly one history record. A call abandoned through ctx
// returns a Canceled result and records nothing.
func (s *AnalysisService) RunAnalysis(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult {
	cfg := s.backendConfig(req.Backend)
	logger.Section("Analysis")
	logger.Debug("Backend: %s, model %s, key %s", cfg.Provider, cfg.ResolvedModel(), cfg.MaskedKey())

	datasets, err := s.ingest(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return canceledResult(ctx, 0)
		}
		logger.Warn("Ingestion failed: %v", err)
		return s.complete(ctx, req, cfg, nil, domain.FailedResult(err, 0))
	}

	if strings.TrimSpace(req.Query) == "" {
		err := fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
		return s.complete(ctx, req, cfg, datasets, domain.FailedResult(err, 0))
	}

	backend, err := s.backends.Resolve(cfg)
	if err != nil {
		logger.Warn("Backend unavailable: %v", err)
		return s.complete(ctx, req, cfg, datasets, domain.FailedResult(err, 0))
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.Debug("Closing backend: %v", cerr)
		}
	}()

	prompt := s.prompts.Build(datasets, req.Query)
	logger.Debug("Prompt: %d system chars, %d user chars", len(prompt.System), len(prompt.User))

	raw, attempts, err := s.dispatch(ctx, backend, prompt, cfg.Timeout)
	if err != nil {
		if ctx.Err() != nil {
			return canceledResult(ctx, attempts)
		}
		logger.Warn("Backend failed after %d attempt(s): %v", attempts, err)
		return s.complete(ctx, req, cfg, datasets, domain.FailedResult(err, attempts))
	}

	out := s.parser.Parse(raw, datasets)
	for _, w := range out.Warnings {
		logger.Warn("%s", w)
	}
	logger.Info("Parsed %d chart(s), %d warning(s)", len(out.Charts), len(out.Warnings))

	result := domain.AnalysisResult{
		Success:     true,
		Insight:     out.Insight,
		Charts:      out.Charts,
		Warnings:    out.Warnings,
		RawResponse: raw,
		Attempts:    attempts,
	}
	return s.complete(ctx, req, cfg, datasets, result)
}

// TestConnection resolves cfg and pings the provider once, without retries.
func (s *AnalysisService) TestConnection(ctx context.Context, cfg domain.BackendConfig) error {
	cfg = s.backendConfig(cfg)
	backend, err := s.backends.Resolve(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	pingCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout(cfg.Timeout))
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		return timeoutErr(err)
	}
	logger.Info("Connection to %s (%s) ok", cfg.Provider, backend.ModelName())
	return nil
}

// Sheets lists worksheet names of a spreadsheet payload.
func (s *AnalysisService) Sheets(ctx context.Context, payload domain.FilePayload) ([]string, error) {
	return s.normalisers.Sheets(ctx, &payload)
}

// backendConfig fills an incomplete request config from the configured
// default backend. Values from the request always win.
func (s *AnalysisService) backendConfig(cfg domain.BackendConfig) domain.BackendConfig {
	def := s.settings.DefaultBackend
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.Provider != def.Provider {
		return cfg
	}
	if cfg.APIKey == "" {
		cfg.APIKey = def.APIKey
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if len(cfg.Headers) == 0 {
		cfg.Headers = def.Headers
	}
	return cfg
}

// ingest returns the request's datasets, normalising raw files when given.
func (s *AnalysisService) ingest(ctx context.Context, req domain.AnalysisRequest) ([]*domain.Dataset, error) {
	if len(req.Files) == 0 {
		if len(req.Datasets) == 0 {
			return nil, fmt.Errorf("%w: no files", domain.ErrInvalidInput)
		}
		for _, ds := range req.Datasets {
			if err := ds.Validate(); err != nil {
				return nil, err
			}
		}
		return req.Datasets, nil
	}
	datasets, err := s.normalisers.NormaliseAll(ctx, req.Files, req.Mode, req.Join)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return datasets, nil
}

// dispatch sends the prompt, retrying per the retry policy. It returns the
// raw response and the number of attempts made.
func (s *AnalysisService) dispatch(ctx context.Context, backend driven.Backend, prompt domain.Prompt, timeout time.Duration) (string, int, error) {
	retries := 0
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout(timeout))
		raw, err := backend.Send(attemptCtx, prompt)
		cancel()
		if err == nil {
			return raw, attempt, nil
		}
		if ctx.Err() != nil {
			return "", attempt, ctx.Err()
		}
		err = timeoutErr(err)

		if !s.retry.ShouldRetry(err, retries) {
			return "", attempt, err
		}
		delay := s.retry.Delay(retries, domain.RetryAfterHint(err))
		logger.Warn("Attempt %d failed with %s, retrying in %s", attempt, domain.ClassifyError(err), delay)
		if serr := s.sleep(ctx, delay); serr != nil {
			return "", attempt, serr
		}
		retries++
	}
}

func (s *AnalysisService) attemptTimeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return s.settings.RequestTimeout
}

// complete records the result and returns it with the history outcome
// attached. A failed write never changes Success.
func (s *AnalysisService) complete(
	ctx context.Context,
	req domain.AnalysisRequest,
	cfg domain.BackendConfig,
	datasets []*domain.Dataset,
	result domain.AnalysisResult,
) domain.AnalysisResult {
	if s.history == nil {
		return result
	}

	record := &domain.HistoryRecord{
		Query:         req.Query,
		Provider:      cfg.Provider,
		Model:         cfg.ResolvedModel(),
		MaskedKey:     cfg.MaskedKey(),
		SessionID:     req.SessionID,
		Files:         fileRefs(req, datasets),
		Success:       result.Success,
		ErrorKind:     result.ErrorKind,
		FailureReason: result.ErrorDetail,
		Result:        result,
	}
	// The record outlives the caller's request.
	if err := s.history.Record(context.WithoutCancel(ctx), record); err != nil {
		logger.Error("History write failed: %v", err)
		result.StorageWarning = fmt.Sprintf("%s %v", domain.DescribeError(domain.ErrorKindStorage), err)
		return result
	}
	result.HistoryID = record.ID
	return result
}

// fileRefs summarises the inputs. Datasets are used when they map one to
// one onto the uploaded files; otherwise the raw payloads are described.
func fileRefs(req domain.AnalysisRequest, datasets []*domain.Dataset) []domain.FileRef {
	if len(datasets) > 0 && (len(req.Files) == 0 || (len(datasets) == len(req.Files) && req.Mode != domain.IngestConcat)) {
		refs := make([]domain.FileRef, 0, len(datasets))
		for _, ds := range datasets {
			refs = append(refs, ds.FileRef())
		}
		return refs
	}

	refs := make([]domain.FileRef, 0, len(req.Files))
	for _, f := range req.Files {
		format, err := f.ResolveFormat()
		if err != nil {
			format = f.Format
		}
		refs = append(refs, domain.FileRef{
			Name:      f.Name,
			Format:    format,
			Sheet:     f.Sheet,
			SizeBytes: int64(len(f.Data)),
		})
	}
	return refs
}

// timeoutErr tags a bare deadline error with ErrTimeout.
func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}

func canceledResult(ctx context.Context, attempts int) domain.AnalysisResult {
	logger.Info("Analysis canceled, nothing recorded")
	return domain.FailedResult(fmt.Errorf("%w: %w", domain.ErrCanceled, context.Cause(ctx)), attempts)
}
