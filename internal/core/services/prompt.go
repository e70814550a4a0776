package services

import (
	"strings"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/logger"
)

// PromptBuilder assembles the model prompt from the analysis preamble,
// the data description and the user's query.
type PromptBuilder struct {
	promptStore driven.PromptStore
	opts        DescribeOptions
}

// NewPromptBuilder creates a prompt builder. promptStore may be nil, in
// which case the built-in preamble is used.
func NewPromptBuilder(promptStore driven.PromptStore, opts DescribeOptions) *PromptBuilder {
	return &PromptBuilder{promptStore: promptStore, opts: opts}
}

// Build returns the prompt for the given datasets and query.
func (b *PromptBuilder) Build(datasets []*domain.Dataset, query string) domain.Prompt {
	var user strings.Builder
	user.WriteString("Data:\n\n")
	user.WriteString(DescribeDatasets(datasets, b.opts))
	user.WriteString("\nQuestion:\n")
	user.WriteString(strings.TrimSpace(query))
	user.WriteString("\n")

	return domain.Prompt{
		System: b.preamble(),
		User:   user.String(),
	}
}

func (b *PromptBuilder) preamble() string {
	if b.promptStore == nil {
		return domain.DefaultAnalysisPreamble
	}
	p, err := b.promptStore.Load(driven.PromptAnalysisSystem)
	if err != nil || strings.TrimSpace(p) == "" {
		logger.Warn("Using built-in analysis preamble: %v", err)
		return domain.DefaultAnalysisPreamble
	}
	return p
}
