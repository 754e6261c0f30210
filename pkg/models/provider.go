// Package models contains shared data models used across the brandlens codebase.
package models

import (
	"context"
	"time"
)

// Provider is the core interface that all AI answer-engine integrations must
// implement. Never call specific providers directly — always inject this
// interface.
type Provider interface {
	// Complete issues a single completion request for one question prompt.
	Complete(ctx context.Context, prompt string) (Completion, error)
	// ClassifySentiment labels how a response speaks about the brand. It is a
	// best-effort enrichment call; callers must tolerate failure.
	ClassifySentiment(ctx context.Context, question, response, brand string) (string, error)
	// Name returns the provider identifier (e.g., "openai", "perplexity").
	Name() string
	// CostPerCall returns the credit cost of one completion call.
	CostPerCall() int
}

// Completion is the raw output of a single provider call.
type Completion struct {
	Text      string
	LatencyMs int64
}

// ProviderResult is the transient outcome of one iteration: the completion
// plus its mention analysis. It is passed between the query component and the
// execution engine and never persisted standalone.
type ProviderResult struct {
	Provider           string
	ResponseText       string
	LatencyMs          int64
	BrandMentioned     bool
	MentionPosition    *int
	Sentiment          *string
	CompetitorMentions map[string]bool
	FetchedAt          time.Time
}
