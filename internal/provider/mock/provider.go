package mock

import (
	"context"

	"github.com/brandlens/brandlens/internal/provider"
	"github.com/brandlens/brandlens/pkg/models"
)

// MockProvider satisfies models.Provider for testing.
type MockProvider struct {
	Name_         string
	Cost          int
	CompleteFunc  func(ctx context.Context, prompt string) (models.Completion, error)
	SentimentFunc func(ctx context.Context, question, response, brand string) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) CostPerCall() int {
	if m.Cost > 0 {
		return m.Cost
	}
	return 1
}

func (m *MockProvider) Complete(ctx context.Context, prompt string) (models.Completion, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return models.Completion{}, nil
}

func (m *MockProvider) ClassifySentiment(ctx context.Context, question, response, brand string) (string, error) {
	if m.SentimentFunc != nil {
		return m.SentimentFunc(ctx, question, response, brand)
	}
	return models.SentimentNeutral, nil
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		Cost:  1,
		CompleteFunc: func(_ context.Context, prompt string) (models.Completion, error) {
			return models.Completion{
				Text:      "Simulated answer engine response for testing.",
				LatencyMs: 42,
			}, nil
		},
		SentimentFunc: func(_ context.Context, _, _, _ string) (string, error) {
			return models.SentimentNeutral, nil
		},
	}
}

// NewFailingProvider returns a MockProvider whose calls always return the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ string) (models.Completion, error) {
			return models.Completion{}, err
		},
		SentimentFunc: func(_ context.Context, _, _, _ string) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ string) (models.Completion, error) {
			<-ctx.Done()
			return models.Completion{}, provider.ErrCompletionTimeout
		},
		SentimentFunc: func(ctx context.Context, _, _, _ string) (string, error) {
			<-ctx.Done()
			return "", provider.ErrCompletionTimeout
		},
	}
}

// Compile-time check that MockProvider implements Provider.
var _ models.Provider = (*MockProvider)(nil)
