package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/brandlens/brandlens/internal/provider/mock"
	"github.com/brandlens/brandlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeMentions_BrandCaseInsensitive(t *testing.T) {
	a := AnalyzeMentions("I would recommend ACME Cloud for small teams.", "Acme Cloud", nil, nil)

	assert.True(t, a.BrandMentioned)
	require.NotNil(t, a.MentionPosition)
	assert.Equal(t, 1, *a.MentionPosition)
}

func TestAnalyzeMentions_KeywordCountsAsMention(t *testing.T) {
	a := AnalyzeMentions(
		"Popular observability platforms include acmecloud.io and friends.",
		"Acme Cloud",
		[]string{"acmecloud.io"},
		nil,
	)

	assert.True(t, a.BrandMentioned)
}

func TestAnalyzeMentions_NoMention(t *testing.T) {
	a := AnalyzeMentions("Try one of the big cloud vendors.", "Acme Cloud", []string{"acmecloud.io"}, nil)

	assert.False(t, a.BrandMentioned)
	assert.Nil(t, a.MentionPosition)
}

func TestAnalyzeMentions_PositionIsParagraphIndex(t *testing.T) {
	response := "There are several options to consider.\n\n" +
		"First, the established players dominate.\n\n" +
		"For smaller teams, Acme Cloud is a solid pick."

	a := AnalyzeMentions(response, "Acme Cloud", nil, nil)

	require.NotNil(t, a.MentionPosition)
	assert.Equal(t, 3, *a.MentionPosition)
}

func TestAnalyzeMentions_Competitors(t *testing.T) {
	a := AnalyzeMentions(
		"Datadog and New Relic are the usual picks; Acme Cloud is the challenger.",
		"Acme Cloud",
		nil,
		[]string{"Datadog", "New Relic", "Splunk"},
	)

	assert.True(t, a.BrandMentioned)
	assert.Equal(t, map[string]bool{
		"Datadog":   true,
		"New Relic": true,
		"Splunk":    false,
	}, a.CompetitorMentions)
}

func TestAssignSentiment_PassesThroughValidLabel(t *testing.T) {
	p := mock.NewMockProvider()
	p.SentimentFunc = func(_ context.Context, _, _, _ string) (string, error) {
		return models.SentimentPositive, nil
	}

	got := AssignSentiment(context.Background(), p, "q", "resp", "Acme Cloud")
	assert.Equal(t, models.SentimentPositive, got)
}

func TestAssignSentiment_ErrorFallsBackToNeutral(t *testing.T) {
	p := mock.NewFailingProvider(errors.New("provider exploded"))

	got := AssignSentiment(context.Background(), p, "q", "resp", "Acme Cloud")
	assert.Equal(t, models.SentimentNeutral, got)
}

func TestAssignSentiment_UnknownLabelFallsBackToNeutral(t *testing.T) {
	p := mock.NewMockProvider()
	p.SentimentFunc = func(_ context.Context, _, _, _ string) (string, error) {
		return "ecstatic", nil
	}

	got := AssignSentiment(context.Background(), p, "q", "resp", "Acme Cloud")
	assert.Equal(t, models.SentimentNeutral, got)
}
