package scan

import (
	"context"
	"log/slog"
	"strings"

	"github.com/brandlens/brandlens/pkg/models"
)

// MentionAnalysis is the outcome of scanning one response for the brand and
// its competitors.
type MentionAnalysis struct {
	BrandMentioned     bool
	MentionPosition    *int
	CompetitorMentions map[string]bool
}

// AnalyzeMentions scans a provider response for the brand name or any
// configured keyword (case-insensitive), locates the first paragraph
// containing a match to derive a 1-based mention position, and checks each
// competitor name separately.
func AnalyzeMentions(response, brand string, keywords, competitors []string) MentionAnalysis {
	lower := strings.ToLower(response)

	terms := make([]string, 0, len(keywords)+1)
	if brand != "" {
		terms = append(terms, strings.ToLower(brand))
	}
	for _, kw := range keywords {
		if kw != "" {
			terms = append(terms, strings.ToLower(kw))
		}
	}

	analysis := MentionAnalysis{
		CompetitorMentions: make(map[string]bool, len(competitors)),
	}

	for _, term := range terms {
		if strings.Contains(lower, term) {
			analysis.BrandMentioned = true
			pos := mentionParagraph(lower, term)
			analysis.MentionPosition = &pos
			break
		}
	}

	for _, comp := range competitors {
		if comp == "" {
			continue
		}
		analysis.CompetitorMentions[comp] = strings.Contains(lower, strings.ToLower(comp))
	}

	return analysis
}

// mentionParagraph returns the 1-based index of the first paragraph
// containing term. The caller guarantees term occurs in text.
func mentionParagraph(text, term string) int {
	paragraphs := strings.Split(text, "\n\n")
	for i, p := range paragraphs {
		if strings.Contains(p, term) {
			return i + 1
		}
	}
	return 1
}

// AssignSentiment labels a brand mention via a secondary provider call.
// Enrichment failure must never fail the iteration, so any error falls back
// to a deterministic neutral.
func AssignSentiment(ctx context.Context, p models.Provider, question, response, brand string) string {
	sentiment, err := p.ClassifySentiment(ctx, question, response, brand)
	if err != nil {
		slog.Debug("sentiment classification failed, defaulting to neutral",
			"provider", p.Name(), "error", err)
		return models.SentimentNeutral
	}
	switch sentiment {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
		return sentiment
	default:
		return models.SentimentNeutral
	}
}
