package scan

import (
	"math"
	"strings"

	"github.com/brandlens/brandlens/pkg/models"
)

// Aggregate folds a completed scan's questions, per-provider stats, and raw
// iterations into the final metrics payload.
//
// The overall score is the mean of each question's average exposure rate, not
// raw mentions over raw iterations: questions are weighted equally even when
// their iteration counts differ. All percentages are rounded to one decimal
// so payloads stay comparable across runs.
func Aggregate(settings models.ScanSettings, questions []*models.Question, stats []*models.ProviderStats, iterations []*models.Iteration) models.ScanMetrics {
	metrics := models.ScanMetrics{
		ProviderScores: make(map[string]float64),
		ShareOfVoice:   make(map[string]float64),
		KeywordScores:  make(map[string]float64),
	}

	// Overall score: question-weighted mean of exposure rates.
	var sum float64
	var counted int
	for _, q := range questions {
		if q.AvgExposureRate == nil {
			continue
		}
		sum += *q.AvgExposureRate
		counted++
	}
	if counted > 0 {
		metrics.OverallScore = round1(sum / float64(counted))
	}

	// Per-provider visibility: mentions over successful calls across the scan.
	type providerTotals struct {
		mentions   int
		successful int
	}
	byProvider := make(map[string]*providerTotals)
	for _, st := range stats {
		pt, ok := byProvider[st.Provider]
		if !ok {
			pt = &providerTotals{}
			byProvider[st.Provider] = pt
		}
		pt.mentions += st.Mentions
		pt.successful += st.SuccessfulCalls

		metrics.SentimentDistribution.Positive += st.SentimentPositive
		metrics.SentimentDistribution.Neutral += st.SentimentNeutral
		metrics.SentimentDistribution.Negative += st.SentimentNegative
	}
	for name, pt := range byProvider {
		if pt.successful > 0 {
			metrics.ProviderScores[name] = round1(float64(pt.mentions) / float64(pt.successful) * 100)
		} else {
			metrics.ProviderScores[name] = 0
		}
	}

	// Share of voice and keyword scores come from the raw iteration log.
	brandMentions := 0
	competitorMentions := make(map[string]int)
	keywordHits := make(map[string]int)
	successful := 0
	for _, it := range iterations {
		metrics.TotalIterations++
		if it.Status != models.IterationStatusSuccess {
			continue
		}
		successful++
		if it.BrandMentioned {
			brandMentions++
		}
		for comp, mentioned := range it.CompetitorMentions {
			if mentioned {
				competitorMentions[comp]++
			}
		}
		lower := strings.ToLower(it.ResponseText)
		for _, kw := range settings.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				keywordHits[kw]++
			}
		}
	}
	metrics.SuccessfulIterations = successful

	totalVoice := brandMentions
	for _, n := range competitorMentions {
		totalVoice += n
	}
	if totalVoice > 0 {
		metrics.ShareOfVoice[settings.BrandName] = round1(float64(brandMentions) / float64(totalVoice) * 100)
		for _, comp := range settings.Competitors {
			metrics.ShareOfVoice[comp] = round1(float64(competitorMentions[comp]) / float64(totalVoice) * 100)
		}
	}

	if successful > 0 {
		for _, kw := range settings.Keywords {
			if kw == "" {
				continue
			}
			metrics.KeywordScores[kw] = round1(float64(keywordHits[kw]) / float64(successful) * 100)
		}
	}

	metrics.BestQuestion, metrics.WorstQuestion = rankQuestions(questions)

	return metrics
}

// rankQuestions picks the best and worst performing questions by exposure
// rate. With fewer than two finalized questions the ranking is omitted.
func rankQuestions(questions []*models.Question) (*models.QuestionRanking, *models.QuestionRanking) {
	var best, worst *models.Question
	for _, q := range questions {
		if q.AvgExposureRate == nil {
			continue
		}
		if best == nil || *q.AvgExposureRate > *best.AvgExposureRate {
			best = q
		}
		if worst == nil || *q.AvgExposureRate < *worst.AvgExposureRate {
			worst = q
		}
	}
	if best == nil || worst == nil || best == worst {
		return nil, nil
	}
	return &models.QuestionRanking{
			QuestionID:  best.ID.String(),
			Text:        best.Text,
			MentionRate: round1(*best.AvgExposureRate),
		}, &models.QuestionRanking{
			QuestionID:  worst.ID.String(),
			Text:        worst.Text,
			MentionRate: round1(*worst.AvgExposureRate),
		}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
