package models

// ScanMetrics is the aggregated output computed once every question in a
// scan has been finalized. All percentages carry one decimal place so
// payloads stay comparable across runs.
type ScanMetrics struct {
	OverallScore          float64            `json:"overall_score"`
	SentimentDistribution SentimentBreakdown `json:"sentiment_distribution"`
	ProviderScores        map[string]float64 `json:"provider_scores"`
	ShareOfVoice          map[string]float64 `json:"share_of_voice"`
	KeywordScores         map[string]float64 `json:"keyword_scores"`
	BestQuestion          *QuestionRanking   `json:"best_question,omitempty"`
	WorstQuestion         *QuestionRanking   `json:"worst_question,omitempty"`
	TotalIterations       int                `json:"total_iterations"`
	SuccessfulIterations  int                `json:"successful_iterations"`
}

// SentimentBreakdown counts brand mentions per sentiment label.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// QuestionRanking identifies a question by its mention rate for reporting.
type QuestionRanking struct {
	QuestionID  string  `json:"question_id"`
	Text        string  `json:"text"`
	MentionRate float64 `json:"mention_rate"`
}
