package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	QuestionStatusPending   = "pending"
	QuestionStatusRunning   = "running"
	QuestionStatusCompleted = "completed"
)

// Question is one natural-language prompt in a scan, with an explicit
// ordinal position. Per-provider progress lives in ProviderStats rows so
// counters can be incremented atomically without touching the question row.
type Question struct {
	ID              uuid.UUID `db:"id"                json:"id"`
	ScanID          uuid.UUID `db:"scan_id"           json:"scan_id"`
	Text            string    `db:"text"              json:"text"`
	Position        int       `db:"position"          json:"position"`
	Status          string    `db:"status"            json:"status"`
	RetryCount      int       `db:"retry_count"       json:"retry_count"`
	LastError       *string   `db:"last_error"        json:"last_error,omitempty"`
	AvgExposureRate *float64  `db:"avg_exposure_rate" json:"avg_exposure_rate,omitempty"`
	CreatedAt       time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"        json:"updated_at"`
}

// ProviderStats tracks one (question, provider) pair: how many iterations
// have finished, how often the brand was mentioned, and the sentiment split.
// Invariant: CompletedIterations <= TotalIterations.
type ProviderStats struct {
	QuestionID          uuid.UUID `db:"question_id"          json:"question_id"`
	Provider            string    `db:"provider"             json:"provider"`
	TotalIterations     int       `db:"total_iterations"     json:"total_iterations"`
	CompletedIterations int       `db:"completed_iterations" json:"completed_iterations"`
	SuccessfulCalls     int       `db:"successful_calls"     json:"successful_calls"`
	Mentions            int       `db:"mentions"             json:"mentions"`
	SentimentPositive   int       `db:"sentiment_positive"   json:"sentiment_positive"`
	SentimentNeutral    int       `db:"sentiment_neutral"    json:"sentiment_neutral"`
	SentimentNegative   int       `db:"sentiment_negative"   json:"sentiment_negative"`
	ExposureRate        *float64  `db:"exposure_rate"        json:"exposure_rate,omitempty"`
}

// MentionRate returns mentions / successful calls as a percentage, or 0 if
// no call has succeeded yet.
func (p ProviderStats) MentionRate() float64 {
	if p.SuccessfulCalls == 0 {
		return 0
	}
	return float64(p.Mentions) / float64(p.SuccessfulCalls) * 100
}
