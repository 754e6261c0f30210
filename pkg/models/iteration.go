package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	IterationStatusSuccess = "success"
	IterationStatusFailed  = "failed"
)

// Sentiment labels assigned to brand mentions.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Iteration is one provider call for one question, identified by
// (question, provider, index). Rows are append-only: the last written
// iteration is the durable resume checkpoint, so rows are never updated.
type Iteration struct {
	ID                 uuid.UUID       `db:"id"                  json:"id"`
	ScanID             uuid.UUID       `db:"scan_id"             json:"scan_id"`
	QuestionID         uuid.UUID       `db:"question_id"         json:"question_id"`
	Provider           string          `db:"provider"            json:"provider"`
	Index              int             `db:"iteration_index"     json:"index"`
	Status             string          `db:"status"              json:"status"`
	ResponseText       string          `db:"response_text"       json:"response_text"`
	BrandMentioned     bool            `db:"brand_mentioned"     json:"brand_mentioned"`
	MentionPosition    *int            `db:"mention_position"    json:"mention_position,omitempty"`
	Sentiment          *string         `db:"sentiment"           json:"sentiment,omitempty"`
	CompetitorMentions map[string]bool `db:"competitor_mentions" json:"competitor_mentions,omitempty"`
	LatencyMs          int64           `db:"latency_ms"          json:"latency_ms"`
	ErrorMessage       *string         `db:"error_message"       json:"error_message,omitempty"`
	CreatedAt          time.Time       `db:"created_at"          json:"created_at"`
}
