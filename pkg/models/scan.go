package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ScanStatusPending   = "pending"
	ScanStatusRunning   = "running"
	ScanStatusPaused    = "paused"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// Pause reasons set by the execution engine when a scan is suspended.
const (
	PauseReasonRateLimit           = "rate_limit"
	PauseReasonNetworkError        = "network_error"
	PauseReasonAuthError           = "auth_error"
	PauseReasonInsufficientCredits = "insufficient_credits"
	PauseReasonUserRequested       = "user_requested"
)

// ScanSettings is the frozen configuration snapshot taken when a scan is
// created. The engine reads only this copy, so later edits to the brand's
// keywords or competitors never change a run already in flight.
type ScanSettings struct {
	BrandName             string         `json:"brand_name"`
	Keywords              []string       `json:"keywords"`
	Competitors           []string       `json:"competitors"`
	IterationsPerProvider map[string]int `json:"iterations_per_provider"`
	CallTimeoutSecs       int            `json:"call_timeout_secs"`
	Concurrency           int            `json:"concurrency"`
	StatusCheckEvery      int            `json:"status_check_every"`
}

// TotalIterations returns questions x the sum of configured provider iterations.
func (s ScanSettings) TotalIterations(questionCount int) int {
	perQuestion := 0
	for _, n := range s.IterationsPerProvider {
		perQuestion += n
	}
	return questionCount * perQuestion
}

// BatchScan is one visibility scan run: a fixed set of questions asked
// repeatedly across AI providers for a single brand. Progress counters and
// status are owned by the execution engine while the scan is active; the API
// layer only creates the row and flips pause/resume.
type BatchScan struct {
	ID                  uuid.UUID    `db:"id"                   json:"id"`
	TenantID            uuid.UUID    `db:"tenant_id"            json:"tenant_id"`
	BrandName           string       `db:"brand_name"           json:"brand_name"`
	Status              string       `db:"status"               json:"status"`
	PauseReason         *string      `db:"pause_reason"         json:"pause_reason,omitempty"`
	TotalQuestions      int          `db:"total_questions"      json:"total_questions"`
	CompletedQuestions  int          `db:"completed_questions"  json:"completed_questions"`
	TotalIterations     int          `db:"total_iterations"     json:"total_iterations"`
	CompletedIterations int          `db:"completed_iterations" json:"completed_iterations"`
	EstimatedCredits    int          `db:"estimated_credits"    json:"estimated_credits"`
	UsedCredits         int          `db:"used_credits"         json:"used_credits"`
	AggregateScore      *float64     `db:"aggregate_score"      json:"aggregate_score,omitempty"`
	Settings            ScanSettings `db:"settings"             json:"settings"`
	StartedAt           *time.Time   `db:"started_at"           json:"started_at,omitempty"`
	CompletedAt         *time.Time   `db:"completed_at"         json:"completed_at,omitempty"`
	CreatedAt           time.Time    `db:"created_at"           json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"           json:"updated_at"`
}
