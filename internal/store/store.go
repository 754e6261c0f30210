package store

import (
	"context"
	"errors"
	"time"

	"github.com/brandlens/brandlens/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Progress counters are incremented with atomic "add N" statements, never
// read-modify-write, so concurrent resume attempts cannot lose updates.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateScan(ctx context.Context, scan *models.BatchScan) error
	GetScan(ctx context.Context, id uuid.UUID) (*models.BatchScan, error)
	ListScans(ctx context.Context, filter ScanFilter) ([]*models.BatchScan, int, error)
	GetScanStatus(ctx context.Context, id uuid.UUID) (string, *string, error)
	UpdateScanStatus(ctx context.Context, id uuid.UUID, status string, opts ...ScanUpdateOption) error
	TransitionScanStatus(ctx context.Context, id uuid.UUID, from, to string, opts ...ScanUpdateOption) (bool, error)
	AddScanProgress(ctx context.Context, id uuid.UUID, iterations, credits int) error
	IncrementCompletedQuestions(ctx context.Context, id uuid.UUID) error

	CreateQuestions(ctx context.Context, questions []*models.Question) error
	ListQuestions(ctx context.Context, scanID uuid.UUID) ([]*models.Question, error)
	UpdateQuestionStatus(ctx context.Context, id uuid.UUID, status string) error
	RecordQuestionError(ctx context.Context, id uuid.UUID, errMsg string) error
	SetQuestionLastError(ctx context.Context, id uuid.UUID, errMsg string) error
	FinalizeQuestion(ctx context.Context, id uuid.UUID, avgExposureRate float64) error

	CreateProviderStats(ctx context.Context, stats []*models.ProviderStats) error
	ListProviderStats(ctx context.Context, questionID uuid.UUID) ([]*models.ProviderStats, error)
	ListScanProviderStats(ctx context.Context, scanID uuid.UUID) ([]*models.ProviderStats, error)
	AddProviderProgress(ctx context.Context, questionID uuid.UUID, provider string, delta ProviderDelta) error
	SetProviderExposureRate(ctx context.Context, questionID uuid.UUID, provider string, rate float64) error

	CreateIteration(ctx context.Context, iter *models.Iteration) error
	ListIterations(ctx context.Context, scanID uuid.UUID) ([]*models.Iteration, error)
	CountIterations(ctx context.Context, questionID uuid.UUID, provider string) (int, error)
}

type ScanFilter struct {
	TenantID uuid.UUID
	Status   string
	Since    time.Time
	Page     int
	Limit    int
}

// ProviderDelta is an atomic increment applied to one (question, provider)
// stats row as an iteration finishes.
type ProviderDelta struct {
	Completed  int
	Successful int
	Mentions   int
	Positive   int
	Neutral    int
	Negative   int
}

// ScanUpdate collects the optional column updates applied alongside a
// status change.
type ScanUpdate struct {
	PauseReason      *string
	ClearPauseReason bool
	AggregateScore   *float64
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

type ScanUpdateOption func(*ScanUpdate)

// NewScanUpdate folds a set of options into one update. Store
// implementations (and test doubles) use it to see what the caller asked for.
func NewScanUpdate(opts ...ScanUpdateOption) ScanUpdate {
	var u ScanUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithPauseReason(reason string) ScanUpdateOption {
	return func(p *ScanUpdate) {
		p.PauseReason = &reason
	}
}

func ClearPauseReason() ScanUpdateOption {
	return func(p *ScanUpdate) {
		p.ClearPauseReason = true
	}
}

func WithAggregateScore(score float64) ScanUpdateOption {
	return func(p *ScanUpdate) {
		p.AggregateScore = &score
	}
}

func WithStartedAt(t time.Time) ScanUpdateOption {
	return func(p *ScanUpdate) {
		p.StartedAt = &t
	}
}

func WithCompletedAt(t time.Time) ScanUpdateOption {
	return func(p *ScanUpdate) {
		p.CompletedAt = &t
	}
}
