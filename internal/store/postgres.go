package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brandlens/brandlens/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Batch Scans ---

const scanColumns = `id, tenant_id, brand_name, status, pause_reason,
	total_questions, completed_questions, total_iterations, completed_iterations,
	estimated_credits, used_credits, aggregate_score, settings,
	started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateScan(ctx context.Context, scan *models.BatchScan) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batch_scans (id, tenant_id, brand_name, status, total_questions,
		   total_iterations, estimated_credits, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		scan.ID, scan.TenantID, scan.BrandName, scan.Status, scan.TotalQuestions,
		scan.TotalIterations, scan.EstimatedCredits, scan.Settings, scan.CreatedAt, scan.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScan(ctx context.Context, id uuid.UUID) (*models.BatchScan, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scanColumns+` FROM batch_scans WHERE id = $1`, id)

	scan, err := scanBatchScan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return scan, nil
}

func (s *PostgresStore) ListScans(ctx context.Context, filter ScanFilter) ([]*models.BatchScan, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM batch_scans WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scans: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+scanColumns+` FROM batch_scans WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []*models.BatchScan
	for rows.Next() {
		scan, err := scanBatchScan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan batch scan row: %w", err)
		}
		scans = append(scans, scan)
	}
	return scans, total, rows.Err()
}

// GetScanStatus reads only the status columns. This is the cheap periodic
// pause-check the engine issues between iterations.
func (s *PostgresStore) GetScanStatus(ctx context.Context, id uuid.UUID) (string, *string, error) {
	var status string
	var pauseReason *string
	err := s.pool.QueryRow(ctx,
		`SELECT status, pause_reason FROM batch_scans WHERE id = $1`, id,
	).Scan(&status, &pauseReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("get scan status: %w", err)
	}
	return status, pauseReason, nil
}

func (s *PostgresStore) UpdateScanStatus(ctx context.Context, id uuid.UUID, status string, opts ...ScanUpdateOption) error {
	set, args := buildScanUpdate(status, opts)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE batch_scans SET %s WHERE id = $%d`, set, len(args)), args...)
	if err != nil {
		return fmt.Errorf("update scan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionScanStatus applies the status change only when the row is still
// in the expected source state. Returns false when another worker got there
// first, which callers treat as "someone else already did this".
func (s *PostgresStore) TransitionScanStatus(ctx context.Context, id uuid.UUID, from, to string, opts ...ScanUpdateOption) (bool, error) {
	set, args := buildScanUpdate(to, opts)
	args = append(args, id, from)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE batch_scans SET %s WHERE id = $%d AND status = $%d`,
			set, len(args)-1, len(args)), args...)
	if err != nil {
		return false, fmt.Errorf("transition scan status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func buildScanUpdate(status string, opts []ScanUpdateOption) (string, []any) {
	params := NewScanUpdate(opts...)

	sets := []string{"status = $1", "updated_at = NOW()"}
	args := []any{status}
	argIdx := 2

	if params.PauseReason != nil {
		sets = append(sets, fmt.Sprintf("pause_reason = $%d", argIdx))
		args = append(args, *params.PauseReason)
		argIdx++
	}
	if params.ClearPauseReason {
		sets = append(sets, "pause_reason = NULL")
	}
	if params.AggregateScore != nil {
		sets = append(sets, fmt.Sprintf("aggregate_score = $%d", argIdx))
		args = append(args, *params.AggregateScore)
		argIdx++
	}
	if params.StartedAt != nil {
		sets = append(sets, fmt.Sprintf("started_at = $%d", argIdx))
		args = append(args, *params.StartedAt)
		argIdx++
	}
	if params.CompletedAt != nil {
		sets = append(sets, fmt.Sprintf("completed_at = $%d", argIdx))
		args = append(args, *params.CompletedAt)
		argIdx++
	}

	return strings.Join(sets, ", "), args
}

// AddScanProgress atomically adds to the scan's completed-iteration and
// used-credit counters.
func (s *PostgresStore) AddScanProgress(ctx context.Context, id uuid.UUID, iterations, credits int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_scans SET
		   completed_iterations = completed_iterations + $1,
		   used_credits = used_credits + $2,
		   updated_at = NOW()
		 WHERE id = $3`, iterations, credits, id)
	if err != nil {
		return fmt.Errorf("add scan progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementCompletedQuestions(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_scans SET completed_questions = completed_questions + 1, updated_at = NOW()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment completed questions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Questions ---

func (s *PostgresStore) CreateQuestions(ctx context.Context, questions []*models.Question) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		batch.Queue(
			`INSERT INTO questions (id, scan_id, text, position, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			q.ID, q.ScanID, q.Text, q.Position, q.Status, q.CreatedAt, q.UpdatedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create questions: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, scanID uuid.UUID) ([]*models.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scan_id, text, position, status, retry_count, last_error, avg_exposure_rate, created_at, updated_at
		 FROM questions WHERE scan_id = $1 ORDER BY position ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.ScanID, &q.Text, &q.Position, &q.Status,
			&q.RetryCount, &q.LastError, &q.AvgExposureRate, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

func (s *PostgresStore) UpdateQuestionStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update question status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordQuestionError(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
		 WHERE id = $2`, errMsg, id)
	if err != nil {
		return fmt.Errorf("record question error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetQuestionLastError records a fault for operator visibility without
// touching retry_count; skipped iterations are not retries.
func (s *PostgresStore) SetQuestionLastError(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET last_error = $1, updated_at = NOW() WHERE id = $2`, errMsg, id)
	if err != nil {
		return fmt.Errorf("set question last error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FinalizeQuestion(ctx context.Context, id uuid.UUID, avgExposureRate float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET status = $1, avg_exposure_rate = $2, updated_at = NOW() WHERE id = $3`,
		models.QuestionStatusCompleted, avgExposureRate, id)
	if err != nil {
		return fmt.Errorf("finalize question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Provider Stats ---

func (s *PostgresStore) CreateProviderStats(ctx context.Context, stats []*models.ProviderStats) error {
	batch := &pgx.Batch{}
	for _, st := range stats {
		batch.Queue(
			`INSERT INTO question_provider_stats (question_id, provider, total_iterations)
			 VALUES ($1, $2, $3)`,
			st.QuestionID, st.Provider, st.TotalIterations)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create provider stats: %w", err)
	}
	return nil
}

const providerStatsColumns = `question_id, provider, total_iterations, completed_iterations,
	successful_calls, mentions, sentiment_positive, sentiment_neutral, sentiment_negative, exposure_rate`

func (s *PostgresStore) ListProviderStats(ctx context.Context, questionID uuid.UUID) ([]*models.ProviderStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+providerStatsColumns+` FROM question_provider_stats
		 WHERE question_id = $1 ORDER BY provider ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list provider stats: %w", err)
	}
	defer rows.Close()

	return scanProviderStats(rows)
}

func (s *PostgresStore) ListScanProviderStats(ctx context.Context, scanID uuid.UUID) ([]*models.ProviderStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.question_id, s.provider, s.total_iterations, s.completed_iterations,
		        s.successful_calls, s.mentions, s.sentiment_positive, s.sentiment_neutral,
		        s.sentiment_negative, s.exposure_rate
		 FROM question_provider_stats s
		 JOIN questions q ON q.id = s.question_id
		 WHERE q.scan_id = $1 ORDER BY q.position ASC, s.provider ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list scan provider stats: %w", err)
	}
	defer rows.Close()

	return scanProviderStats(rows)
}

func scanProviderStats(rows pgx.Rows) ([]*models.ProviderStats, error) {
	var stats []*models.ProviderStats
	for rows.Next() {
		var st models.ProviderStats
		if err := rows.Scan(&st.QuestionID, &st.Provider, &st.TotalIterations, &st.CompletedIterations,
			&st.SuccessfulCalls, &st.Mentions, &st.SentimentPositive, &st.SentimentNeutral,
			&st.SentimentNegative, &st.ExposureRate); err != nil {
			return nil, fmt.Errorf("scan provider stats: %w", err)
		}
		stats = append(stats, &st)
	}
	return stats, rows.Err()
}

// AddProviderProgress atomically bumps the per-provider counters for one
// question. The completed_iterations guard on total keeps the invariant
// completed <= total even if a duplicate increment slips through a retry.
func (s *PostgresStore) AddProviderProgress(ctx context.Context, questionID uuid.UUID, provider string, delta ProviderDelta) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE question_provider_stats SET
		   completed_iterations = LEAST(total_iterations, completed_iterations + $1),
		   successful_calls = successful_calls + $2,
		   mentions = mentions + $3,
		   sentiment_positive = sentiment_positive + $4,
		   sentiment_neutral = sentiment_neutral + $5,
		   sentiment_negative = sentiment_negative + $6
		 WHERE question_id = $7 AND provider = $8`,
		delta.Completed, delta.Successful, delta.Mentions,
		delta.Positive, delta.Neutral, delta.Negative,
		questionID, provider)
	if err != nil {
		return fmt.Errorf("add provider progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetProviderExposureRate(ctx context.Context, questionID uuid.UUID, provider string, rate float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE question_provider_stats SET exposure_rate = $1
		 WHERE question_id = $2 AND provider = $3`, rate, questionID, provider)
	if err != nil {
		return fmt.Errorf("set provider exposure rate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Iterations ---

func (s *PostgresStore) CreateIteration(ctx context.Context, iter *models.Iteration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO iterations (id, scan_id, question_id, provider, iteration_index, status,
		   response_text, brand_mentioned, mention_position, sentiment, competitor_mentions,
		   latency_ms, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		iter.ID, iter.ScanID, iter.QuestionID, iter.Provider, iter.Index, iter.Status,
		iter.ResponseText, iter.BrandMentioned, iter.MentionPosition, iter.Sentiment,
		iter.CompetitorMentions, iter.LatencyMs, iter.ErrorMessage, iter.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create iteration: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListIterations(ctx context.Context, scanID uuid.UUID) ([]*models.Iteration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scan_id, question_id, provider, iteration_index, status, response_text,
		        brand_mentioned, mention_position, sentiment, competitor_mentions,
		        latency_ms, error_message, created_at
		 FROM iterations WHERE scan_id = $1
		 ORDER BY question_id, provider, iteration_index ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var iters []*models.Iteration
	for rows.Next() {
		var it models.Iteration
		if err := rows.Scan(&it.ID, &it.ScanID, &it.QuestionID, &it.Provider, &it.Index, &it.Status,
			&it.ResponseText, &it.BrandMentioned, &it.MentionPosition, &it.Sentiment,
			&it.CompetitorMentions, &it.LatencyMs, &it.ErrorMessage, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		iters = append(iters, &it)
	}
	return iters, rows.Err()
}

func (s *PostgresStore) CountIterations(ctx context.Context, questionID uuid.UUID, provider string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM iterations WHERE question_id = $1 AND provider = $2`,
		questionID, provider).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count iterations: %w", err)
	}
	return count, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchScan(row rowScanner) (*models.BatchScan, error) {
	var sc models.BatchScan
	err := row.Scan(&sc.ID, &sc.TenantID, &sc.BrandName, &sc.Status, &sc.PauseReason,
		&sc.TotalQuestions, &sc.CompletedQuestions, &sc.TotalIterations, &sc.CompletedIterations,
		&sc.EstimatedCredits, &sc.UsedCredits, &sc.AggregateScore, &sc.Settings,
		&sc.StartedAt, &sc.CompletedAt, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
