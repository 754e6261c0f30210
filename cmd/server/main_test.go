package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/internal/cache"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/pkg/models"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error                               { return s.pingErr }
func (s *testStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) { return nil, nil }
func (s *testStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *testStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *testStore) CreateScan(_ context.Context, _ *models.BatchScan) error        { return nil }
func (s *testStore) GetScan(_ context.Context, _ uuid.UUID) (*models.BatchScan, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListScans(_ context.Context, _ store.ScanFilter) ([]*models.BatchScan, int, error) {
	return nil, 0, nil
}
func (s *testStore) GetScanStatus(_ context.Context, _ uuid.UUID) (string, *string, error) {
	return "", nil, store.ErrNotFound
}
func (s *testStore) UpdateScanStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.ScanUpdateOption) error {
	return nil
}
func (s *testStore) TransitionScanStatus(_ context.Context, _ uuid.UUID, _, _ string, _ ...store.ScanUpdateOption) (bool, error) {
	return false, nil
}
func (s *testStore) AddScanProgress(_ context.Context, _ uuid.UUID, _, _ int) error   { return nil }
func (s *testStore) IncrementCompletedQuestions(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateQuestions(_ context.Context, _ []*models.Question) error    { return nil }
func (s *testStore) ListQuestions(_ context.Context, _ uuid.UUID) ([]*models.Question, error) {
	return nil, nil
}
func (s *testStore) UpdateQuestionStatus(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *testStore) RecordQuestionError(_ context.Context, _ uuid.UUID, _ string) error  { return nil }
func (s *testStore) SetQuestionLastError(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *testStore) FinalizeQuestion(_ context.Context, _ uuid.UUID, _ float64) error    { return nil }
func (s *testStore) CreateProviderStats(_ context.Context, _ []*models.ProviderStats) error {
	return nil
}
func (s *testStore) ListProviderStats(_ context.Context, _ uuid.UUID) ([]*models.ProviderStats, error) {
	return nil, nil
}
func (s *testStore) ListScanProviderStats(_ context.Context, _ uuid.UUID) ([]*models.ProviderStats, error) {
	return nil, nil
}
func (s *testStore) AddProviderProgress(_ context.Context, _ uuid.UUID, _ string, _ store.ProviderDelta) error {
	return nil
}
func (s *testStore) SetProviderExposureRate(_ context.Context, _ uuid.UUID, _ string, _ float64) error {
	return nil
}
func (s *testStore) CreateIteration(_ context.Context, _ *models.Iteration) error { return nil }
func (s *testStore) ListIterations(_ context.Context, _ uuid.UUID) ([]*models.Iteration, error) {
	return nil, nil
}
func (s *testStore) CountIterations(_ context.Context, _ uuid.UUID, _ string) (int, error) {
	return 0, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *testCache) Ping(_ context.Context) error                                      { return c.pingErr }
func (c *testCache) SetScanStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *testCache) GetScanStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "AI_PROVIDERS",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("AI_PROVIDERS", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
