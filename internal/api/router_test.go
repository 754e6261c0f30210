package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brandlens/brandlens/internal/api"
	mw "github.com/brandlens/brandlens/internal/api/middleware"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/pkg/models"
)

// --- stub store; only the API-key lookup carries state ---

type stubStore struct {
	keys []*models.APIKey
}

func (s *stubStore) Ping(_ context.Context) error { return nil }
func (s *stubStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return s.keys, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateScan(_ context.Context, _ *models.BatchScan) error        { return nil }
func (s *stubStore) GetScan(_ context.Context, _ uuid.UUID) (*models.BatchScan, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) ListScans(_ context.Context, _ store.ScanFilter) ([]*models.BatchScan, int, error) {
	return nil, 0, nil
}
func (s *stubStore) GetScanStatus(_ context.Context, _ uuid.UUID) (string, *string, error) {
	return "", nil, store.ErrNotFound
}
func (s *stubStore) UpdateScanStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.ScanUpdateOption) error {
	return nil
}
func (s *stubStore) TransitionScanStatus(_ context.Context, _ uuid.UUID, _, _ string, _ ...store.ScanUpdateOption) (bool, error) {
	return false, nil
}
func (s *stubStore) AddScanProgress(_ context.Context, _ uuid.UUID, _, _ int) error   { return nil }
func (s *stubStore) IncrementCompletedQuestions(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateQuestions(_ context.Context, _ []*models.Question) error    { return nil }
func (s *stubStore) ListQuestions(_ context.Context, _ uuid.UUID) ([]*models.Question, error) {
	return nil, nil
}
func (s *stubStore) UpdateQuestionStatus(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *stubStore) RecordQuestionError(_ context.Context, _ uuid.UUID, _ string) error  { return nil }
func (s *stubStore) SetQuestionLastError(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *stubStore) FinalizeQuestion(_ context.Context, _ uuid.UUID, _ float64) error    { return nil }
func (s *stubStore) CreateProviderStats(_ context.Context, _ []*models.ProviderStats) error {
	return nil
}
func (s *stubStore) ListProviderStats(_ context.Context, _ uuid.UUID) ([]*models.ProviderStats, error) {
	return nil, nil
}
func (s *stubStore) ListScanProviderStats(_ context.Context, _ uuid.UUID) ([]*models.ProviderStats, error) {
	return nil, nil
}
func (s *stubStore) AddProviderProgress(_ context.Context, _ uuid.UUID, _ string, _ store.ProviderDelta) error {
	return nil
}
func (s *stubStore) SetProviderExposureRate(_ context.Context, _ uuid.UUID, _ string, _ float64) error {
	return nil
}
func (s *stubStore) CreateIteration(_ context.Context, _ *models.Iteration) error { return nil }
func (s *stubStore) ListIterations(_ context.Context, _ uuid.UUID) ([]*models.Iteration, error) {
	return nil, nil
}
func (s *stubStore) CountIterations(_ context.Context, _ uuid.UUID, _ string) (int, error) {
	return 0, nil
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) SetScanStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetScanStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func newTestRouter(t *testing.T, ss *stubStore) http.Handler {
	t.Helper()
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ss),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
}

func seedKey(t *testing.T, rawKey string, scopes []string) *models.APIKey {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.APIKey{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    scopes,
	}
}

func TestRouter_HealthIsPublic(t *testing.T) {
	router := newTestRouter(t, &stubStore{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ScanRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t, &stubStore{})

	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/scans"},
		{"GET", "/api/v1/scans"},
		{"GET", "/api/v1/scans/" + uuid.NewString()},
		{"POST", "/api/v1/scans/" + uuid.NewString() + "/start"},
		{"POST", "/api/v1/scans/" + uuid.NewString() + "/action"},
		{"GET", "/api/v1/scans/" + uuid.NewString() + "/metrics"},
		{"GET", "/api/v1/scans/" + uuid.NewString() + "/questions"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
}

func TestRouter_AdminRoutesRequireAdminScope(t *testing.T) {
	rawKey := "bl_read_only_1234567890"
	ss := &stubStore{keys: []*models.APIKey{seedKey(t, rawKey, []string{"read"})}}
	router := newTestRouter(t, ss)

	req := httptest.NewRequest("GET", "/api/v1/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_UnwiredHandlerReturns501(t *testing.T) {
	rawKey := "bl_admin_1234567890"
	ss := &stubStore{keys: []*models.APIKey{seedKey(t, rawKey, []string{"read", "admin"})}}
	router := newTestRouter(t, ss)

	req := httptest.NewRequest("GET", "/api/v1/scans", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_IMPLEMENTED", body["error"].(map[string]any)["code"])
}
