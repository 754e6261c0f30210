// Package handler contains the HTTP handlers for the public API. Each
// handler is a constructor taking the narrow interface it depends on, so
// tests can exercise them without a real engine or database.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/brandlens/brandlens/internal/api/middleware"
	"github.com/brandlens/brandlens/internal/api/response"
	"github.com/brandlens/brandlens/internal/cache"
	"github.com/brandlens/brandlens/internal/scan"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/pkg/models"
)

const (
	maxQuestionsPerScan      = 50
	maxIterationsPerProvider = 10
)

// ScanRunner is the slice of the execution engine the handlers drive.
type ScanRunner interface {
	Start(ctx context.Context, scanID uuid.UUID) error
	Resume(ctx context.Context, scanID uuid.UUID) error
	Pause(ctx context.Context, scanID uuid.UUID, reason string) error
}

// ScanDefaults carries per-scan settings applied when a create request
// leaves them out.
type ScanDefaults struct {
	IterationsPerProvider int
	CallTimeoutSecs       int
	Concurrency           int
	StatusCheckEvery      int
}

// NewCreateScanHandler returns the handler for POST /api/v1/scans. It
// freezes the brand settings into the scan row and seeds the question and
// per-provider progress rows; execution starts separately.
func NewCreateScanHandler(s store.Store, providers []models.Provider, defaults ScanDefaults) http.HandlerFunc {
	costs := make(map[string]int, len(providers))
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		costs[p.Name()] = p.CostPerCall()
		names = append(names, p.Name())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			BrandName             string         `json:"brand_name"`
			Questions             []string       `json:"questions"`
			Keywords              []string       `json:"keywords"`
			Competitors           []string       `json:"competitors"`
			IterationsPerProvider map[string]int `json:"iterations_per_provider"`
			CallTimeoutSecs       int            `json:"call_timeout_secs"`
			Concurrency           int            `json:"concurrency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.BrandName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "brand_name is required", nil)
			return
		}
		if len(req.Questions) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one question is required", nil)
			return
		}
		if len(req.Questions) > maxQuestionsPerScan {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"too many questions", map[string]int{"max": maxQuestionsPerScan})
			return
		}
		for _, q := range req.Questions {
			if q == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "questions must be non-empty", nil)
				return
			}
		}

		iterations := make(map[string]int, len(names))
		for _, name := range names {
			iterations[name] = defaults.IterationsPerProvider
		}
		for name, n := range req.IterationsPerProvider {
			if _, known := iterations[name]; !known {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"unknown provider in iterations_per_provider", map[string]string{"provider": name})
				return
			}
			if n < 1 || n > maxIterationsPerProvider {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"iterations per provider out of range", map[string]int{"min": 1, "max": maxIterationsPerProvider})
				return
			}
			iterations[name] = n
		}

		settings := models.ScanSettings{
			BrandName:             req.BrandName,
			Keywords:              req.Keywords,
			Competitors:           req.Competitors,
			IterationsPerProvider: iterations,
			CallTimeoutSecs:       orDefault(req.CallTimeoutSecs, defaults.CallTimeoutSecs),
			Concurrency:           orDefault(req.Concurrency, defaults.Concurrency),
			StatusCheckEvery:      defaults.StatusCheckEvery,
		}

		estimated := 0
		for name, n := range iterations {
			estimated += n * costs[name] * len(req.Questions)
		}

		now := time.Now().UTC()
		batch := &models.BatchScan{
			ID:               uuid.New(),
			TenantID:         tenantID,
			BrandName:        req.BrandName,
			Status:           models.ScanStatusPending,
			TotalQuestions:   len(req.Questions),
			TotalIterations:  settings.TotalIterations(len(req.Questions)),
			EstimatedCredits: estimated,
			Settings:         settings,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.CreateScan(r.Context(), batch); err != nil {
			slog.Error("create scan", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create scan", nil)
			return
		}

		questions := make([]*models.Question, len(req.Questions))
		var statsRows []*models.ProviderStats
		for i, text := range req.Questions {
			q := &models.Question{
				ID:        uuid.New(),
				ScanID:    batch.ID,
				Text:      text,
				Position:  i,
				Status:    models.QuestionStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			questions[i] = q
			for name, n := range iterations {
				statsRows = append(statsRows, &models.ProviderStats{
					QuestionID:      q.ID,
					Provider:        name,
					TotalIterations: n,
				})
			}
		}
		if err := s.CreateQuestions(r.Context(), questions); err != nil {
			slog.Error("create questions", "scan_id", batch.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create scan", nil)
			return
		}
		if err := s.CreateProviderStats(r.Context(), statsRows); err != nil {
			slog.Error("create provider stats", "scan_id", batch.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create scan", nil)
			return
		}

		slog.Info("scan created",
			"scan_id", batch.ID, "tenant_id", tenantID, "brand", batch.BrandName,
			"questions", batch.TotalQuestions, "total_iterations", batch.TotalIterations,
			"estimated_credits", batch.EstimatedCredits)
		response.Created(w, batch)
	}
}

// NewStartScanHandler returns the handler for POST /api/v1/scans/{scanID}/start.
// Execution happens on a background goroutine; the response only acknowledges
// the dispatch.
func NewStartScanHandler(s store.Store, runner ScanRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, ok := loadTenantScan(w, r, s)
		if !ok {
			return
		}
		if batch.Status != models.ScanStatusPending {
			response.Error(w, http.StatusConflict, "INVALID_STATE",
				"Scan can only be started from pending", map[string]string{"status": batch.Status})
			return
		}

		dispatch("start", batch.ID, runner.Start)
		response.Accepted(w, map[string]any{"id": batch.ID, "status": models.ScanStatusRunning})
	}
}

// NewScanActionHandler returns the handler for POST /api/v1/scans/{scanID}/action
// with a body of {"action": "pause"} or {"action": "resume"}.
func NewScanActionHandler(s store.Store, runner ScanRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, ok := loadTenantScan(w, r, s)
		if !ok {
			return
		}

		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		switch req.Action {
		case "pause":
			if err := runner.Pause(r.Context(), batch.ID, models.PauseReasonUserRequested); err != nil {
				if errors.Is(err, scan.ErrInvalidTransition) {
					response.Error(w, http.StatusConflict, "INVALID_STATE",
						"Scan is not running", map[string]string{"status": batch.Status})
					return
				}
				slog.Error("pause scan", "scan_id", batch.ID, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to pause scan", nil)
				return
			}
			response.Accepted(w, map[string]any{"id": batch.ID, "status": models.ScanStatusPaused})

		case "resume":
			if batch.Status != models.ScanStatusPaused {
				response.Error(w, http.StatusConflict, "INVALID_STATE",
					"Scan is not paused", map[string]string{"status": batch.Status})
				return
			}
			dispatch("resume", batch.ID, runner.Resume)
			response.Accepted(w, map[string]any{"id": batch.ID, "status": models.ScanStatusRunning})

		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"action must be pause or resume", nil)
		}
	}
}

// NewGetScanHandler returns the handler for GET /api/v1/scans/{scanID}.
func NewGetScanHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, ok := loadTenantScan(w, r, s)
		if !ok {
			return
		}
		response.JSON(w, batch)
	}
}

// NewListScansHandler returns the handler for GET /api/v1/scans.
func NewListScansHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", 20)
		if limit > 100 {
			limit = 100
		}
		filter := store.ScanFilter{
			TenantID: tenantID,
			Status:   r.URL.Query().Get("status"),
			Page:     page,
			Limit:    limit,
		}

		scans, total, err := s.ListScans(r.Context(), filter)
		if err != nil {
			slog.Error("list scans", "tenant_id", tenantID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list scans", nil)
			return
		}
		if scans == nil {
			scans = []*models.BatchScan{}
		}

		response.Collection(w, scans, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewListQuestionsHandler returns the handler for GET /api/v1/scans/{scanID}/questions.
func NewListQuestionsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, ok := loadTenantScan(w, r, s)
		if !ok {
			return
		}
		questions, err := s.ListQuestions(r.Context(), batch.ID)
		if err != nil {
			slog.Error("list questions", "scan_id", batch.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list questions", nil)
			return
		}
		if questions == nil {
			questions = []*models.Question{}
		}
		response.JSON(w, questions)
	}
}

// NewScanMetricsHandler returns the handler for GET /api/v1/scans/{scanID}/metrics.
// Completed scans serve the cached aggregate when present and recompute it
// from the iteration log otherwise.
func NewScanMetricsHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, ok := loadTenantScan(w, r, s)
		if !ok {
			return
		}
		if batch.Status != models.ScanStatusCompleted {
			response.Error(w, http.StatusConflict, "SCAN_NOT_COMPLETED",
				"Metrics are available once the scan completes", map[string]string{"status": batch.Status})
			return
		}

		if payload, found, err := c.Get(r.Context(), cache.ScanMetricsKey(batch.ID)); err == nil && found {
			var metrics models.ScanMetrics
			if err := json.Unmarshal(payload, &metrics); err == nil {
				response.JSON(w, metrics)
				return
			}
		}

		questions, err := s.ListQuestions(r.Context(), batch.ID)
		if err != nil {
			slog.Error("list questions", "scan_id", batch.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute metrics", nil)
			return
		}
		stats, err := s.ListScanProviderStats(r.Context(), batch.ID)
		if err != nil {
			slog.Error("list provider stats", "scan_id", batch.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute metrics", nil)
			return
		}
		iterations, err := s.ListIterations(r.Context(), batch.ID)
		if err != nil {
			slog.Error("list iterations", "scan_id", batch.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute metrics", nil)
			return
		}

		response.JSON(w, scan.Aggregate(batch.Settings, questions, stats, iterations))
	}
}

// loadTenantScan resolves {scanID}, loads the scan, and enforces tenant
// ownership. Foreign scans read as 404 so IDs do not leak across tenants.
func loadTenantScan(w http.ResponseWriter, r *http.Request, s store.Store) (*models.BatchScan, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return nil, false
	}

	scanID, err := uuid.Parse(chi.URLParam(r, "scanID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "scanID must be a UUID", nil)
		return nil, false
	}

	batch, err := s.GetScan(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan not found", nil)
			return nil, false
		}
		slog.Error("get scan", "scan_id", scanID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load scan", nil)
		return nil, false
	}
	if batch.TenantID != tenantID {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Scan not found", nil)
		return nil, false
	}
	return batch, true
}

// dispatch runs one engine operation on a detached goroutine. The request
// context is not reused: the scan outlives the HTTP request.
func dispatch(op string, scanID uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("scan worker panic",
					"op", op, "scan_id", scanID, "panic", rec, "stack", string(debug.Stack()))
			}
		}()
		if err := fn(context.Background(), scanID); err != nil {
			slog.Error("scan worker", "op", op, "scan_id", scanID, "error", err)
		}
	}()
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
