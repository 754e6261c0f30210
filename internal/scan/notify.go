package scan

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/brandlens/brandlens/internal/cache"
	"github.com/brandlens/brandlens/pkg/models"
)

// Notifier receives the completion signal once every question in a scan has
// been finalized and the aggregate score persisted.
type Notifier interface {
	ScanCompleted(ctx context.Context, scan *models.BatchScan, metrics models.ScanMetrics)
}

// CacheNotifier logs the completion event and mirrors the metrics payload
// into the cache so dashboards can read it without hitting Postgres.
type CacheNotifier struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCacheNotifier(c cache.Cache, ttl time.Duration) *CacheNotifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CacheNotifier{cache: c, ttl: ttl}
}

func (n *CacheNotifier) ScanCompleted(ctx context.Context, scan *models.BatchScan, metrics models.ScanMetrics) {
	slog.Info("scan completed",
		"scan_id", scan.ID,
		"brand", scan.BrandName,
		"overall_score", metrics.OverallScore,
		"questions", scan.TotalQuestions,
		"completed_at", time.Now().UTC())

	payload, err := json.Marshal(metrics)
	if err != nil {
		slog.Error("marshal scan metrics", "scan_id", scan.ID, "error", err)
		return
	}
	if err := n.cache.Set(ctx, cache.ScanMetricsKey(scan.ID), payload, n.ttl); err != nil {
		slog.Warn("cache scan metrics", "scan_id", scan.ID, "error", err)
	}
}

var _ Notifier = (*CacheNotifier)(nil)
