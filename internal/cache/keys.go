package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func ScanStatusKey(scanID uuid.UUID) string {
	return fmt.Sprintf("scan:status:%s", scanID)
}

func ScanMetricsKey(scanID uuid.UUID) string {
	return fmt.Sprintf("scan:metrics:%s", scanID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
