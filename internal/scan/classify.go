// Package scan implements the batch scan execution engine: the state machine
// that drives a visibility scan across providers and iterations, the fault
// classifier and retry policy that keep it alive under partial failure, and
// the aggregator that folds raw iterations into scan metrics.
package scan

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/brandlens/brandlens/internal/provider"
	"github.com/brandlens/brandlens/pkg/models"
)

// FaultKind labels the taxonomy bucket a fault fell into.
type FaultKind string

const (
	FaultRateLimit FaultKind = "rate_limit"
	FaultTimeout   FaultKind = "timeout"
	FaultNetwork   FaultKind = "network"
	FaultAuth      FaultKind = "auth"
	FaultServer    FaultKind = "server"
	FaultParse     FaultKind = "parse"
	FaultCredit    FaultKind = "credit"
	FaultUnknown   FaultKind = "unknown"
)

// Action is what the engine does with a classified fault.
type Action string

const (
	ActionRetry Action = "retry"
	ActionSkip  Action = "skip"
	ActionPause Action = "pause"
	ActionFail  Action = "fail"
)

// Classification is the retry policy attached to one fault.
// For ActionRetry, ExhaustAction says what happens once MaxRetries attempts
// have been burned: pause the whole scan (rate limits, network outages) or
// skip just this iteration (flaky upstream 5xx).
type Classification struct {
	Kind          FaultKind
	Action        Action
	RetryDelay    time.Duration
	MaxRetries    int
	ExhaustAction Action
	PauseReason   string
}

// Classify maps a raised fault to an action. The match order is policy, not
// convenience: rate-limit and credit walls must stop forward progress before
// they waste calls, timeouts and parse errors stay question-local, and auth
// failures are fatal because no retry fixes a bad key. Unmatched faults skip
// (fail open) so one odd question never kills the batch.
func Classify(err error) Classification {
	statusCode := 0
	var provErr *models.ProviderError
	if errors.As(err, &provErr) {
		statusCode = provErr.StatusCode
	}
	msg := strings.ToLower(err.Error())

	switch {
	case statusCode == http.StatusTooManyRequests ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "quota"):
		return Classification{
			Kind:          FaultRateLimit,
			Action:        ActionRetry,
			RetryDelay:    60 * time.Second,
			MaxRetries:    5,
			ExhaustAction: ActionPause,
			PauseReason:   models.PauseReasonRateLimit,
		}

	case isTimeout(err, msg):
		// A hung provider is unlikely to recover within this run's budget.
		return Classification{Kind: FaultTimeout, Action: ActionSkip}

	case isNetwork(err, msg):
		return Classification{
			Kind:          FaultNetwork,
			Action:        ActionRetry,
			RetryDelay:    30 * time.Second,
			MaxRetries:    3,
			ExhaustAction: ActionPause,
			PauseReason:   models.PauseReasonNetworkError,
		}

	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "authentication"):
		return Classification{
			Kind:        FaultAuth,
			Action:      ActionFail,
			PauseReason: models.PauseReasonAuthError,
		}

	case statusCode >= 500:
		return Classification{
			Kind:          FaultServer,
			Action:        ActionRetry,
			RetryDelay:    10 * time.Second,
			MaxRetries:    3,
			ExhaustAction: ActionSkip,
		}

	case errors.Is(err, provider.ErrInvalidResponse) ||
		strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "decoding") ||
		strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "unexpected end of json"):
		return Classification{Kind: FaultParse, Action: ActionSkip}

	case statusCode == http.StatusPaymentRequired ||
		strings.Contains(msg, "insufficient credit") ||
		strings.Contains(msg, "insufficient balance") ||
		strings.Contains(msg, "billing"):
		return Classification{
			Kind:        FaultCredit,
			Action:      ActionPause,
			PauseReason: models.PauseReasonInsufficientCredits,
		}

	default:
		return Classification{Kind: FaultUnknown, Action: ActionSkip}
	}
}

func isTimeout(err error, msg string) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, provider.ErrCompletionTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

func isNetwork(err error, msg string) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, provider.ErrProviderUnavailable) {
		return true
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof")
}
