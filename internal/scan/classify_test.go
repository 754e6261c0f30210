package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/brandlens/brandlens/internal/provider"
	"github.com/brandlens/brandlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_RateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"status 429", &models.ProviderError{Provider: "openai", StatusCode: 429, Body: "slow down"}},
		{"rate limit message", errors.New("openai: rate limit exceeded")},
		{"too many requests", errors.New("too many requests from this key")},
		{"quota message", errors.New("monthly quota exhausted")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err)
			assert.Equal(t, FaultRateLimit, cls.Kind)
			assert.Equal(t, ActionRetry, cls.Action)
			assert.Equal(t, 60*time.Second, cls.RetryDelay)
			assert.Equal(t, 5, cls.MaxRetries)
			assert.Equal(t, ActionPause, cls.ExhaustAction)
			assert.Equal(t, models.PauseReasonRateLimit, cls.PauseReason)
		})
	}
}

func TestClassify_TimeoutSkips(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", context.DeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("calling openai: %w", context.DeadlineExceeded)},
		{"completion timeout sentinel", provider.ErrCompletionTimeout},
		{"timeout message", errors.New("request timeout after 45s")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err)
			assert.Equal(t, FaultTimeout, cls.Kind)
			assert.Equal(t, ActionSkip, cls.Action)
		})
	}
}

func TestClassify_NetworkRetriesThenPauses(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
		{"unavailable sentinel", provider.ErrProviderUnavailable},
		{"connection refused", errors.New("connect: connection refused")},
		{"connection reset", errors.New("read: connection reset by peer")},
		{"dns failure", errors.New("lookup api.openai.com: no such host")},
		{"eof", errors.New("unexpected EOF")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err)
			assert.Equal(t, FaultNetwork, cls.Kind)
			assert.Equal(t, ActionRetry, cls.Action)
			assert.Equal(t, 3, cls.MaxRetries)
			assert.Equal(t, ActionPause, cls.ExhaustAction)
			assert.Equal(t, models.PauseReasonNetworkError, cls.PauseReason)
		})
	}
}

func TestClassify_AuthFailsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"status 401", &models.ProviderError{Provider: "anthropic", StatusCode: 401, Body: "bad key"}},
		{"status 403", &models.ProviderError{Provider: "anthropic", StatusCode: 403, Body: "forbidden"}},
		{"invalid api key message", errors.New("invalid api key provided")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err)
			assert.Equal(t, FaultAuth, cls.Kind)
			assert.Equal(t, ActionFail, cls.Action)
			assert.Equal(t, models.PauseReasonAuthError, cls.PauseReason)
		})
	}
}

func TestClassify_ServerErrorRetriesThenSkips(t *testing.T) {
	cls := Classify(&models.ProviderError{Provider: "perplexity", StatusCode: 503, Body: "upstream overloaded"})
	assert.Equal(t, FaultServer, cls.Kind)
	assert.Equal(t, ActionRetry, cls.Action)
	assert.Equal(t, 3, cls.MaxRetries)
	assert.Equal(t, ActionSkip, cls.ExhaustAction)
}

func TestClassify_ParseSkips(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"sentinel", provider.ErrInvalidResponse},
		{"wrapped sentinel", fmt.Errorf("openai: %w: no choices", provider.ErrInvalidResponse)},
		{"decode message", errors.New("decoding response body failed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err)
			assert.Equal(t, FaultParse, cls.Kind)
			assert.Equal(t, ActionSkip, cls.Action)
		})
	}
}

func TestClassify_CreditPausesImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"status 402", &models.ProviderError{Provider: "openai", StatusCode: 402, Body: "payment required"}},
		{"insufficient credit message", errors.New("insufficient credit balance")},
		{"billing message", errors.New("billing hard limit reached")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err)
			assert.Equal(t, FaultCredit, cls.Kind)
			assert.Equal(t, ActionPause, cls.Action)
			assert.Equal(t, models.PauseReasonInsufficientCredits, cls.PauseReason)
		})
	}
}

func TestClassify_UnknownSkips(t *testing.T) {
	cls := Classify(errors.New("something inexplicable happened"))
	assert.Equal(t, FaultUnknown, cls.Kind)
	assert.Equal(t, ActionSkip, cls.Action)
}

func TestClassify_RateLimitWinsOverServerStatus(t *testing.T) {
	// A 429 whose body also mentions "error" must classify as rate limit.
	err := &models.ProviderError{Provider: "openai", StatusCode: 429, Body: "internal error: rate limited"}
	cls := Classify(err)
	require.Equal(t, FaultRateLimit, cls.Kind)
}
