package provider

import "errors"

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrCompletionTimeout   = errors.New("ai completion timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)
