package payment

import (
	"context"
	"errors"
	"fmt"
)

// Failure kinds, surfaced to callers so a declined card, a slow provider
// and a missing config entry land in different branches.
const (
	KindRejected      = "rejected"
	KindUnreachable   = "unreachable"
	KindTimeout       = "timeout"
	KindNotConfigured = "not_configured"
)

// ProviderError is a typed charge failure. No account state is mutated
// when one is returned.
type ProviderError struct {
	Provider string
	Kind     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindTimeout
}

// IsRejected reports whether the provider declined the charge.
func IsRejected(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindRejected
}

func wrapErr(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Kind: KindTimeout, Err: err}
	}
	return &ProviderError{Provider: provider, Kind: KindUnreachable, Err: err}
}
