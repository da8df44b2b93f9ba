package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorKind classifies a fetch failure so the retry executor and circuit
// breaker can tell transient from permanent.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"     // transport failure, connection reset
	KindTimeout    ErrorKind = "timeout"     // deadline expired mid-call
	KindRateLimit  ErrorKind = "rate_limit"  // provider-side 429
	KindProvider   ErrorKind = "provider"    // 5xx or malformed provider response
	KindAuth       ErrorKind = "auth"        // 401/403, bad API key
	KindBadRequest ErrorKind = "bad_request" // 4xx other than 429
	KindBadSymbol  ErrorKind = "bad_symbol"  // unknown or malformed symbol
)

// FetchError is the uniform error surfaced by provider adapters.
type FetchError struct {
	Kind     ErrorKind
	Provider string
	Symbol   string
	Message  string
	Cause    error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s error for %s: %s (%v)", e.Provider, e.Kind, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s error for %s: %s", e.Provider, e.Kind, e.Symbol, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Transient reports whether retrying the same provider could help.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimit, KindProvider:
		return true
	default:
		return false
	}
}

func NewNetworkError(provider, symbol, message string, cause error) *FetchError {
	return &FetchError{Kind: KindNetwork, Provider: provider, Symbol: symbol, Message: message, Cause: cause}
}

func NewProviderError(provider, symbol, message string, cause error) *FetchError {
	return &FetchError{Kind: KindProvider, Provider: provider, Symbol: symbol, Message: message, Cause: cause}
}

func NewAuthError(provider, message string) *FetchError {
	return &FetchError{Kind: KindAuth, Provider: provider, Message: message}
}

func NewBadSymbolError(provider, symbol, message string) *FetchError {
	return &FetchError{Kind: KindBadSymbol, Provider: provider, Symbol: symbol, Message: message}
}

// CircuitOpenError is returned without any network call when a provider's
// breaker is open (or a half-open trial is already in flight).
type CircuitOpenError struct {
	Provider string
	State    BreakerState
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit %s, call rejected", e.Provider, e.State)
}

// RateLimitedError is returned by the local token bucket when no token is
// available. RetryAfter is how long until the next token refills.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// TimeoutError is surfaced to callers when the overall request deadline
// expired before any provider produced data.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request deadline exceeded: %v", e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// AllAttemptsExhaustedError wraps the last error after the retry budget for a
// single provider ran out.
type AllAttemptsExhaustedError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *AllAttemptsExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d attempts exhausted: %v", e.Provider, e.Attempts, e.Last)
}

func (e *AllAttemptsExhaustedError) Unwrap() error { return e.Last }

// AllProvidersFailedError aggregates the last error per provider so a failed
// request stays diagnosable instead of collapsing into "no data".
type AllProvidersFailedError struct {
	Errors map[string]error // provider name -> last error
}

func (e *AllProvidersFailedError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Errors[name]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// IsTransient reports whether err should be retried against the same
// provider. Anything unclassified is treated as permanent so a buggy adapter
// fails fast instead of burning the retry budget.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return true
	}
	var te *TimeoutError
	return errors.As(err, &te)
}
