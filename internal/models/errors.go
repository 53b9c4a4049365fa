package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by cache storage when no live entry exists
// for a fingerprint.
var ErrCacheMiss = errors.New("cache miss")

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	FetchErrorNotFound FetchErrorKind = "not_found"
	FetchErrorTimeout  FetchErrorKind = "timeout"
	FetchErrorBlocked  FetchErrorKind = "blocked"
)

// TransportError wraps a network-level failure. Retryable.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport error during %s for %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError indicates an upstream provider rejected a call for
// quota reasons. Retryable after backoff; RetryAfter may carry the
// provider-suggested delay.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ParsingError indicates model or document output could not be parsed
// into the expected shape. Retryable with bounded reformulation.
type ParsingError struct {
	Raw string
	Err error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("failed to parse output: %v", e.Err)
}

func (e *ParsingError) Unwrap() error { return e.Err }

// PlanningError is session-fatal: no partial plan is ever used.
type PlanningError struct {
	Topic string
	Err   error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed for topic %q: %v", e.Topic, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// FetchError classifies a failed document fetch.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IngestError is a per-document failure, absorbed by the fan-out rather
// than failing the sub-query.
type IngestError struct {
	URL string
	Err error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest of %s failed: %v", e.URL, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// SynthesisError is a per-sub-query failure, rendered as an unanswered
// report section instead of failing the session.
type SynthesisError struct {
	SubQuery string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for %q: %v", e.SubQuery, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// IsRetryable reports whether an error is worth retrying at the gate.
// Planning and parsing failures have their own bounded retry policies at
// the component level and are not retried here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		return true
	}
	var fetch *FetchError
	if errors.As(err, &fetch) {
		return fetch.Kind == FetchErrorTimeout
	}
	return false
}
