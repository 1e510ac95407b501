package fhirclient

import (
	"fmt"
	"net/http"
	"time"
)

type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Outcome    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Outcome != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Outcome)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.StatusCode)
}

func (e *StatusError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return e.StatusCode != http.StatusNotImplemented
	default:
		return false
	}
}

type TimeoutError struct {
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call timed out after %s: %v", e.After, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means no credentials could be obtained for the call.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authorization failed: %v", e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

type DecodeError struct {
	ResourceType string
	Err          error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s: %v", e.ResourceType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
