package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrTransientProvider indicates a provider failure worth retrying later
	// (timeouts, 5xx, rate limiting, connection errors)
	ErrTransientProvider = errors.New("provider temporarily unavailable")

	// ErrPermanentProvider indicates the provider cannot serve the request
	// (unknown scope, removed page)
	ErrPermanentProvider = errors.New("provider cannot serve this request")

	// ErrParse indicates the provider response no longer has the expected shape
	ErrParse = errors.New("provider response could not be parsed")

	// ErrRemoteSearchUnavailable indicates remote search could not be used
	ErrRemoteSearchUnavailable = errors.New("remote search unavailable")

	// ErrCacheCorruption indicates a stored record could not be decoded
	ErrCacheCorruption = errors.New("cache record corrupted")

	// ErrUnknownProvider indicates the provider id is not registered
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnknownSource indicates the source is not in the provider's catalog
	ErrUnknownSource = errors.New("unknown source")

	// ErrInvalidRange indicates a malformed or oversized date range
	ErrInvalidRange = errors.New("invalid date range")
)

// ErrorClass is the failure classification every adapter error carries.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
	ClassParse     ErrorClass = "parse"
)

// Sentinel returns the sentinel error matching the class.
func (c ErrorClass) Sentinel() error {
	switch c {
	case ClassPermanent:
		return ErrPermanentProvider
	case ClassParse:
		return ErrParse
	default:
		return ErrTransientProvider
	}
}

// ProviderError wraps an adapter failure with its classification.
type ProviderError struct {
	Class    ErrorClass
	Provider ProviderID
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Class)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's class.
func (e *ProviderError) Is(target error) bool {
	return target == e.Class.Sentinel()
}

// NewProviderError classifies err for provider p.
func NewProviderError(class ErrorClass, p ProviderID, op string, err error) *ProviderError {
	return &ProviderError{Class: class, Provider: p, Op: op, Err: err}
}

// ClassOf returns the classification of err. Unclassified errors count as
// transient so that cached data is preserved.
func ClassOf(err error) ErrorClass {
	var pe *ProviderError
	switch {
	case errors.As(err, &pe):
		return pe.Class
	case errors.Is(err, ErrPermanentProvider), errors.Is(err, ErrUnknownSource),
		errors.Is(err, ErrUnknownProvider), errors.Is(err, ErrInvalidRange):
		return ClassPermanent
	case errors.Is(err, ErrParse):
		return ClassParse
	default:
		return ClassTransient
	}
}
