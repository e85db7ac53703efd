package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"

	"innsearch/pkg/platform/sentinel"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTransient covers connection, proxy and timeout failures
	ErrorTransient ErrorCategory = "transient_network"

	// ErrorProtocol indicates the upstream answered with an unexpected shape
	ErrorProtocol ErrorCategory = "protocol"

	// ErrorUpstreamUnavailable indicates the upstream explicitly reported a failure
	ErrorUpstreamUnavailable ErrorCategory = "upstream_unavailable"

	// ErrorChallengeDecode indicates the challenge image could not be decoded
	ErrorChallengeDecode ErrorCategory = "challenge_decode"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// SourceError wraps lookup failures with normalized categorization
type SourceError struct {
	Category   ErrorCategory
	Source     string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *SourceError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("source %s [%s]: %s: %v", e.Source, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("source %s [%s]: %s", e.Source, e.Category, e.Message)
}

// Unwrap supports error unwrapping
func (e *SourceError) Unwrap() error {
	return e.Underlying
}

// NewSourceError creates a new normalized source error
func NewSourceError(category ErrorCategory, source, message string, underlying error) *SourceError {
	retryable := category == ErrorTransient ||
		category == ErrorUpstreamUnavailable

	return &SourceError{
		Category:   category,
		Source:     source,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// Protocol is shorthand for a non-retryable shape error.
func Protocol(source, format string, args ...any) *SourceError {
	return NewSourceError(ErrorProtocol, source, fmt.Sprintf(format, args...), nil)
}

// Unavailable is shorthand for an explicit upstream failure signal.
func Unavailable(source, message string) *SourceError {
	return NewSourceError(ErrorUpstreamUnavailable, source, message, sentinel.ErrUnavailable)
}

// Transport classifies an error returned by the HTTP client. Cancellation of
// the caller's context is passed through untouched so it is never retried.
func Transport(source, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTransient(err) {
		return NewSourceError(ErrorTransient, source, message, err)
	}
	return NewSourceError(ErrorInternal, source, message, err)
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return isTransient(err)
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Category
	}
	if isTransient(err) {
		return ErrorTransient
	}
	return ErrorInternal
}

// isTransient looks past the *url.Error the HTTP client wraps everything in:
// the wrapper itself says nothing about whether the failure is permanent.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	// Dial, proxy handshake and read/write failures.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
