package extraction

import (
	"errors"
	"fmt"
)

// FailureKind classifies extraction failures for retry decisions and
// user-facing messaging.
type FailureKind string

const (
	// FailureMalformedInput rejects invalid payloads before any network call.
	FailureMalformedInput FailureKind = "malformed-input"
	// FailureRateLimited is terminal; the caller should try later.
	FailureRateLimited FailureKind = "rate-limited"
	// FailureQuotaExhausted is terminal; the service is unavailable.
	FailureQuotaExhausted FailureKind = "quota-exhausted"
	// FailureUnprocessableInput means the service refused to interpret the
	// payload; retried up to budget, then terminal with guidance.
	FailureUnprocessableInput FailureKind = "unprocessable-input"
	// FailureExtraction covers generic transport/response failures.
	FailureExtraction FailureKind = "extraction-failed"
)

// Failure is a classified extraction error.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure builds a classified failure wrapping an optional cause.
func NewFailure(kind FailureKind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure kind from an error chain, defaulting to the
// generic extraction failure.
func KindOf(err error) FailureKind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return FailureExtraction
}

// retriable reports whether another attempt may succeed.
func retriable(kind FailureKind) bool {
	switch kind {
	case FailureRateLimited, FailureQuotaExhausted, FailureMalformedInput:
		return false
	}
	return true
}
