// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package queryengine

import "fmt"

// Code identifies the kind of failure the engine surfaced, mirroring the
// taxonomy the native client engine reports across its C ABI
// (CosmosCxResultCode) but specialized to the query pipeline.
type Code int

const (
	// CodeInternal covers invariant violations inside the pipeline itself.
	CodeInternal Code = iota
	// CodeInvalidArgument covers nil/empty collaborator arguments.
	CodeInvalidArgument
	// CodePartitionGone is the signal for a 410/Gone with sub-status
	// PARTITION_KEY_RANGE_GONE. A producer that sees it resolves its
	// children; the Parallel base then replaces it with one producer per
	// child. The OrderBy base does not handle splits, so under ORDER BY
	// this code surfaces to the caller as a query failure.
	CodePartitionGone
	// CodeInvalidContinuation covers unparsable tokens, version mismatches,
	// and continuations referencing a partition-key range that has since
	// been merged away.
	CodeInvalidContinuation
	// CodeThrottled is a 429 surfaced after the retry policy gave up.
	CodeThrottled
	// CodeTimedOut is a transport timeout surfaced after retries.
	CodeTimedOut
	// CodeCancelled means the caller's context was cancelled.
	CodeCancelled
	// CodePlanRejected covers plans the pipeline factory cannot build,
	// e.g. an unsupported aggregate composition or cross-partition
	// DISTINCT without a hash strategy.
	CodePlanRejected
	// CodeBackendError is a 5xx surfaced after retries are exhausted.
	CodeBackendError
	// CodeBadRequest is any other 4xx from the backend.
	CodeBadRequest
)

func (c Code) String() string {
	switch c {
	case CodeInternal:
		return "internal error"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodePartitionGone:
		return "partition key range gone"
	case CodeInvalidContinuation:
		return "invalid continuation token"
	case CodeThrottled:
		return "request throttled"
	case CodeTimedOut:
		return "request timed out"
	case CodeCancelled:
		return "cancelled"
	case CodePlanRejected:
		return "query plan rejected"
	case CodeBackendError:
		return "backend error"
	case CodeBadRequest:
		return "bad request"
	default:
		return "unknown error"
	}
}

// Error is the single concrete error type returned by this package. Callers
// should use errors.As to recover the Code and decide how to react, the way
// azcosmoscx.Error callers switch on Code().
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode reports whether the first *Error found in err's Unwrap chain
// carries the given code. An *Error nested inside another *Error is not
// consulted.
func IsCode(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return false
	}
	return e.Code == code
}
