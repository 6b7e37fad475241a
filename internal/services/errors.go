// Package services implements the registry's core operations: credential issue and
// rotation, grant management, object key resolution, presigned URL issuance and usage
// accounting. Handlers translate HTTP into calls on these services; every failure a
// caller should see is returned as an *Error carrying one of the Kind values below.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure. The API layer maps each kind to one HTTP status.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidArgument
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindServiceUnavailable:
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// Error is a caller-facing failure. Detail is safe to return verbatim.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unauthorized reports a missing, unknown or revoked credential
func Unauthorized(detail string) *Error { return &Error{Kind: KindUnauthorized, Detail: detail} }

// Forbidden reports an authenticated caller lacking access to a resource
func Forbidden(detail string) *Error { return &Error{Kind: KindForbidden, Detail: detail} }

// NotFound reports an unknown repository, file or object
func NotFound(detail string) *Error { return &Error{Kind: KindNotFound, Detail: detail} }

// Conflict reports a duplicate unique key
func Conflict(detail string) *Error { return &Error{Kind: KindConflict, Detail: detail} }

// InvalidArgument reports out-of-range or malformed input
func InvalidArgument(detail string) *Error { return &Error{Kind: KindInvalidArgument, Detail: detail} }

// InvalidArgumentf is InvalidArgument with formatting
func InvalidArgumentf(format string, args ...any) *Error {
	return InvalidArgument(fmt.Sprintf(format, args...))
}

// ServiceUnavailable reports missing server-side configuration
func ServiceUnavailable(detail string) *Error {
	return &Error{Kind: KindServiceUnavailable, Detail: detail}
}

// KindOf returns the kind of err if it wraps an *Error
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsKind reports whether err wraps an *Error of kind k
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}
