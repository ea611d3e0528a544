// Package fault defines the structured errors surfaced to callers of the
// drive engine. Every failure a user can see carries one of the stable codes
// below; transport and OS errors are wrapped at the layer that understands
// them and never leak raw.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a class of user-visible failure.
type Code string

const (
	// CodeAuthentication marks rejected credentials. Terminal for the attempt.
	CodeAuthentication Code = "AUTHENTICATION"
	// CodeConnection marks an unreachable or broken transport. The caller may
	// retry; the engine never retries on its own.
	CodeConnection Code = "CONNECTION"
	// CodePathEscape marks a path that would resolve outside the user's root.
	CodePathEscape Code = "PATH_ESCAPE"
	// CodeNotFound marks a missing entry or path.
	CodeNotFound Code = "NOT_FOUND"
	// CodeNameConflict marks a create or rename onto an existing name.
	CodeNameConflict Code = "NAME_CONFLICT"
	// CodeInvalidName marks an empty name or one containing separators.
	CodeInvalidName Code = "INVALID_NAME"
	// CodeQuotaExceeded marks an upload refused before any bytes moved.
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	// CodeSourceUnavailable marks a local source unreadable before transfer.
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	// CodeTransfer marks a failure partway through moving bytes.
	CodeTransfer Code = "TRANSFER"
	// CodeWrite marks a failure writing file content.
	CodeWrite Code = "WRITE"
	// CodePartial marks a batch where some names failed and some succeeded.
	CodePartial Code = "PARTIAL_FAILURE"
)

// Error is a classified failure with an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Raw     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Raw != nil:
		return fmt.Sprintf("%s: %s: %v", strings.ToLower(string(e.Code)), e.Message, e.Raw)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", strings.ToLower(string(e.Code)), e.Message)
	case e.Raw != nil:
		return fmt.Sprintf("%s: %v", strings.ToLower(string(e.Code)), e.Raw)
	default:
		return strings.ToLower(string(e.Code))
	}
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Raw
}

// Is matches either the same instance or any *Error with the same code, so
// sentinel-style checks like errors.Is(err, fault.New(fault.CodeNotFound, ""))
// work across wrapping.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if e == target {
		return true
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil raw yields a plain New.
func Wrap(code Code, message string, raw error) *Error {
	return &Error{Code: code, Message: message, Raw: raw}
}

// CodeOf extracts the classification of err, walking wrapped chains.
// Unclassified errors report CodeConnection only if nil-safe callers ask;
// they report "" here so the caller can decide.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var pe *PartialError
	if errors.As(err, &pe) {
		return CodePartial
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Code == code {
		return true
	}
	if code == CodePartial {
		var pe *PartialError
		return errors.As(err, &pe)
	}
	return false
}

// NameFailure records why one name in a batch failed.
type NameFailure struct {
	Name string
	Err  error
}

// PartialError aggregates per-name failures from a batch operation that
// attempted every name independently. Successes are implied by absence.
type PartialError struct {
	Op       string
	Failures []NameFailure
}

func (e *PartialError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Name
	}
	return fmt.Sprintf("%s: %d of batch failed (%s)", e.Op, len(e.Failures), strings.Join(names, ", "))
}

// Failed reports whether name is among the recorded failures.
func (e *PartialError) Failed(name string) bool {
	for _, f := range e.Failures {
		if f.Name == name {
			return true
		}
	}
	return false
}
