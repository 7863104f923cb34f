// Package errs provides the unified error type used across hdbexport.
//
// Every subsystem (config, database drivers, export, filestore, server) wraps
// its native errors into *errs.Error before returning them to callers. Callers
// use the Is* predicates to decide what failed without importing driver
// packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "query failed", hdbErr)
//
//	// In a caller, check the error kind:
//	if errs.IsConfiguration(err) {
//	    os.Exit(2)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindConfiguration            // missing or malformed settings
	ErrKindConnectionFailed         // connect or close failure
	ErrKindQueryFailed              // bad SQL, server-side execution error
	ErrKindIO                       // the output sink rejected written bytes
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindNotFound                 // no object, no bucket
	ErrKindPermissionDenied         // access denied / auth failure
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindIO:
		return "io"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all hdbexport subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Chaining ---

// chained pairs a primary failure with a secondary one that happened while
// cleaning up after it. The primary always comes first in the unwrap order,
// so errors.As reports the primary. kindOf only looks at the primary.
type chained struct {
	primary   error
	secondary error
}

func (c *chained) Error() string {
	return fmt.Sprintf("%v (additionally: %v)", c.primary, c.secondary)
}

func (c *chained) Unwrap() []error {
	return []error{c.primary, c.secondary}
}

// Chain attaches secondary to primary. If either is nil the other is
// returned unchanged.
func Chain(primary, secondary error) error {
	switch {
	case primary == nil:
		return secondary
	case secondary == nil:
		return primary
	}
	return &chained{primary: primary, secondary: secondary}
}

// Primary returns the primary error of a chain, or err itself.
func Primary(err error) error {
	var c *chained
	if errors.As(err, &c) {
		return c.primary
	}
	return err
}

// Secondary returns the error chained onto err by Chain, or nil.
func Secondary(err error) error {
	var c *chained
	if errors.As(err, &c) {
		return c.secondary
	}
	return nil
}

// --- Predicates ---

// IsConfiguration reports whether err is a missing or malformed setting.
func IsConfiguration(err error) bool {
	return kindOf(err) == ErrKindConfiguration
}

// IsConnectionFailed reports whether err is a connectivity, auth or close failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a query execution failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsIO reports whether err was raised by the output sink.
func IsIO(err error) bool {
	return kindOf(err) == ErrKindIO
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsNotFound reports whether err represents a missing object or bucket.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// KindOf extracts the ErrKind of the first *Error in the chain. The
// secondary side of a Chain is never consulted.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

func kindOf(err error) ErrKind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind
		case *chained:
			err = e.primary
			continue
		}
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if k := kindOf(inner); k != ErrKindUnknown {
					return k
				}
			}
			return ErrKindUnknown
		default:
			return ErrKindUnknown
		}
	}
	return ErrKindUnknown
}
