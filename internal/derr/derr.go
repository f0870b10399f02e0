// Package derr implements ndncore's error-kind taxonomy (spec.md §7) and a
// small set of panic/wrap helpers, in the idiom of the teacher's go/store/d
// package: assertions that panic with a typed cause rather than threading a
// bool through every call site, plus a Cause()-bearing wrapped error for I/O
// boundaries.
package derr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy from spec.md §7.
type Kind int

const (
	NotFound Kind = iota
	AlreadyExists
	InComplete
	InvalidId
	InvalidState
	VerifyError
	NoPermission
	InvalidToken
	Timeout
	IoError
	ReasonError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case InComplete:
		return "InComplete"
	case InvalidId:
		return "InvalidId"
	case InvalidState:
		return "InvalidState"
	case VerifyError:
		return "VerifyError"
	case NoPermission:
		return "NoPermission"
	case InvalidToken:
		return "InvalidToken"
	case Timeout:
		return "Timeout"
	case IoError:
		return "IoError"
	case ReasonError:
		return "ReasonError"
	default:
		return "Unknown"
	}
}

// Retryable reports whether an error of this kind is worth the caller
// retrying (spec.md §7's Retryable column).
func (k Kind) Retryable() bool {
	switch k {
	case InComplete, Timeout, IoError:
		return true
	default:
		return false
	}
}

// HTTPStatus is the HTTP status code the NDN surface maps this kind to
// (spec.md §7 "User-visible behavior").
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return 404
	case AlreadyExists:
		return 409
	case InvalidToken:
		return 401
	case NoPermission:
		return 403
	case VerifyError:
		return 422
	case Timeout:
		return 504
	case InComplete, InvalidId, InvalidState:
		return 400
	default:
		return 500
	}
}

// Error is a Kind-tagged error, optionally wrapping a lower-level cause.
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare Kind-tagged error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an IoError-shaped Error around cause, recording the op and
// the path the I/O was performed against (spec.md §7: "IoError(path,source)").
func Wrap(kind Kind, op, path string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Cause: errors.WithStack(cause)}
}

// KindOf extracts the Kind from err, defaulting to ReasonError for any
// error that didn't originate as a derr.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ReasonError
}

// PanicIfTrue panics with msg if cond holds, following the teacher's d.PanicIfTrue idiom.
func PanicIfTrue(cond bool, msg string) {
	if cond {
		panic(msg)
	}
}

// PanicIfFalse panics with msg unless cond holds.
func PanicIfFalse(cond bool, msg string) {
	if !cond {
		panic(msg)
	}
}

// PanicIfError panics if err is non-nil.
func PanicIfError(err error) {
	if err != nil {
		panic(err)
	}
}
