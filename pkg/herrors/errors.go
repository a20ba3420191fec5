// Package herrors defines Hull's fail-with error taxonomy.
//
// Every capability and lifecycle stage classifies its failures into one
// of these categories rather than returning an ad-hoc error. The sentinel
// + %w wrapping style mirrors boundary.ErrAccessDenied /
// boundary.ErrNetworkDenied in the teacher corpus.
package herrors

import (
	"errors"
	"fmt"
)

// Category is one of the taxonomy entries from the error handling design.
type Category string

const (
	InvalidArgument Category = "InvalidArgument"
	OutOfBudget     Category = "OutOfBudget"
	NotPermitted    Category = "NotPermitted"
	IntegrityFailure Category = "IntegrityFailure"
	RuntimeError    Category = "RuntimeError"
	IOError         Category = "IOError"
	Timeout         Category = "Timeout"
)

// Sentinel errors, one per category. Wrap these with fmt.Errorf("...: %w", Err...)
// to attach context while keeping errors.Is working.
var (
	ErrInvalidArgument  = errors.New(string(InvalidArgument))
	ErrOutOfBudget      = errors.New(string(OutOfBudget))
	ErrNotPermitted     = errors.New(string(NotPermitted))
	ErrIntegrityFailure = errors.New(string(IntegrityFailure))
	ErrRuntimeError     = errors.New(string(RuntimeError))
	ErrIOError          = errors.New(string(IOError))
	ErrTimeout          = errors.New(string(Timeout))
)

var sentinels = map[Category]error{
	InvalidArgument:  ErrInvalidArgument,
	OutOfBudget:      ErrOutOfBudget,
	NotPermitted:     ErrNotPermitted,
	IntegrityFailure: ErrIntegrityFailure,
	RuntimeError:     ErrRuntimeError,
	IOError:          ErrIOError,
	Timeout:          ErrTimeout,
}

// Wrap attaches a category sentinel and a contextual message to err (or,
// if err is nil, creates a new error carrying just the message).
func Wrap(cat Category, msg string, err error) error {
	sentinel, ok := sentinels[cat]
	if !ok {
		sentinel = ErrRuntimeError
	}
	if err == nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("%w: %s: %v", sentinel, msg, err)
}

// New creates a category error with no wrapped cause.
func New(cat Category, msg string) error {
	return Wrap(cat, msg, nil)
}

// Classify reports which category, if any, an error belongs to.
func Classify(err error) (Category, bool) {
	for cat, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return cat, true
		}
	}
	return "", false
}

// Is reports whether err belongs to the given category.
func Is(err error, cat Category) bool {
	sentinel, ok := sentinels[cat]
	if !ok {
		return false
	}
	return errors.Is(err, sentinel)
}
