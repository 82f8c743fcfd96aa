// Package faults classifies governance errors so callers can decide whether a
// failure is the caller's input, a state conflict, or something that needs an
// operator.
package faults

import "errors"

type Class string

const (
	ClassValidation    Class = "validation"
	ClassStateConflict Class = "state_conflict"
	ClassIntegrity     Class = "integrity"
	ClassConfiguration Class = "configuration"
	ClassNotFound      Class = "not_found"
	ClassInternal      Class = "internal"
)

// Classified is implemented by every typed error in the governance core.
type Classified interface {
	error
	FaultClass() Class
}

// ClassOf walks the error chain and returns the class of the first classified
// error. Unclassified errors are internal.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var c Classified
	if errors.As(err, &c) {
		return c.FaultClass()
	}
	return ClassInternal
}

// Retryable reports whether a caller may retry the same call unchanged.
// Validation, state conflicts and integrity failures never are.
func Retryable(err error) bool {
	return ClassOf(err) == ClassInternal
}

// NotFound is a small classified error for missing entities.
type NotFound struct {
	Entity string
	ID     string
}

func (e NotFound) Error() string {
	return e.Entity + " " + e.ID + " not found"
}

func (e NotFound) FaultClass() Class { return ClassNotFound }
