// Package failure labels sync errors for logs and metrics. It never decides
// to retry; the sync core has no retry policy.
package failure

import (
	"context"
	"errors"

	"github.com/kslji/trackUserAddress/internal/domain/model"
)

type Class string

const (
	ClassNone         Class = "none"
	ClassInvalidInput Class = "invalid_input"
	ClassRemote       Class = "remote"
	ClassPersistence  Class = "persistence"
	ClassCanceled     Class = "canceled"
	ClassUnknown      Class = "unknown"
)

type classifiedError struct {
	err   error
	class Class
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func mark(err error, class Class) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: class}
}

// Remote marks err as a failure of the ledger provider.
func Remote(err error) error {
	return mark(err, ClassRemote)
}

// Persistence marks err as a failure of the checkpoint or archive store.
func Persistence(err error) error {
	return mark(err, ClassPersistence)
}

// Classify returns the class of err. Cancellation wins over any mark so a
// caller giving up is never reported as a provider or store fault.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCanceled
	}
	if errors.Is(err, model.ErrInvalidCategory) || errors.Is(err, model.ErrInvalidDirection) ||
		errors.Is(err, model.ErrInvalidBlockRange) {
		return ClassInvalidInput
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return marked.class
	}
	return ClassUnknown
}
