package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// Money is exchanged as JSON numbers, never strings.
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("operation not allowed in current order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrderClosed       = errors.New("order is closed")
)

// Error is a business-rule failure. Message is safe to show to API callers.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func NotFoundf(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func Forbiddenf(format string, args ...any) error {
	return newError(ErrForbidden, format, args...)
}

func Conflictf(format string, args ...any) error {
	return newError(ErrConflict, format, args...)
}

func InvalidStatef(format string, args ...any) error {
	return newError(ErrInvalidState, format, args...)
}

func InvalidTransitionf(format string, args ...any) error {
	return newError(ErrInvalidTransition, format, args...)
}

func OrderClosedf(format string, args ...any) error {
	return newError(ErrOrderClosed, format, args...)
}

func Unauthenticatedf(format string, args ...any) error {
	return newError(ErrUnauthenticated, format, args...)
}

// Message returns the caller-facing text for a business-rule error.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
