// Package apperr is the error taxonomy shared by services and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation           Kind = "VALIDATION"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindForbidden            Kind = "FORBIDDEN"
	KindNotFound             Kind = "NOT_FOUND"
	KindConflict             Kind = "CONFLICT"
	KindInsufficientStock    Kind = "INSUFFICIENT_STOCK"
	KindPaymentInit          Kind = "PAYMENT_INIT_FAILED"
	KindPaymentNotSuccessful Kind = "PAYMENT_NOT_SUCCESSFUL"
	KindInvalidReference     Kind = "INVALID_REFERENCE"
	KindUpstream             Kind = "UPSTREAM_GATEWAY"
	KindInternal             Kind = "INTERNAL"
)

// Error carries a Kind, a message safe to show to clients, optional
// structured details and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// With returns a copy of e with the detail key set.
func (e *Error) With(key string, v any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, val := range e.Details {
		cp.Details[k] = val
	}
	cp.Details[key] = v
	return &cp
}

func Validation(msg string) *Error { return New(KindValidation, msg) }
func NotFound(msg string) *Error   { return New(KindNotFound, msg) }
func Conflict(msg string) *Error   { return New(KindConflict, msg) }
func Internal(msg string, err error) *Error {
	return Wrap(KindInternal, msg, err)
}

// InsufficientStock reports the stock available at check time. currentInCart
// is only attached when the caller already holds a line for the product.
func InsufficientStock(msg string, available int, currentInCart *int) *Error {
	e := New(KindInsufficientStock, msg).With("available", available)
	if currentInCart != nil {
		e = e.With("currentInCart", *currentInCart)
	}
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
