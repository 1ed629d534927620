package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies cart failures so the HTTP layer can pick a status code.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified cart error. Message is safe to show to end users.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a client input error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NotFound returns an error for a missing product or line item.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict returns a business-rule violation for well-formed input.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Internal wraps a collaborator failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

var (
	ErrInvalidQuantity   = Validation(fmt.Sprintf("Quantity must be between 1 and %d", MaxQuantity))
	ErrIdentityRequired  = Validation("Authentication or session ID required")
	ErrProductNotFound   = NotFound("Product not found")
	ErrItemNotInCart     = NotFound("Item not found in cart")
	ErrInsufficientStock = Conflict("Insufficient stock")
	ErrCartFull          = Conflict(fmt.Sprintf("Cart cannot contain more than %d different products", MaxCartItems))
)

// KindOf reports the kind of err, treating unclassified errors as internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
