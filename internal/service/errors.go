package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for rollback and reporting decisions
type Kind int

const (
	// KindValidation is bad input detected before any state change
	KindValidation Kind = iota + 1
	// KindBusiness is a recognised rule violation; any open transaction is rolled back
	KindBusiness
	// KindUnexpected is any other fault; rolled back and reported with a generic message
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Code narrows a business failure down for transport mapping
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeInsufficientStock  Code = "insufficient_stock"
	CodeDuplicateEmail     Code = "duplicate_email"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeUnverified         Code = "unverified"
	CodeDeactivated        Code = "deactivated"
	CodeInvalidToken       Code = "invalid_token"
	CodeDeliveryFailed     Code = "delivery_failed"
	CodeCheckoutInProgress Code = "checkout_in_progress"
	CodeInternal           Code = "internal"
)

// Error is the failure type returned by every public service operation.
// Message is safe to show to users; Err carries the internal cause.
type Error struct {
	Kind    Kind
	Code    Code
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

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: message}
}

func businessError(code Code, message string) *Error {
	return &Error{Kind: KindBusiness, Code: code, Message: message}
}

func notFoundError(message string) *Error {
	return businessError(CodeNotFound, message)
}

func unexpectedError(message string, err error) *Error {
	return &Error{Kind: KindUnexpected, Code: CodeInternal, Message: message, Err: err}
}

// AsError extracts the service error from err, classifying anything else as unexpected
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return unexpectedError("An unexpected error occurred", err)
}

// KindOf returns the failure kind of err
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	return AsError(err).Kind
}

// asServiceError keeps service errors as they are and wraps anything else with message
func asServiceError(err error, message string) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return unexpectedError(message, err)
}
