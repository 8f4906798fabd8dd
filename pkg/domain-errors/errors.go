// Package domainerrors defines the coded error taxonomy for tradepost.
//
// Services return these errors so transport layers can translate them into
// HTTP responses without string matching. Stores and infrastructure return
// sentinel errors (pkg/platform/sentinel) instead; the service layer owns the
// translation into a domain code.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure kind. Marketplace codes mirror the contract's
// revert conditions; the ambient codes cover transport and infrastructure.
type Code string

const (
	// Marketplace failure kinds.
	CodeDuplicateUser    Code = "duplicate_user"
	CodeUnknownUser      Code = "unknown_user"
	CodeInvalidPrice     Code = "invalid_price"
	CodeItemNotFound     Code = "item_not_found"
	CodeItemUnavailable  Code = "item_unavailable"
	CodeIncorrectPayment Code = "incorrect_payment"
	CodeNoFunds          Code = "no_funds"
	CodeTransferFailed   Code = "transfer_failed"

	// Ambient codes.
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal"
)

// Error carries a code, a caller-safe message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/errors.As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err carries
// none. A nil error has no code; callers should not ask.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message, falling back to a generic one so
// internal error text never leaks through transport.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status. Keeping the mapping here means
// every handler reports the same status for the same failure kind.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeDuplicateUser, CodeItemUnavailable, CodeNoFunds:
		return http.StatusConflict
	case CodeUnknownUser:
		return http.StatusForbidden
	case CodeInvalidPrice, CodeIncorrectPayment:
		return http.StatusUnprocessableEntity
	case CodeItemNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
