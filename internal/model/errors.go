package model

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeMalformed          ErrorCode = "MALFORMED"
	ErrCodeUnknownCommand     ErrorCode = "UNKNOWN_COMMAND"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotConnected       ErrorCode = "NOT_CONNECTED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeCancelled          ErrorCode = "CANCELLED"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeFailed             ErrorCode = "FAILED"
	ErrCodeFatalDisconnect    ErrorCode = "FATAL_DISCONNECT"
	ErrCodeReconnectExhausted ErrorCode = "RECONNECT_EXHAUSTED"
)

// ActionError is a handler failure carrying the code reported on the error event.
type ActionError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *ActionError) Unwrap() error { return e.Err }

func Errorf(code ErrorCode, format string, args ...any) error {
	return &ActionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func ValidationErrorf(format string, args ...any) error {
	return Errorf(ErrCodeValidation, format, args...)
}

func WrapError(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	return &ActionError{Code: code, Message: err.Error(), Err: err}
}

// CodeOf returns the code carried by err, or FAILED when it carries none.
func CodeOf(err error) ErrorCode {
	var ae *ActionError
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return ErrCodeFailed
}
