package errors

import (
	"errors"
	"strings"
)

// Wrap wraps an error with additional context, creating an Error if the input
// is not already one. Page, stage and path information of a wrapped Error is
// preserved.
func Wrap(err error, errType ErrorType, code, message string) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Type:    errType,
			Code:    code,
			Message: message,
			Cause:   e,
			Context: e.Context,
			Page:    e.Page,
			Stage:   e.Stage,
			Path:    e.Path,
			Fatal:   e.Fatal,
		}
	}

	return &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapInput wraps an error as an input error.
func WrapInput(err error, code, message string) *Error {
	return Wrap(err, ErrorTypeInput, code, message)
}

// WrapOutput wraps an error as an output error.
func WrapOutput(err error, code, message string) *Error {
	return Wrap(err, ErrorTypeOutput, code, message)
}

// WrapInternal wraps an error as an internal error.
func WrapInternal(err error, code, message string) *Error {
	return Wrap(err, ErrorTypeInternal, code, message)
}

// FormatError renders err for user facing summaries: the message chain
// without codes.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	msg := e.Message
	if e.Cause != nil {
		msg += ": " + FormatError(e.Cause)
	}

	return msg
}

// CombineErrors joins non-nil errors into one, or returns nil.
func CombineErrors(errs ...error) error {
	var collected []string
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		collected = append(collected, err.Error())
	}

	switch len(collected) {
	case 0:
		return nil
	case 1:
		return first
	default:
		return &Error{
			Type:    ErrorTypeInternal,
			Code:    ErrCodeInternalError,
			Message: strings.Join(collected, "; "),
			Cause:   first,
		}
	}
}
