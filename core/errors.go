package core

import "github.com/pkg/errors"

// FieldError ties an error message to a specific payload field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a business-rule violation. Fields is optional;
// when set, the API renders a field-to-message map instead of a
// single error string.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown signals an unrecoverable integrity problem; the server
// stops instead of serving with bad state.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
