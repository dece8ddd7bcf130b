package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Upload rejected before reaching the catalog or the layer store.
	CodeValidation Code = "VALIDATION"
	// Catalog or document read/write failure.
	CodePersistence Code = "PERSISTENCE"
	// Rasterization failed; the scene was restored.
	CodeExport Code = "EXPORT"
	// Malformed drop payload; the drop was ignored.
	CodeInputParse Code = "INPUT_PARSE"

	CodeNotFound         Code = "NOT_FOUND"
	CodeExportInProgress Code = "EXPORT_IN_PROGRESS"
)

// HTTPStatus maps the code to a response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeInputParse:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExportInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a Code.
type Error struct {
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

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to err.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
