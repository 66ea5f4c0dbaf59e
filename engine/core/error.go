package core

import (
	"errors"
	"fmt"
)

// Error codes used across the engine. Per-file codes never abort a directory
// walk; run-level codes stop the walk while preserving gathered results.
const (
	CodeConfigInvalid        = "CONFIG_INVALID"
	CodeUnsupportedFormat    = "UNSUPPORTED_FORMAT"
	CodeEncodingUndetectable = "ENCODING_UNDETECTABLE"
	CodeExtractionFailed     = "EXTRACTION_FAILED"
	CodeResourceExhausted    = "RESOURCE_EXHAUSTED"
	CodeMalformedInput       = "MALFORMED_INPUT"
	CodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	CodeSymlinkLoop          = "SYMLINK_LOOP"
	CodePathTraversal        = "PATH_TRAVERSAL"
)

// Error carries a machine-readable code alongside the wrapped cause.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a code and optional details.
func NewError(err error, code string, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details, Err: err}
}

// CodeOf extracts the engine error code from err, or empty when err carries none.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// IsCode reports whether err carries the given engine error code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
