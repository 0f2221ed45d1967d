package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the categories of the conversion error taxonomy.
type ErrorType string

const (
	ErrorTypeInput      ErrorType = "input"
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeSizeLimit  ErrorType = "size_limit"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeOutput     ErrorType = "output"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Stage names the pipeline step a page error was raised in.
type Stage string

const (
	StageLoad     Stage = "load"
	StageRender   Stage = "render"
	StageAssemble Stage = "assemble"
	StageValidate Stage = "validate"
	StageWrite    Stage = "write"
)

// Error is the structured error type shared by every pipeline component.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	Page    int
	Stage   Stage
	Path    string
	// Fatal marks batch-wide errors that abort the run before or during
	// page processing.
	Fatal bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Page != 0 {
		parts = append(parts, fmt.Sprintf("page:%d", e.Page))
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPage attaches the page number the error belongs to.
func (e *Error) WithPage(page int) *Error {
	e.Page = page

	return e
}

// WithStage attaches the pipeline stage.
func (e *Error) WithStage(stage Stage) *Error {
	e.Stage = stage

	return e
}

// WithPath attaches the file the error refers to.
func (e *Error) WithPath(path string) *Error {
	e.Path = path

	return e
}

// AsFatal marks the error as batch-wide.
func (e *Error) AsFatal() *Error {
	e.Fatal = true

	return e
}

// NewInputError creates an error for missing or unusable source input.
func NewInputError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInput,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewTemplateError creates an error for a template that cannot serve any page.
// Template errors are always batch-wide.
func NewTemplateError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeTemplate,
		Code:    code,
		Message: message,
		Fatal:   true,
	}
}

// NewSizeLimitError creates an error for a document over the byte ceiling.
func NewSizeLimitError(actual, limit int) *Error {
	return &Error{
		Type:    ErrorTypeSizeLimit,
		Code:    ErrCodeSizeLimit,
		Message: fmt.Sprintf("fragment is %d bytes, limit is %d bytes", actual, limit),
		Context: map[string]interface{}{
			"actual": actual,
			"limit":  limit,
		},
	}
}

// NewValidationError creates an error for a fragment rejected by a blocking layer.
func NewValidationError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewOutputError creates an error for a failed write.
func NewOutputError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeOutput,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Fatal:   true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func hasType(err error, errType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}

	return false
}

// IsInputError reports whether err is an input error.
func IsInputError(err error) bool { return hasType(err, ErrorTypeInput) }

// IsTemplateError reports whether err is a template error.
func IsTemplateError(err error) bool { return hasType(err, ErrorTypeTemplate) }

// IsSizeLimitError reports whether err is a size limit error.
func IsSizeLimitError(err error) bool { return hasType(err, ErrorTypeSizeLimit) }

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsOutputError reports whether err is an output error.
func IsOutputError(err error) bool { return hasType(err, ErrorTypeOutput) }

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return hasType(err, ErrorTypeConfig) }

// IsFatal reports whether err aborts the whole batch.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal
	}

	return false
}

// StageOf returns the stage recorded on err, or "" when unknown.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}

	return ""
}

// Common error codes.
const (
	ErrCodeFileNotFound        = "ERR_FILE_NOT_FOUND"
	ErrCodeFileUnreadable      = "ERR_FILE_UNREADABLE"
	ErrCodeContentTooLong      = "ERR_CONTENT_TOO_LONG"
	ErrCodeEncoding            = "ERR_ENCODING"
	ErrCodePageOutOfRange      = "ERR_PAGE_OUT_OF_RANGE"
	ErrCodeMissingPlaceholder  = "ERR_MISSING_PLACEHOLDER"
	ErrCodeSizeLimit           = "ERR_SIZE_LIMIT"
	ErrCodeValidationFailed    = "ERR_VALIDATION_FAILED"
	ErrCodeOutputDir           = "ERR_OUTPUT_DIR"
	ErrCodeWriteFailed         = "ERR_WRITE_FAILED"
	ErrCodePathCollision       = "ERR_PATH_COLLISION"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeInternalError       = "ERR_INTERNAL"
	ErrCodeSerializationFailed = "ERR_SERIALIZATION"
)
