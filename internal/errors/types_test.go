package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "basic error",
			err: &Error{
				Type:    ErrorTypeInput,
				Code:    "TEST_ERROR",
				Message: "test message",
			},
			expected: "[TEST_ERROR] test message",
		},
		{
			name: "error with page",
			err: NewInputError("TEST_ERROR", "test message", nil).
				WithPage(101),
			expected: "[TEST_ERROR] page:101 test message",
		},
		{
			name: "error with path",
			err: NewOutputError("TEST_ERROR", "test message", nil).
				WithPath("dist/page-101.xml"),
			expected: "[TEST_ERROR] dist/page-101.xml test message",
		},
		{
			name: "error with cause",
			err: NewInputError("TEST_ERROR", "test message",
				errors.New("underlying error")),
			expected: "[TEST_ERROR] test message: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewSizeLimitError(300000, 262144))

	assert.True(t, IsSizeLimitError(wrapped))
	assert.False(t, IsInputError(wrapped))
	assert.False(t, IsFatal(wrapped))

	tmpl := NewTemplateError(ErrCodeMissingPlaceholder, "no CONTENT")
	assert.True(t, IsTemplateError(tmpl))
	assert.True(t, IsFatal(tmpl), "template errors abort the batch")

	cfg := NewConfigError(ErrCodeConfigInvalid, "bad")
	assert.True(t, IsConfigError(cfg))
	assert.True(t, IsFatal(cfg))

	out := NewOutputError(ErrCodeOutputDir, "mkdir", nil).AsFatal()
	assert.True(t, IsOutputError(out))
	assert.True(t, IsFatal(out))

	assert.True(t, IsValidationError(NewValidationError(ErrCodeValidationFailed, "x")))
	assert.False(t, IsInputError(errors.New("plain")))
}

func TestSizeLimitContext(t *testing.T) {
	err := NewSizeLimitError(300000, 262144)

	assert.Equal(t, 300000, err.Context["actual"])
	assert.Equal(t, 262144, err.Context["limit"])
	assert.Contains(t, err.Error(), "300000")
}

func TestStageOf(t *testing.T) {
	err := NewInputError(ErrCodeFileNotFound, "missing", nil).WithStage(StageLoad)
	assert.Equal(t, StageLoad, StageOf(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, Stage(""), StageOf(errors.New("plain")))
}

func TestIsComparesTypeAndCode(t *testing.T) {
	a := NewInputError(ErrCodeFileNotFound, "a", nil)
	b := NewInputError(ErrCodeFileNotFound, "b", nil)
	c := NewInputError(ErrCodeContentTooLong, "c", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWrapPreservesLocation(t *testing.T) {
	inner := NewInputError(ErrCodeFileNotFound, "missing", nil).
		WithPage(104).
		WithStage(StageLoad).
		WithPath("content/page-104.txt")

	outer := Wrap(inner, ErrorTypeInput, ErrCodeFileUnreadable, "reading content")
	require.NotNil(t, outer)

	assert.Equal(t, 104, outer.Page)
	assert.Equal(t, StageLoad, outer.Stage)
	assert.Equal(t, "content/page-104.txt", outer.Path)
	assert.Nil(t, Wrap(nil, ErrorTypeInput, "X", "y"))
}

func TestFormatError(t *testing.T) {
	err := WrapOutput(errors.New("permission denied"), ErrCodeWriteFailed, "writing fragment")

	assert.Equal(t, "writing fragment: permission denied", FormatError(err))
	assert.Equal(t, "", FormatError(nil))
}

func TestCombineErrors(t *testing.T) {
	assert.Nil(t, CombineErrors(nil, nil))

	single := errors.New("one")
	assert.Equal(t, single, CombineErrors(nil, single))

	combined := CombineErrors(errors.New("one"), errors.New("two"))
	require.Error(t, combined)
	assert.Contains(t, combined.Error(), "one; two")
}
