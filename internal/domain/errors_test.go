package domain_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SLAMon/SLAMon/internal/domain"
)

func TestTaskNotFoundError(t *testing.T) {
	err := &domain.TaskNotFoundError{TaskID: "abc-123"}
	if !strings.Contains(err.Error(), "abc-123") {
		t.Errorf("error message should contain task ID, got: %q", err.Error())
	}
}

func TestNoHandlerError(t *testing.T) {
	err := &domain.NoHandlerError{TaskType: "wait", Version: 3}
	msg := err.Error()
	if !strings.Contains(msg, "wait") {
		t.Errorf("error message should contain task type, got: %q", msg)
	}
	if !strings.Contains(msg, "3") {
		t.Errorf("error message should contain version, got: %q", msg)
	}
}

func TestTemporaryError_StatusAndUnwrap(t *testing.T) {
	cause := errors.New("bad gateway")
	err := &domain.TemporaryError{Op: "request tasks", StatusCode: 502, Err: cause}

	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "request tasks")
	assert.ErrorIs(t, err, cause)
}

func TestFatalError_WithoutStatus(t *testing.T) {
	err := &domain.FatalError{Op: "request tasks", Err: errors.New("missing return_time")}
	assert.Equal(t, "request tasks: missing return_time", err.Error())
}

func TestClassificationHelpers(t *testing.T) {
	temp := fmt.Errorf("cycle: %w", &domain.TemporaryError{Op: "x", Err: errors.New("eof")})
	fatal := fmt.Errorf("cycle: %w", &domain.FatalError{Op: "x", StatusCode: 404, Err: errors.New("nope")})

	assert.True(t, domain.IsTemporary(temp))
	assert.False(t, domain.IsFatal(temp))
	assert.True(t, domain.IsFatal(fatal))
	assert.False(t, domain.IsTemporary(fatal))
	assert.False(t, domain.IsTemporary(errors.New("plain")))
}

func TestAllErrorTypesImplementError(t *testing.T) {
	var _ error = &domain.TaskNotFoundError{}
	var _ error = &domain.NoHandlerError{}
	var _ error = &domain.TemporaryError{}
	var _ error = &domain.FatalError{}
	var _ error = &domain.AbortedError{}
}
