package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type coded struct{ msg string }

func (c *coded) Error() string { return c.msg }

func (c *coded) AppError() *Error {
	clone := Clone(ErrFilterArgument, c.msg)
	clone.Details = map[string]string{"fragment": "x"}
	return clone
}

func TestFromErrorKeepsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrNotFound)
	assert.Equal(t, ErrNotFound, FromError(err))
}

func TestFromErrorUsesCoder(t *testing.T) {
	err := fmt.Errorf("compile: %w", &coded{msg: "bad operator"})
	appErr := FromError(err)
	assert.Equal(t, ErrFilterArgument.Code, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, "bad operator", appErr.Message)
}

func TestFromErrorFallsBackToInternal(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, "internal server error: boom", appErr.Error())
}

func TestCloneMatchesSentinel(t *testing.T) {
	clone := Clone(ErrConflict, "item already queued")
	assert.True(t, stdErrors.Is(clone, ErrConflict))
	assert.False(t, stdErrors.Is(clone, ErrNotFound))
}
