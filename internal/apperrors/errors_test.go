package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_MessageIncludesCause(t *testing.T) {
	err := Generation("generate weight_management", errors.New("upstream 500"))
	assert.Equal(t, "generate weight_management: upstream 500", err.Error())

	assert.Equal(t, "report not found", NotFound("report").Error())
}

func TestKindOf_FindsWrappedError(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("store report: %w", Persistence("insert report", cause))

	assert.Equal(t, KindPersistence, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindPersistence))
	assert.False(t, Is(wrapped, KindGeneration))
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
