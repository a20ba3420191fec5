package herrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapClassify(t *testing.T) {
	err := Wrap(NotPermitted, "path outside manifest", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotPermitted))

	cat, ok := Classify(err)
	require.True(t, ok)
	assert.Equal(t, NotPermitted, cat)
}

func TestWrapWithCause(t *testing.T) {
	cause := errors.New("stat: no such file")
	err := Wrap(IOError, "reading file", cause)
	assert.True(t, errors.Is(err, ErrIOError))
	assert.Contains(t, err.Error(), "stat: no such file")
}

func TestIs(t *testing.T) {
	err := New(OutOfBudget, "allocation denied")
	assert.True(t, Is(err, OutOfBudget))
	assert.False(t, Is(err, Timeout))
}

func TestUnknownCategoryFallsBackToRuntimeError(t *testing.T) {
	err := Wrap(Category("bogus"), "oops", nil)
	assert.True(t, errors.Is(err, ErrRuntimeError))
}
