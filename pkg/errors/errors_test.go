package errors

import (
	stderr "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
}

func TestWrapKeepsSentinel(t *testing.T) {
	sentinel := New("not found")
	cause := stderr.New("404")

	wrapped := sentinel.Wrap(cause)
	require.True(t, Is(wrapped, sentinel))
	require.True(t, Is(wrapped, cause))
	assert.Equal(t, "not found: 404", wrapped.Error())

	// the sentinel itself is left untouched
	assert.Nil(t, sentinel.Unwrap())
	assert.Equal(t, "not found", sentinel.Error())

	other := New("not found")
	assert.False(t, Is(wrapped, other))
}

func TestWrapMessage(t *testing.T) {
	sentinel := New("invalid argument")
	err := sentinel.WrapMessage("branch %q is protected", "main")
	assert.True(t, Is(err, sentinel))
	assert.Equal(t, `invalid argument: branch "main" is protected`, err.Error())

	rewrapped := sentinel.Wrap(err)
	assert.True(t, Is(rewrapped, sentinel))
}
