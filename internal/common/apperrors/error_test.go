package apperrors

import (
	"errors"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorDerivation(t *testing.T) {
	base := New("base error").SetStatusCode(http.StatusInternalServerError)

	derived := base.New("derived error")
	assert.Equal(t, "derived error", derived.Error())
	assert.Equal(t, http.StatusInternalServerError, derived.StatusCode())
	assert.True(t, errors.Is(derived, base))

	narrowed := derived.SetStatusCode(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, narrowed.StatusCode())
	// the original is untouched
	assert.Equal(t, http.StatusInternalServerError, derived.StatusCode())
}

func TestErrorWrapping(t *testing.T) {
	base := New("base error")
	cause := pkgerrors.New("underlying cause")

	wrapped := base.MsgErr("operation failed", cause)
	assert.Equal(t, "operation failed", wrapped.Error())
	assert.True(t, errors.Is(wrapped, base))
	assert.True(t, errors.Is(wrapped, cause))

	all := wrapped.UnwrapAll()
	assert.Len(t, all, 2)
}

func TestErrorAllExpansion(t *testing.T) {
	base := New("base error")
	cause := errors.New("cause one")

	err := base.Err(cause)
	assert.Equal(t, "base error", err.ErrorAll())

	expanded := err.SetExpandError(true)
	assert.Contains(t, expanded.ErrorAll(), "base error")
	assert.Contains(t, expanded.ErrorAll(), "cause one")
}

func TestMsgKeepsAncestry(t *testing.T) {
	root := New("root").SetStatusCode(http.StatusBadRequest)
	mid := root.New("mid")
	leaf := mid.Msg("leaf detail")

	assert.True(t, errors.Is(leaf, mid))
	assert.True(t, errors.Is(leaf, root))
	assert.Equal(t, http.StatusBadRequest, leaf.StatusCode())
}
