package failure

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNilIsNil(t *testing.T) {
	assert.NoError(t, New(KindIO, "read", nil))
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("submit: %w", New(KindIO, "read file", base))

	assert.Equal(t, KindIO, KindOf(err))
	assert.True(t, Is(err, KindIO))
	assert.False(t, Is(err, KindStore))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "submit: read file: boom", err.Error())
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindStore, http.StatusInternalServerError},
		{KindTransform, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(Newf(tc.kind, "op", "x")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
