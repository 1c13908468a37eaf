package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusError_Categories(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{401, ErrSessionInvalid},
		{403, ErrSessionInvalid},
		{404, ErrNotFound},
		{409, ErrConflict},
		{429, ErrRateLimited},
		{500, ErrUnavailable},
		{503, ErrUnavailable},
	}
	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", &StatusError{Op: "create draft", Status: tc.status})
		assert.True(t, errors.Is(err, tc.want), "status %d", tc.status)
	}
}

func TestStatusError_UncategorizedStatus(t *testing.T) {
	err := &StatusError{Op: "create draft", Status: 400}
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "Failed to create draft (error 400)", err.Error())
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(401, "x"), "log in again")
	assert.Contains(t, Describe(404, "x"), "Not found")
	assert.Contains(t, Describe(429, "x"), "Too many requests")
	assert.Contains(t, Describe(502, "x"), "temporarily unavailable")
	assert.Equal(t, "Failed to publish (error 422)", Describe(422, "publish"))
}
