package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *APIError
		want int
	}{
		{NewValidationError("bad input"), 400},
		{NewConflictError("duplicate"), 400},
		{NewNotFoundError("missing"), 404},
		{NewAuthError("no token"), 401},
		{NewForbiddenError("not yours"), 403},
		{NewInternalError("boom", errors.New("cause")), 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.HTTPStatus(), "category %s", tc.err.Category)
	}
}

func TestAsAPIError(t *testing.T) {
	apiErr := NewNotFoundError("missing")
	assert.Equal(t, apiErr, AsAPIError(apiErr))

	wrapped := fmt.Errorf("context: %w", apiErr)
	assert.Equal(t, apiErr, AsAPIError(wrapped))

	plain := AsAPIError(errors.New("plain"))
	assert.Equal(t, ErrorCategoryInternal, plain.Category)
	assert.EqualError(t, plain.Cause, "plain")

	assert.Equal(t, ErrorCategoryInternal, AsAPIError(nil).Category)
}

func TestInternalErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewInternalError("Failed to fetch", cause)
	assert.ErrorIs(t, err, cause)
}
