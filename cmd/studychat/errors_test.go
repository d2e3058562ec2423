package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/studychat/internal/api"
	"github.com/stretchr/testify/assert"
)

func Test_explain(t *testing.T) {
	tcases := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "unauthorized",
			err:      fmt.Errorf("list rooms: %w", &api.ApiError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}),
			expected: "list rooms: unauthorized, run `studychat login`",
		},
		{
			name:     "forbidden",
			err:      &api.ApiError{StatusCode: http.StatusForbidden, Message: "forbidden"},
			expected: "forbidden, only the author may change it",
		},
		{
			name:     "not found",
			err:      &api.ApiError{StatusCode: http.StatusNotFound, Message: "not found"},
			expected: "not found, see `studychat rooms` for what exists",
		},
		{
			name:     "other",
			err:      errors.New("connection refused"),
			expected: "connection refused",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := explain(tc.err)
			assert.EqualError(t, err, tc.expected)
			assert.ErrorIs(t, err, tc.err, "expected the original error to stay wrapped")
		})
	}

	assert.NoError(t, explain(nil))
}
