package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApiError_Error(t *testing.T) {
	err := &ApiError{StatusCode: 500, Message: "internal server error"}
	assert.Equal(t, "internal server error", err.Error())

	inner := errors.New("boom")
	err = &ApiError{StatusCode: 500, Message: "internal server error", Err: inner}
	assert.Equal(t, "internal server error: boom", err.Error())
	assert.ErrorIs(t, err, inner, "expected ApiError to unwrap to inner error")
}

func Test_decodeError(t *testing.T) {
	tcases := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{name: "json body", status: 401, body: `{"status_code":401,"message":"unauthorized"}`, expected: "unauthorized"},
		{name: "custom message", status: 400, body: `{"message":"room exists"}`, expected: "room exists"},
		{name: "plain text body", status: 502, body: "bad gateway", expected: "bad gateway"},
		{name: "empty body", status: 404, body: "", expected: "not found"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tc.status, Body: io.NopCloser(strings.NewReader(tc.body))}
			apiErr := decodeError(resp)
			assert.Equal(t, tc.status, apiErr.StatusCode, "expected status code from response")
			assert.Equal(t, tc.expected, apiErr.Message)
		})
	}
}

func TestIsStatusHelpers(t *testing.T) {
	wrapped := fmt.Errorf("load history: %w", &ApiError{StatusCode: http.StatusUnauthorized})
	assert.True(t, IsUnauthorized(wrapped), "expected wrapped 401 to be detected")
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsNotFound(&ApiError{StatusCode: http.StatusNotFound}))
	assert.True(t, IsForbidden(&ApiError{StatusCode: http.StatusForbidden}))
	assert.False(t, IsUnauthorized(errors.New("plain")))
}
