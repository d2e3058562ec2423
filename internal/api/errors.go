package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

// decodeError builds an ApiError from a non-2xx response. The body is
// expected to carry {status_code, message}; anything else falls back to
// the status text.
func decodeError(resp *http.Response) *ApiError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &ApiError{}
	if err != nil || json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = lower(http.StatusText(resp.StatusCode))
	}
	apiErr.StatusCode = resp.StatusCode

	return apiErr
}

func hasStatus(err error, code int) bool {
	var apiErr *ApiError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}
