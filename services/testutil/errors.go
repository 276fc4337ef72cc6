package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	ErrorCodeInvalidRequest   = "INVALID_REQUEST"
	ErrorCodeUnauthorized     = "UNAUTHORIZED"
	ErrorCodeAccountSuspended = "ACCOUNT_SUSPENDED"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeEmailTaken       = "EMAIL_TAKEN"
	ErrorCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrorCodeNotFound         = "NOT_FOUND"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
)

// statusFor is the HTTP status the platform API pairs with each error code.
var statusFor = map[string]int{
	ErrorCodeInvalidRequest:   http.StatusBadRequest,
	ErrorCodeUnauthorized:     http.StatusUnauthorized,
	ErrorCodeAccountSuspended: http.StatusForbidden,
	ErrorCodeRateLimited:      http.StatusTooManyRequests,
	ErrorCodeEmailTaken:       http.StatusConflict,
	ErrorCodeQuotaExceeded:    http.StatusConflict,
	ErrorCodeNotFound:         http.StatusNotFound,
	ErrorCodeInternalError:    http.StatusInternalServerError,
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) apiError {
	t.Helper()
	var body apiError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), "error body: %s", resp.Body.String())
	return body
}

// AssertErrorCode checks both the status implied by code and the code in the body.
func AssertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, code string) {
	t.Helper()
	status, ok := statusFor[code]
	require.True(t, ok, "unknown error code %q", code)
	AssertHTTPStatus(t, resp, status)
	require.Equal(t, code, decodeError(t, resp).Code)
}

func AssertErrorMessage(t *testing.T, resp *httptest.ResponseRecorder, message string) {
	t.Helper()
	require.Equal(t, message, decodeError(t, resp).Message)
}

func AssertHTTPStatus(t *testing.T, resp *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, resp.Code, "body: %s", resp.Body.String())
}
