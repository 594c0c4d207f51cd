// Package testutil holds the handful of HTTP test helpers the handler
// packages share. Anything more elaborate belongs next to the test that
// needs it.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertStatusCode fails the test when a handler responded with the wrong
// status, reporting both codes.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// DecodeJSON decodes a recorded JSON response body into v. A body that does
// not parse ends the test, since nothing after it could assert anything
// meaningful.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// NewTestRequest builds a bodyless request for handler tests.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder returns a fresh response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
