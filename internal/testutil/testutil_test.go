package testutil

import (
	"net/http"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)

	mock := &testing.T{}
	AssertStatusCode(mock, http.StatusNotFound, http.StatusOK)
	if !mock.Failed() {
		t.Error("AssertStatusCode passed on mismatched codes")
	}
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest("GET", "/api/status")
	if req.Method != "GET" || req.URL.Path != "/api/status" {
		t.Errorf("request = %s %s, want GET /api/status", req.Method, req.URL.Path)
	}
}

func TestNewTestRecorder(t *testing.T) {
	rec := NewTestRecorder()
	rec.WriteHeader(http.StatusTeapot)
	if rec.Code != http.StatusTeapot {
		t.Errorf("recorder code = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestDecodeJSON(t *testing.T) {
	rec := NewTestRecorder()
	rec.Body.WriteString(`{"address": 573169, "key": 1}`)

	var got struct {
		Address uint32 `json:"address"`
		Key     uint8  `json:"key"`
	}
	DecodeJSON(t, rec, &got)
	if got.Address != 573169 || got.Key != 1 {
		t.Errorf("decoded = %+v, want address 573169 key 1", got)
	}
}
