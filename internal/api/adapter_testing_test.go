package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandleAdapterTest_Validation covers the request checks that run before
// any port is touched.
func TestHandleAdapterTest_Validation(t *testing.T) {
	server, dbInst, _ := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	t.Run("rejects non-POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/adapter/test", nil)
		w := httptest.NewRecorder()
		server.handleAdapterTest(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/adapter/test", strings.NewReader("{nope"))
		w := httptest.NewRecorder()
		server.handleAdapterTest(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("requires port path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/adapter/test", strings.NewReader("{}"))
		w := httptest.NewRecorder()
		server.handleAdapterTest(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects traversal port path", func(t *testing.T) {
		body := `{"port_path": "/dev/tty/../../etc/passwd"}`
		req := httptest.NewRequest(http.MethodPost, "/api/adapter/test", strings.NewReader(body))
		w := httptest.NewRecorder()
		server.handleAdapterTest(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestHandleAdapterTest_ProbeReportsFailure posts a well-formed request for a
// port that does not exist. The HTTP call itself succeeds; the probe result
// inside the body carries the failure.
func TestHandleAdapterTest_ProbeReportsFailure(t *testing.T) {
	server, dbInst, _ := setupTestServer(t)
	defer cleanupTestServer(t, dbInst)

	body := `{"port_path": "/dev/ttyKEYFOB42", "baud_rate": 115200}`
	req := httptest.NewRequest(http.MethodPost, "/api/adapter/test", strings.NewReader(body))
	w := httptest.NewRecorder()
	server.handleAdapterTest(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp AdapterTestResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "/dev/ttyKEYFOB42", resp.PortPath)
	assert.Equal(t, 115200, resp.BaudRate)
	assert.Contains(t, resp.Error, "Failed to open port")
	assert.NotEmpty(t, resp.Suggestion)
}

func TestTestAdapterPort_InvalidParity(t *testing.T) {
	t.Parallel()

	resp := testAdapterPort(AdapterTestRequest{
		PortPath:       "/dev/ttyUSB0",
		BaudRate:       115200,
		DataBits:       8,
		StopBits:       1,
		Parity:         "X",
		TimeoutSeconds: 1,
	})

	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid parity: X", resp.Error)
	assert.Contains(t, resp.Suggestion, "Parity must be")
}

func TestGetSuggestionForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		errText string
		want    string
	}{
		{
			name:    "missing device",
			errText: "open /dev/ttyUSB9: no such file or directory",
			want:    "Check that the device is connected and appears in /dev/",
		},
		{
			name:    "permission denied",
			errText: "open /dev/ttyUSB0: permission denied",
			want:    "Run: sudo usermod -a -G dialout $USER && sudo reboot",
		},
		{
			name:    "port busy",
			errText: "open /dev/ttyUSB0: resource busy",
			want:    "Another process may be using the port. Stop other applications using this serial port.",
		},
		{
			name:    "anything else",
			errText: "the moon is in the wrong phase",
			want:    "Check device connection and permissions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, getSuggestionForError(errors.New(tt.errText)))
		})
	}
}

func TestGetFriendlyName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		portPath string
		want     string
	}{
		{"/dev/ttyUSB0", "USB Serial Adapter (ttyUSB0)"},
		{"/dev/ttyACM1", "USB CDC Device (ttyACM1)"},
		{"/dev/ttyAMA0", "Raspberry Pi Serial (ttyAMA0)"},
		{"/dev/ttyS0", "ttyS0"},
	}

	for _, tt := range tests {
		t.Run(tt.portPath, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, getFriendlyName(tt.portPath))
		})
	}
}
