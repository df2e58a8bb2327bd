package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripreel/pkg/logging"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLine  string
		wantLevel string
	}{
		{
			name:      "SortsAndFilters",
			input:     `time=2026-01-18T06:50:46.074+01:00 level=INFO msg="Session: started" waypoints="3 " style=osm_bright id=5f0c2d1e-8b7a-4c1e-9d3f-2a6b8c9d0e1f`,
			wantLine:  "06:50:46 Session: started (style=osm_bright, waypoints=3)",
			wantLevel: "INFO",
		},
		{
			name:      "NoParams",
			input:     `time=2026-01-18T06:50:46Z level=WARN msg=Capture`,
			wantLine:  "06:50:46 Capture",
			wantLevel: "WARN",
		},
		{
			name:     "Unstructured",
			input:    "plain text",
			wantLine: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, level := formatLogLine(tt.input)
			assert.Equal(t, tt.wantLine, line)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func TestHandleLatestLog(t *testing.T) {
	_, _ = logging.GlobalLogCapture.Write([]byte(`time=2026-01-18T10:00:00Z level=INFO msg="Playback: done"` + "\n"))

	w := httptest.NewRecorder()
	handleLatestLog(w, httptest.NewRequest(http.MethodGet, "/api/log/latest", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	var body latestLog
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "10:00:00 Playback: done", body.Log)
	assert.Equal(t, "INFO", body.Level)
	assert.NotNil(t, body.Events)
}
