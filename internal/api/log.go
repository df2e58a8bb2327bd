package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"tripreel/pkg/logging"
)

// maxParamLen drops attribute values longer than this from the display line.
const maxParamLen = 20

var logAttr = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// recentEvents is how many event lines /api/log/latest returns.
const recentEvents = 5

type latestLog struct {
	Log    string   `json:"log"`
	Level  string   `json:"level"`
	Event  string   `json:"event"`
	Events []string `json:"events"`
}

// handleLatestLog returns the last server log line and the latest playback events.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	msg, level := formatLogLine(logging.GlobalLogCapture.Last())
	writeJSON(w, http.StatusOK, latestLog{
		Log:    msg,
		Level:  level,
		Event:  logging.GlobalEventCapture.Last(),
		Events: logging.GlobalEventCapture.Recent(recentEvents),
	})
}

// formatLogLine condenses a slog text line into "HH:MM:SS msg (k=v, ...)".
// The level is returned separately; long values are dropped.
func formatLogLine(raw string) (line, level string) {
	attrs := logAttr.FindAllStringSubmatch(raw, -1)
	if len(attrs) == 0 {
		return raw, ""
	}

	var msg, clock string
	var params []string
	for _, a := range attrs {
		key, val := a[1], a[2]
		if val == "" {
			val = a[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				clock = t.Format("15:04:05")
			}
		case "level":
			level = val
		case "msg":
			msg = val
		default:
			if len(val) <= maxParamLen {
				params = append(params, key+"="+val)
			}
		}
	}
	if msg == "" {
		return raw, level
	}

	sort.Strings(params)
	line = msg
	if clock != "" {
		line = clock + " " + msg
	}
	if len(params) > 0 {
		line = fmt.Sprintf("%s (%s)", line, strings.Join(params, ", "))
	}
	return line, level
}
