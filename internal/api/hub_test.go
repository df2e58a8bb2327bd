package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripreel/pkg/mapview"
	"tripreel/pkg/timing"
	"tripreel/pkg/view"
)

func dialHub(t *testing.T, h *Hub) *ws.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readOut(t *testing.T, conn *ws.Conn) outMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg outMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// answer replies to every command with ok until the connection closes.
func answer(conn *ws.Conn, ok bool, seen chan<- string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg outMessage
		if json.Unmarshal(data, &msg) != nil || msg.Type != "command" {
			continue
		}
		seen <- msg.Command
		if msg.ID == 0 {
			continue
		}
		reply, _ := json.Marshal(inMessage{Type: "reply", ID: msg.ID, OK: ok, Error: "denied"})
		if conn.WriteMessage(ws.TextMessage, reply) != nil {
			return
		}
	}
}

func TestHub_StreamsSnapshots(t *testing.T) {
	scene := &Scene{}
	m := mapview.New(640, 480, "osm_bright")
	m.SetCamera(mapview.Camera{Center: orb.Point{0, 0}, Zoom: 3})
	scene.Set(m)

	h := NewHub(scene, 5*time.Millisecond)
	conn := dialHub(t, h)

	first := readOut(t, conn)
	require.Equal(t, "snapshot", first.Type)
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, 640, first.Snapshot.Width)
	assert.InDelta(t, 3, first.Snapshot.Camera.Zoom, 1e-9)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	m.SetCamera(mapview.Camera{Center: orb.Point{0, 0}, Zoom: 7})
	for i := 0; ; i++ {
		require.Less(t, i, 50, "zoom change never published")
		msg := readOut(t, conn)
		if msg.Type == "snapshot" && msg.Snapshot.Camera.Zoom == 7 {
			break
		}
	}
}

func TestHub_FullscreenRoundTrip(t *testing.T) {
	h := NewHub(&Scene{}, time.Hour)
	conn := dialHub(t, h)

	seen := make(chan string, 8)
	go answer(conn, true, seen)

	require.NoError(t, h.RequestFullscreen())
	assert.Equal(t, cmdRequestFullscreen, <-seen)
	assert.True(t, h.IsFullscreen())

	h.SetCloseVisible(true)
	assert.Equal(t, cmdCloseVisible, <-seen)

	require.NoError(t, h.ExitFullscreen())
	assert.Equal(t, cmdExitFullscreen, <-seen)
	assert.False(t, h.IsFullscreen())
}

func TestHub_RejectedAndViewFallback(t *testing.T) {
	h := NewHub(&Scene{}, time.Hour)
	conn := dialHub(t, h)

	seen := make(chan string, 8)
	go answer(conn, false, seen)

	err := h.RequestFullscreen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	<-seen

	m := mapview.New(320, 240, "osm_bright")
	vc := view.NewController(m, timing.NewVirtual(time.Now(), 25), h)
	defer vc.Close()

	assert.False(t, vc.EnterFullscreen())
	got := []string{<-seen, <-seen, <-seen}
	assert.Equal(t, []string{cmdRequestFullscreen, cmdWebkitRequestFullscreen, cmdScrollIntoView}, got)
	assert.False(t, m.Fullscreen())
}

func TestHub_NoViewers(t *testing.T) {
	h := NewHub(&Scene{}, time.Hour)
	assert.ErrorIs(t, h.RequestFullscreen(), ErrNoDisplay)
	assert.ErrorIs(t, h.RequestFullscreen(), view.ErrFullscreenUnavailable)
	assert.ErrorIs(t, h.ScrollIntoView(), ErrNoDisplay)
	assert.False(t, h.IsFullscreen())
}

func TestHub_StateReport(t *testing.T) {
	h := NewHub(&Scene{}, time.Hour)
	conn := dialHub(t, h)

	msg, _ := json.Marshal(inMessage{Type: "state", Fullscreen: true})
	require.NoError(t, conn.WriteMessage(ws.TextMessage, msg))
	require.Eventually(t, h.IsFullscreen, time.Second, 5*time.Millisecond)
}
