package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"tripreel/pkg/mapview"
	"tripreel/pkg/view"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	replyTimeout = 3 * time.Second
)

// ErrNoDisplay is returned by display commands when no viewer is connected.
var ErrNoDisplay = fmt.Errorf("%w: no viewer connected", view.ErrFullscreenUnavailable)

// Display commands sent to viewers.
const (
	cmdRequestFullscreen       = "request_fullscreen"
	cmdWebkitRequestFullscreen = "webkit_request_fullscreen"
	cmdExitFullscreen          = "exit_fullscreen"
	cmdScrollIntoView          = "scroll_into_view"
	cmdCloseVisible            = "close_visible"
)

// outMessage is sent to viewers.
type outMessage struct {
	Type     string            `json:"type"` // "snapshot" or "command"
	ID       uint64            `json:"id,omitempty"`
	Command  string            `json:"command,omitempty"`
	Visible  *bool             `json:"visible,omitempty"`
	Snapshot *mapview.Snapshot `json:"snapshot,omitempty"`
}

// inMessage is received from viewers: replies to commands and state reports.
type inMessage struct {
	Type       string `json:"type"` // "reply" or "state"
	ID         uint64 `json:"id"`
	OK         bool   `json:"ok"`
	Error      string `json:"error"`
	Fullscreen bool   `json:"fullscreen"`
}

type client struct {
	conn *ws.Conn
	send chan []byte
	done chan struct{}
}

// Hub streams map snapshots to websocket viewers and acts as their
// display: fullscreen requests are forwarded to the viewers, and the first
// reply decides the outcome.
type Hub struct {
	scene    *Scene
	interval time.Duration
	timeout  time.Duration
	upgrader ws.Upgrader

	mu         sync.Mutex
	clients    map[*client]struct{}
	pending    map[uint64]chan inMessage
	nextID     uint64
	fullscreen bool
	lastMap    *mapview.Map
	lastVer    uint64
}

// NewHub creates a hub publishing the scene's map every interval when it changed.
func NewHub(scene *Scene, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 40 * time.Millisecond
	}
	return &Hub{
		scene:    scene,
		interval: interval,
		timeout:  replyTimeout,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
		pending:  make(map[uint64]chan inMessage),
	}
}

var _ view.Display = (*Hub)(nil)

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run publishes snapshots until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publish()
		}
	}
}

// publish sends the current snapshot if the map changed since the last one.
func (h *Hub) publish() {
	m := h.scene.Current()
	if m == nil {
		return
	}
	ver := m.Version()

	h.mu.Lock()
	if m == h.lastMap && ver == h.lastVer {
		h.mu.Unlock()
		return
	}
	h.lastMap, h.lastVer = m, ver
	h.mu.Unlock()

	snap := m.Snapshot()
	h.broadcast(&outMessage{Type: "snapshot", Snapshot: &snap})
}

// ServeHTTP upgrades the connection and serves one viewer until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Hub: upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("Hub: viewer connected", "remote", r.RemoteAddr, "viewers", h.Clients())

	go h.writeLoop(c)

	if m := h.scene.Current(); m != nil {
		snap := m.Snapshot()
		h.sendTo(c, &outMessage{Type: "snapshot", Snapshot: &snap})
	}

	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.done)
	_ = conn.Close()
	slog.Info("Hub: viewer left", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn("Hub: SetWriteDeadline error", "error", err)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				slog.Warn("Hub: write error", "error", err)
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				slog.Debug("Hub: read error", "error", err)
			}
			return
		}

		var msg inMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Hub: ignoring malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case "reply":
			h.mu.Lock()
			ch, ok := h.pending[msg.ID]
			if ok {
				delete(h.pending, msg.ID)
			}
			h.mu.Unlock()
			if ok {
				ch <- msg
			}
		case "state":
			h.mu.Lock()
			h.fullscreen = msg.Fullscreen
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendTo(c *client, msg *outMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Hub: encode failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("Hub: viewer too slow, dropping message", "type", msg.Type)
	}
}

// broadcast sends msg to every viewer and returns how many there were.
func (h *Hub) broadcast(msg *outMessage) int {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.sendTo(c, msg)
	}
	return len(clients)
}

// command sends a display command and waits for the first reply.
func (h *Hub) command(name string) error {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	ch := make(chan inMessage, 1)
	h.pending[id] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	if h.broadcast(&outMessage{Type: "command", ID: id, Command: name}) == 0 {
		return ErrNoDisplay
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		if !reply.OK {
			if reply.Error == "" {
				reply.Error = "rejected"
			}
			return fmt.Errorf("%s: %w", name, errors.New(reply.Error))
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: no reply from viewer within %s", name, h.timeout)
	}
}

func (h *Hub) setFullscreen(on bool) {
	h.mu.Lock()
	h.fullscreen = on
	h.mu.Unlock()
}

// RequestFullscreen asks the viewers to enter fullscreen.
func (h *Hub) RequestFullscreen() error {
	if err := h.command(cmdRequestFullscreen); err != nil {
		return err
	}
	h.setFullscreen(true)
	return nil
}

// WebkitRequestFullscreen asks the viewers to use the prefixed fullscreen API.
func (h *Hub) WebkitRequestFullscreen() error {
	if err := h.command(cmdWebkitRequestFullscreen); err != nil {
		return err
	}
	h.setFullscreen(true)
	return nil
}

// ExitFullscreen asks the viewers to leave fullscreen.
func (h *Hub) ExitFullscreen() error {
	if err := h.command(cmdExitFullscreen); err != nil {
		return err
	}
	h.setFullscreen(false)
	return nil
}

// IsFullscreen reports the last known fullscreen state of the viewers.
func (h *Hub) IsFullscreen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fullscreen
}

// ScrollIntoView asks the viewers to bring the map into view. It does not
// wait for a reply.
func (h *Hub) ScrollIntoView() error {
	if h.broadcast(&outMessage{Type: "command", Command: cmdScrollIntoView}) == 0 {
		return ErrNoDisplay
	}
	return nil
}

// SetCloseVisible shows or hides the viewers' close control.
func (h *Hub) SetCloseVisible(visible bool) {
	h.broadcast(&outMessage{Type: "command", Command: cmdCloseVisible, Visible: &visible})
}
