package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripreel/pkg/logging"
	"tripreel/pkg/model"
	"tripreel/pkg/playback"
	"tripreel/pkg/tiles"
)

// Player runs one playback.
type Player interface {
	Play(ctx context.Context, waypoints []model.Waypoint, opts playback.Options) error
	Status() playback.Status
	OnState(fn func(playback.Status))
}

// Factory builds the player of a new session. release runs once the
// session has ended.
type Factory func(id string, style tiles.Style) (p Player, release func(), err error)

// SessionStatus describes the current or last session.
type SessionStatus struct {
	ID        string          `json:"id"`
	Style     tiles.Style     `json:"style"`
	Running   bool            `json:"running"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Playback  playback.Status `json:"playback"`
}

// Manager owns at most one running playback session. Starting a new one
// cancels the previous session first.
type Manager struct {
	factory      Factory
	defaultStyle tiles.Style

	startMu sync.Mutex

	mu        sync.RWMutex
	id        string
	style     tiles.Style
	player    Player
	cancel    context.CancelFunc
	done      chan struct{}
	waypoints []model.Waypoint
	events    []model.PlaybackEvent
	err       error
	startedAt time.Time
	endedAt   time.Time
}

// NewManager creates a session manager. style is used when Start gets none.
func NewManager(factory Factory, style tiles.Style) *Manager {
	return &Manager{factory: factory, defaultStyle: style}
}

// Start validates the itinerary and plays it in the background. The
// session outlives ctx; use Cancel to stop it.
func (m *Manager) Start(ctx context.Context, waypoints []model.Waypoint, style string, opts playback.Options) (string, error) {
	if len(waypoints) == 0 {
		return "", playback.ErrNoWaypoints
	}
	if err := model.ValidateWaypoints(waypoints); err != nil {
		return "", err
	}
	st := m.defaultStyle
	if style != "" {
		parsed, err := tiles.ParseStyle(style)
		if err != nil {
			return "", err
		}
		st = parsed
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	if err := m.Stop(); err != nil {
		slog.Debug("Session: previous session ended with error", "error", err)
	}

	id := uuid.NewString()
	player, release, err := m.factory(id, st)
	if err != nil {
		return "", fmt.Errorf("failed to prepare session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	wps := append([]model.Waypoint(nil), waypoints...)

	m.mu.Lock()
	m.id = id
	m.style = st
	m.player = player
	m.cancel = cancel
	m.done = done
	m.waypoints = wps
	m.events = nil
	m.err = nil
	m.startedAt = time.Now()
	m.endedAt = time.Time{}
	m.recordLocked(model.EventStarted, "Playback started",
		fmt.Sprintf("%d waypoints, style %s", len(wps), st))
	m.mu.Unlock()

	player.OnState(func(s playback.Status) {
		if s.State != playback.AnimatingSegment || s.Segment+1 >= len(wps) {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.id != id {
			return
		}
		from, to := wps[s.Segment], wps[s.Segment+1]
		m.recordLocked(model.EventSegment,
			fmt.Sprintf("Segment %d/%d", s.Segment+1, s.Segments),
			fmt.Sprintf("%s to %s", from.Label(), to.Label()))
	})

	slog.Info("Session: started", "id", id, "waypoints", len(wps), "style", st)
	go m.run(runCtx, cancel, done, id, player, release, wps, opts)
	return id, nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, id string,
	player Player, release func(), wps []model.Waypoint, opts playback.Options) {
	defer close(done)

	err := player.Play(ctx, wps, opts)
	cancel()
	if release != nil {
		release()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id != id {
		return
	}
	m.err = err
	m.endedAt = time.Now()
	m.cancel = nil

	switch {
	case err == nil:
		m.recordLocked(model.EventFinished, "Playback finished", "")
		slog.Info("Session: finished", "id", id, "elapsed", m.endedAt.Sub(m.startedAt))
	case errors.Is(err, context.Canceled):
		m.recordLocked(model.EventCancelled, "Playback cancelled", "")
		slog.Info("Session: cancelled", "id", id)
	default:
		m.recordLocked(model.EventError, "Playback failed", err.Error())
		slog.Error("Session: failed", "id", id, "error", err)
	}
}

// recordLocked appends an event and writes it to the event log. m.mu must be held.
func (m *Manager) recordLocked(typ, title, summary string) {
	ev := model.PlaybackEvent{
		Timestamp: time.Now(),
		SessionID: m.id,
		Type:      typ,
		Title:     title,
		Summary:   summary,
	}
	m.events = append(m.events, ev)
	logging.LogEvent(&ev)
}

// Cancel stops the running session. It reports whether one was running.
func (m *Manager) Cancel() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cancel == nil {
		return false
	}
	m.cancel()
	return true
}

// Stop cancels the running session and waits for it to tear down. It
// returns the session's error unless that is the cancellation itself.
func (m *Manager) Stop() error {
	if !m.Cancel() {
		return nil
	}
	if err := m.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Wait blocks until the current session ends and returns its error.
func (m *Manager) Wait() error {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	if done == nil {
		return nil
	}
	<-done

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Status returns the state of the current or last session.
func (m *Manager) Status() SessionStatus {
	m.mu.RLock()
	s := SessionStatus{
		ID:        m.id,
		Style:     m.style,
		Running:   m.cancel != nil,
		StartedAt: m.startedAt,
		EndedAt:   m.endedAt,
	}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	player := m.player
	m.mu.RUnlock()

	if player != nil {
		s.Playback = player.Status()
	}
	return s
}

// Events returns the history of the current or last session.
func (m *Manager) Events() []model.PlaybackEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.PlaybackEvent(nil), m.events...)
}

// Waypoints returns the itinerary of the current or last session.
func (m *Manager) Waypoints() []model.Waypoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Waypoint(nil), m.waypoints...)
}
