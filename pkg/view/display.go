package view

import (
	"errors"
)

// ErrFullscreenUnavailable is returned by displays that cannot go fullscreen.
var ErrFullscreenUnavailable = errors.New("fullscreen unavailable")

// Display is the surface the map is shown on. Browser clients implement
// it over the websocket; headless renders use HeadlessDisplay.
type Display interface {
	RequestFullscreen() error
	// WebkitRequestFullscreen is the vendor-prefixed fallback request.
	WebkitRequestFullscreen() error
	ExitFullscreen() error
	IsFullscreen() bool
	ScrollIntoView() error
	SetCloseVisible(visible bool)
}

// HeadlessDisplay never supports fullscreen.
type HeadlessDisplay struct{}

func (HeadlessDisplay) RequestFullscreen() error       { return ErrFullscreenUnavailable }
func (HeadlessDisplay) WebkitRequestFullscreen() error { return ErrFullscreenUnavailable }
func (HeadlessDisplay) ExitFullscreen() error          { return ErrFullscreenUnavailable }
func (HeadlessDisplay) IsFullscreen() bool             { return false }
func (HeadlessDisplay) ScrollIntoView() error          { return nil }
func (HeadlessDisplay) SetCloseVisible(bool)           {}
