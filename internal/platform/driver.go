// Package platform abstracts the native window, capture and input
// facilities behind a single capability interface. Everything above this
// package (resolver, scheduler, matcher, mapper) is platform-agnostic.
package platform

import (
	"errors"
	"image"

	"ghostclick/internal/vision"
)

// ErrUnsupported is returned by drivers on platforms without a native
// adapter, and by New on those platforms.
var ErrUnsupported = errors.New("platform not supported")

// ErrCaptureFailed wraps native capture failures (including denied screen
// recording permission). Transient: callers retry at the normal cadence.
var ErrCaptureFailed = errors.New("capture failed")

// ClickKind selects the synthesized pointer gesture.
type ClickKind string

const (
	ClickSingle ClickKind = "click"
	ClickDouble ClickKind = "double_click"
	ClickRight  ClickKind = "right_click"
)

// Window describes one top-level window at the moment it was listed.
// Descriptors are ephemeral: they are recomputed on every poll and never
// cached across ticks.
type Window struct {
	Handle uintptr `json:"handle"`
	Title  string  `json:"title"`
	// Process is the short name of the owning process, e.g. "Code.exe".
	Process string `json:"process"`
	// Bounds is the logical bounding rectangle in screen coordinates.
	// Secondary monitors may place it at negative origins.
	Bounds image.Rectangle `json:"bounds"`
	// Desktop identifies the virtual desktop / space the window lives
	// on; 0 when the platform cannot tell.
	Desktop   int  `json:"desktop"`
	Minimized bool `json:"minimized"`
}

// Driver is the platform capability surface.
//
// ListWindows returns every top-level window on every virtual desktop,
// minimized ones included (flagged); filtering is the resolver's job. It
// must be cheap enough to call on every poll tick.
//
// Capture returns the window's current contents as a grayscale frame
// regardless of occlusion by other windows, together with a freshly
// measured capture scale. The scale is never cached: monitors can carry
// different DPI factors and windows move between them.
//
// Click synthesizes a press/release pair at a logical screen point
// without raising any window to foreground focus. Transient cursor
// movement is acceptable.
type Driver interface {
	ListWindows() ([]Window, error)
	Capture(win Window) (*vision.Frame, error)
	Click(p image.Point, kind ClickKind) error
}
