package platform

import (
	"image"
	"sync"

	"ghostclick/internal/vision"
)

// Fake is an in-memory Driver used by tests and by the scheduler's own
// package tests. Windows and frames are set by the test; clicks are
// recorded. All methods are safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	windows []Window
	frames  map[uintptr]*vision.Frame
	listErr error
	capErr  map[uintptr]error
	clicks  []FakeClick
}

// FakeClick is one recorded injection.
type FakeClick struct {
	Point image.Point
	Kind  ClickKind
}

// NewFake returns an empty fake driver.
func NewFake() *Fake {
	return &Fake{
		frames: make(map[uintptr]*vision.Frame),
		capErr: make(map[uintptr]error),
	}
}

// SetWindows replaces the window list.
func (f *Fake) SetWindows(wins ...Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append([]Window(nil), wins...)
}

// SetFrame sets the frame returned when capturing the given handle.
func (f *Fake) SetFrame(handle uintptr, frame *vision.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[handle] = frame
}

// SetListError makes ListWindows fail.
func (f *Fake) SetListError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// SetCaptureError makes Capture fail for the given handle.
func (f *Fake) SetCaptureError(handle uintptr, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capErr[handle] = err
}

// Clicks returns a copy of all recorded clicks.
func (f *Fake) Clicks() []FakeClick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeClick(nil), f.clicks...)
}

// ResetClicks clears the recorded clicks.
func (f *Fake) ResetClicks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = nil
}

func (f *Fake) ListWindows() ([]Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Window(nil), f.windows...), nil
}

func (f *Fake) Capture(win Window) (*vision.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.capErr[win.Handle]; err != nil {
		return nil, err
	}
	frame, ok := f.frames[win.Handle]
	if !ok {
		return nil, ErrCaptureFailed
	}
	return frame, nil
}

func (f *Fake) Click(p image.Point, kind ClickKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, FakeClick{Point: p, Kind: kind})
	return nil
}
