package core

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostclick/internal/bus"
	"ghostclick/internal/input"
	"ghostclick/internal/platform"
	"ghostclick/internal/vision"
	"ghostclick/internal/window"
)

type tplSource map[string]*vision.Template

func (m tplSource) Load(name string) (*vision.Template, error) {
	tpl, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return tpl, nil
}

type recordSink struct {
	mu      sync.Mutex
	ticks   int
	clicked int
}

func (r *recordSink) Record(_ context.Context, _ string, clicked bool, _ float64, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
	if clicked {
		r.clicked++
	}
	return nil
}

func (r *recordSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks, r.clicked
}

func newTestScheduler(fake *platform.Fake, templates tplSource, rec Recorder) (*Scheduler, *bus.Bus) {
	b := bus.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inj := input.NewInjector(fake, time.Millisecond)
	s := NewScheduler(window.NewResolver(fake), fake, templates, inj, b, logger,
		Options{Retry: 10 * time.Millisecond, Recorder: rec})
	return s, b
}

func gradientFrame(w, h int, scale float64) *vision.Frame {
	f := vision.NewFrame(w, h, scale)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Pix[y*w+x] = uint8((x*7 + y*13 + x*y) % 251)
		}
	}
	return f
}

func cropTemplate(t *testing.T, f *vision.Frame, r image.Rectangle, name string) *vision.Template {
	t.Helper()
	sub, err := f.SubFrame(r)
	require.NoError(t, err)
	return &vision.Template{Name: name, Frame: sub}
}

func checkerTemplate(name string) *vision.Template {
	f := vision.NewFrame(8, 8, 1)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if (x+y)%2 == 0 {
				f.Pix[y*8+x] = 255
			}
		}
	}
	return &vision.Template{Name: name, Frame: f}
}

func waitForEvent(t *testing.T, sub *bus.Subscription, match func(bus.Event) bool) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub.C:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("event not observed in time")
			return bus.Event{}
		}
	}
}

func TestOneShotTaskClicksOnce(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Untitled - Notepad", Process: "notepad.exe",
		Bounds: image.Rect(100, 200, 160, 240)}
	frame := gradientFrame(60, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{"save": cropTemplate(t, frame, image.Rect(20, 10, 28, 18), "save")}
	rec := &recordSink{}
	s, _ := newTestScheduler(fake, templates, rec)

	require.NoError(t, s.Add(&Task{
		ID:        "t1",
		Selector:  window.Selector{Title: "*Notepad"},
		Target:    Target{Template: "save"},
		Threshold: 0.9,
		Enabled:   true,
	}))
	s.Start()

	assert.Eventually(t, func() bool {
		st, err := s.State("t1")
		return err == nil && !st.Running
	}, 2*time.Second, 5*time.Millisecond)

	clicks := fake.Clicks()
	require.Len(t, clicks, 1)
	// Match center (24,14) in window-local pixels, offset by the window
	// origin.
	assert.Equal(t, image.Point{X: 124, Y: 214}, clicks[0].Point)
	assert.Equal(t, platform.ClickSingle, clicks[0].Kind)

	st, err := s.State("t1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Clicks)
	assert.Equal(t, "stopped", st.Status)

	ticks, clicked := rec.counts()
	assert.Equal(t, 1, ticks)
	assert.Equal(t, 1, clicked)
	s.Stop()
}

func TestClickPointMappedFromCaptureScale(t *testing.T) {
	fake := platform.NewFake()
	// Logical 60x40 window captured at scale 2: a 120x80 buffer.
	win := platform.Window{Handle: 1, Title: "HiDPI App", Bounds: image.Rect(100, 200, 160, 240)}
	frame := gradientFrame(120, 80, 2)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{"btn": cropTemplate(t, frame, image.Rect(40, 20, 56, 36), "btn")}
	s, _ := newTestScheduler(fake, templates, nil)

	require.NoError(t, s.Add(&Task{
		ID:        "t1",
		Selector:  window.Selector{Title: "HiDPI*"},
		Target:    Target{Template: "btn"},
		Threshold: 0.9,
		Enabled:   true,
	}))
	s.Start()

	assert.Eventually(t, func() bool { return len(fake.Clicks()) == 1 }, 2*time.Second, 5*time.Millisecond)
	// Pixel center (48,28) divided by the capture scale, then offset.
	assert.Equal(t, image.Point{X: 124, Y: 214}, fake.Clicks()[0].Point)
	s.Stop()
}

func TestWindowMissingPublishesStatus(t *testing.T) {
	fake := platform.NewFake()
	rec := &recordSink{}
	s, b := newTestScheduler(fake, tplSource{}, rec)
	sub := b.Subscribe(32)
	defer sub.Close()

	require.NoError(t, s.Add(&Task{
		ID:       "t1",
		Selector: window.Selector{Title: "Nowhere"},
		Target:   Target{Template: "save"},
		Enabled:  true,
	}))
	s.Start()

	e := waitForEvent(t, sub, func(e bus.Event) bool { return e.Message == "window missing" })
	assert.Equal(t, bus.KindStatus, e.Kind)

	assert.Eventually(t, func() bool {
		st, _ := s.State("t1")
		return !st.Running
	}, 2*time.Second, 5*time.Millisecond)

	ticks, _ := rec.counts()
	assert.Zero(t, ticks)
	assert.Empty(t, fake.Clicks())
	s.Stop()
}

func TestStopTaskHaltsClicking(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Game"}
	frame := gradientFrame(60, 40, 1)
	win.Bounds = image.Rect(0, 0, 60, 40)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{"btn": cropTemplate(t, frame, image.Rect(4, 6, 12, 14), "btn")}
	s, _ := newTestScheduler(fake, templates, nil)

	require.NoError(t, s.Add(&Task{
		ID:              "t1",
		Selector:        window.Selector{Title: "Game"},
		Target:          Target{Template: "btn"},
		Repeat:          true,
		IntervalSeconds: 0.01,
		Enabled:         true,
	}))
	s.Start()

	assert.Eventually(t, func() bool { return len(fake.Clicks()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.StopTask("t1"))

	n := len(fake.Clicks())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(fake.Clicks()))

	st, err := s.State("t1")
	require.NoError(t, err)
	assert.False(t, st.Running)
	s.Stop()
}

func TestMultiOptionWaitsForAllThenClicksSelected(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Installer", Bounds: image.Rect(0, 0, 80, 40)}
	full := gradientFrame(80, 40, 1)
	blank := vision.NewFrame(80, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, blank)

	templates := tplSource{
		"btn_yes": cropTemplate(t, full, image.Rect(10, 5, 18, 13), "btn_yes"),
		"btn_no":  cropTemplate(t, full, image.Rect(50, 20, 58, 28), "btn_no"),
	}
	s, b := newTestScheduler(fake, templates, nil)
	sub := b.Subscribe(64)
	defer sub.Close()

	require.NoError(t, s.Add(&Task{
		ID:       "t1",
		Selector: window.Selector{Title: "Installer"},
		Target: Target{
			Options: []Option{
				{Name: "yes", Template: "btn_yes"},
				{Name: "no", Template: "btn_no"},
			},
			Selected: 1,
		},
		IntervalSeconds: 0.01,
		Threshold:       0.9,
		Enabled:         true,
	}))
	s.Start()

	waitForEvent(t, sub, func(e bus.Event) bool { return e.Message == "waiting 0/2 options" })
	assert.Empty(t, fake.Clicks())

	// The prompt appears: both options become visible at once.
	fake.SetFrame(1, full)
	assert.Eventually(t, func() bool { return len(fake.Clicks()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, image.Point{X: 54, Y: 24}, fake.Clicks()[0].Point)
	s.Stop()
}

func TestRemoveStopsWorkerAndForgetsTask(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Game", Bounds: image.Rect(0, 0, 60, 40)}
	frame := gradientFrame(60, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{"btn": cropTemplate(t, frame, image.Rect(4, 6, 12, 14), "btn")}
	s, _ := newTestScheduler(fake, templates, nil)

	require.NoError(t, s.Add(&Task{
		ID:              "t1",
		Selector:        window.Selector{Title: "Game"},
		Target:          Target{Template: "btn"},
		Repeat:          true,
		IntervalSeconds: 0.01,
		Enabled:         true,
	}))
	s.Start()
	assert.Eventually(t, func() bool { return len(fake.Clicks()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Remove("t1"))
	n := len(fake.Clicks())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(fake.Clicks()))

	_, err := s.State("t1")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Empty(t, s.List())
	s.Stop()
}

func TestTaskTableOperations(t *testing.T) {
	s, _ := newTestScheduler(platform.NewFake(), tplSource{}, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Add(&Task{
			ID:       id,
			Selector: window.Selector{Title: id},
			Target:   Target{Template: "x"},
		}))
	}

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})

	// Listed tasks are copies; mutating them does not touch the table.
	list[0].Threshold = 0.99
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, got.Threshold)

	require.NoError(t, s.Remove("b"))
	list = s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[1].ID)

	assert.ErrorIs(t, s.Update(&Task{ID: "nope", Selector: window.Selector{Title: "x"},
		Target: Target{Template: "x"}}), ErrTaskNotFound)
	assert.Error(t, s.Add(&Task{ID: "a", Selector: window.Selector{Title: "a"},
		Target: Target{Template: "x"}}))
}

func TestStartTaskRejectsDisabledAndUnknown(t *testing.T) {
	s, _ := newTestScheduler(platform.NewFake(), tplSource{}, nil)
	require.NoError(t, s.Add(&Task{
		ID:       "t1",
		Selector: window.Selector{Title: "App"},
		Target:   Target{Template: "x"},
		Enabled:  false,
	}))

	err := s.StartTask("t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
	assert.ErrorIs(t, s.StartTask("ghost"), ErrTaskNotFound)
	assert.ErrorIs(t, s.StopTask("ghost"), ErrTaskNotFound)
}

func TestClickOnce(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Editor", Bounds: image.Rect(10, 20, 70, 60)}
	frame := gradientFrame(60, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{
		"ok":    cropTemplate(t, frame, image.Rect(30, 12, 38, 20), "ok"),
		"wrong": checkerTemplate("wrong"),
	}
	s, _ := newTestScheduler(fake, templates, nil)
	ctx := context.Background()

	score, err := s.ClickOnce(ctx, window.Selector{Title: "Editor"}, "ok", ActionRightClick, 0.9)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.99)
	clicks := fake.Clicks()
	require.Len(t, clicks, 1)
	assert.Equal(t, image.Point{X: 44, Y: 36}, clicks[0].Point)
	assert.Equal(t, platform.ClickRight, clicks[0].Kind)

	fake.ResetClicks()
	_, err = s.ClickOnce(ctx, window.Selector{Title: "Editor"}, "wrong", ActionClick, 0.9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no match")
	assert.Empty(t, fake.Clicks())

	_, err = s.ClickOnce(ctx, window.Selector{Title: "Absent"}, "ok", ActionClick, 0.9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window missing")
}

func TestWaitFor(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Editor", Bounds: image.Rect(0, 0, 60, 40)}
	frame := gradientFrame(60, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{
		"ok":    cropTemplate(t, frame, image.Rect(8, 8, 16, 16), "ok"),
		"wrong": checkerTemplate("wrong"),
	}
	s, _ := newTestScheduler(fake, templates, nil)

	score, err := s.WaitFor(context.Background(), window.Selector{Title: "Editor"}, "ok", 0.9)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.99)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.WaitFor(ctx, window.Selector{Title: "Editor"}, "wrong", 0.9)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCaptureRegion(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Editor", Bounds: image.Rect(0, 0, 60, 40)}
	frame := gradientFrame(120, 80, 2)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	s, _ := newTestScheduler(fake, tplSource{}, nil)

	sub, err := s.CaptureRegion(context.Background(), window.Selector{Title: "Editor"},
		image.Rect(5, 2, 13, 10))
	require.NoError(t, err)
	// Logical 8x8 region comes back as a 16x16 buffer at scale 2.
	assert.Equal(t, 16, sub.Width)
	assert.Equal(t, 16, sub.Height)
	assert.Equal(t, 2.0, sub.Scale)
	assert.Equal(t, frame.At(10, 4), sub.At(0, 0))

	_, err = s.CaptureRegion(context.Background(), window.Selector{Title: "Editor"},
		image.Rect(0, 0, 500, 500))
	assert.Error(t, err)
}

func TestReplaceSwapsTaskTable(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Game", Bounds: image.Rect(0, 0, 60, 40)}
	frame := gradientFrame(60, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{"btn": cropTemplate(t, frame, image.Rect(4, 6, 12, 14), "btn")}
	s, _ := newTestScheduler(fake, templates, nil)

	require.NoError(t, s.Add(&Task{
		ID:              "old",
		Selector:        window.Selector{Title: "Game"},
		Target:          Target{Template: "btn"},
		Repeat:          true,
		IntervalSeconds: 0.01,
		Enabled:         true,
	}))
	s.Start()
	assert.Eventually(t, func() bool { return len(fake.Clicks()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Replace([]*Task{{
		ID:       "new",
		Selector: window.Selector{Title: "Other"},
		Target:   Target{Template: "btn"},
		Enabled:  false,
	}}))

	_, err := s.State("old")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)

	// The old worker is gone; nothing keeps clicking.
	n := len(fake.Clicks())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(fake.Clicks()))
	s.Stop()
}

func TestReplaceRejectsDuplicateIDsKeepingTable(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Game", Bounds: image.Rect(0, 0, 60, 40)}
	frame := gradientFrame(60, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{"btn": cropTemplate(t, frame, image.Rect(4, 6, 12, 14), "btn")}
	s, _ := newTestScheduler(fake, templates, nil)

	require.NoError(t, s.Add(&Task{
		ID:              "live",
		Selector:        window.Selector{Title: "Game"},
		Target:          Target{Template: "btn"},
		Repeat:          true,
		IntervalSeconds: 0.01,
		Enabled:         true,
	}))
	s.Start()
	assert.Eventually(t, func() bool { return len(fake.Clicks()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	dup := func() *Task {
		return &Task{ID: "dup", Selector: window.Selector{Title: "Other"},
			Target: Target{Template: "btn"}, Enabled: true}
	}
	err := s.Replace([]*Task{dup(), dup()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task id")

	// The rejected swap must not have touched the table or its worker.
	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "live", list[0].ID)
	st, err := s.State("live")
	require.NoError(t, err)
	assert.True(t, st.Running)
	before := len(fake.Clicks())
	assert.Eventually(t, func() bool { return len(fake.Clicks()) > before }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestMutationsDoNotDisturbRunningWorkers(t *testing.T) {
	fake := platform.NewFake()
	win := platform.Window{Handle: 1, Title: "Game", Bounds: image.Rect(0, 0, 60, 40)}
	frame := gradientFrame(60, 40, 1)
	fake.SetWindows(win)
	fake.SetFrame(1, frame)

	templates := tplSource{"btn": cropTemplate(t, frame, image.Rect(4, 6, 12, 14), "btn")}
	s, _ := newTestScheduler(fake, templates, nil)

	for _, id := range []string{"keep1", "keep2", "keep3"} {
		require.NoError(t, s.Add(&Task{
			ID:              id,
			Selector:        window.Selector{Title: "Game"},
			Target:          Target{Template: "btn"},
			Repeat:          true,
			IntervalSeconds: 0.005,
			Enabled:         true,
		}))
	}
	s.Start()
	assert.Eventually(t, func() bool { return len(fake.Clicks()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	// Churn the table from three sides while the keep* workers tick.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("churn%d", i)
			assert.NoError(t, s.Add(&Task{
				ID:              id,
				Selector:        window.Selector{Title: "Nowhere"},
				Target:          Target{Template: "btn"},
				Repeat:          true,
				IntervalSeconds: 0.005,
				Enabled:         true,
			}))
			assert.NoError(t, s.Remove(id))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			threshold := 0.85
			if i%2 == 0 {
				threshold = 0.9
			}
			assert.NoError(t, s.Update(&Task{
				ID:              "keep2",
				Selector:        window.Selector{Title: "Game"},
				Target:          Target{Template: "btn"},
				Repeat:          true,
				IntervalSeconds: 0.005,
				Threshold:       threshold,
				Enabled:         true,
			}))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, _ = s.Get("keep1")
			_ = s.List()
			_ = s.States()
		}
	}()
	wg.Wait()

	list := s.List()
	require.Len(t, list, 3)
	for _, id := range []string{"keep1", "keep2", "keep3"} {
		st, err := s.State(id)
		require.NoError(t, err)
		assert.True(t, st.Running, id)
	}

	// Survivors keep clicking after the churn settles.
	before := len(fake.Clicks())
	assert.Eventually(t, func() bool { return len(fake.Clicks()) > before+3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestStatusStringsCarryPercentages(t *testing.T) {
	assert.Equal(t, "62%", percent(0.62))
	assert.Equal(t, "91%", percent(0.905))
	assert.True(t, strings.HasPrefix(fmt.Sprintf("no match %s", percent(0.4)), "no match 40%"))
}
