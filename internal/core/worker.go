package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"ghostclick/internal/bus"
	"ghostclick/internal/platform"
	"ghostclick/internal/vision"
)

// tickOutcome is the result of one scheduling tick.
type tickOutcome struct {
	clicked       bool
	score         float64
	status        string
	kind          bus.EventKind
	windowMissing bool
}

// runWorker is the per-task loop. One goroutine per running task; the
// context carries cancellation from Stop/StopTask/Remove/Update.
func (s *Scheduler) runWorker(ctx context.Context, task *Task, done chan struct{}) {
	defer close(done)
	defer s.workerExited(task.ID)

	for ctx.Err() == nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}
		started := time.Now()
		out := s.tick(ctx, task)
		elapsed := time.Since(started)
		s.sem.Release(1)

		if ctx.Err() != nil {
			break
		}

		s.setStatus(task.ID, out.status)
		event := bus.Event{TaskID: task.ID, Kind: out.kind, Message: out.status, Score: out.score}
		if out.clicked {
			event.Clicks = s.recordClick(task.ID)
		}
		s.bus.Publish(event)
		s.logger.Debug("tick", "task_id", task.ID, "status", out.status, "elapsed", elapsed)

		// Window-missing ticks never found anything to probe; recording
		// them would skew the hit rate.
		if s.recorder != nil && !out.windowMissing {
			if err := s.recorder.Record(ctx, task.ID, out.clicked, out.score, elapsed); err != nil {
				s.logger.Warn("stats record failed", "task_id", task.ID, "error", err)
			}
		}

		if !task.Repeat {
			break
		}

		wait := time.Duration(task.IntervalSeconds * float64(time.Second))
		if out.windowMissing {
			wait = s.retry
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	s.setStatus(task.ID, "stopped")
	s.bus.Publish(bus.Event{TaskID: task.ID, Kind: bus.KindLog, Message: "stopped"})
}

// tick resolves the task's windows and probes each until one yields a
// click. Every failure mode degrades to a status string; nothing in the
// tick path can take the worker down.
func (s *Scheduler) tick(ctx context.Context, task *Task) tickOutcome {
	wins, err := s.resolver.Resolve(task.Selector)
	if err != nil {
		return tickOutcome{status: fmt.Sprintf("resolve failed: %v", err), kind: bus.KindError, windowMissing: true}
	}
	if len(wins) == 0 {
		return tickOutcome{status: "window missing", kind: bus.KindStatus, windowMissing: true}
	}

	// Probe every matched window; the first click wins. Without a click
	// the best-scoring window's status is reported, falling back to the
	// last error when every probe failed outright.
	best := tickOutcome{score: -1}
	var probeErr *tickOutcome
	for _, win := range wins {
		if ctx.Err() != nil {
			return tickOutcome{status: "stopped", kind: bus.KindLog}
		}
		res := s.probeWindow(ctx, task, win)
		if res.clicked {
			return res
		}
		if res.kind == bus.KindError {
			probeErr = &res
			continue
		}
		if res.score > best.score {
			best = res
		}
	}
	if best.score >= 0 {
		return best
	}
	if probeErr != nil {
		return *probeErr
	}
	return tickOutcome{status: "no match 0%", kind: bus.KindStatus}
}

// probeResult carries one window's probe outcome back to tick.
func (s *Scheduler) probeWindow(ctx context.Context, task *Task, win platform.Window) tickOutcome {
	frame, err := s.driver.Capture(win)
	if err != nil {
		return tickOutcome{status: fmt.Sprintf("capture failed: %v", err), kind: bus.KindError}
	}

	switch task.Target.Kind {
	case TargetMultiOption:
		return s.probeMultiOption(ctx, task, win, frame)
	default:
		return s.probeSingle(ctx, task, win, frame, task.Target.Template)
	}
}

func (s *Scheduler) probeSingle(ctx context.Context, task *Task, win platform.Window, frame *vision.Frame, name string) tickOutcome {
	tpl, err := s.templates.Load(name)
	if err != nil {
		return tickOutcome{status: fmt.Sprintf("template missing: %s", name), kind: bus.KindError}
	}
	m, err := vision.MatchTemplate(frame, tpl)
	if err != nil {
		// Template does not fit this window; a smaller sibling window
		// may still match.
		return tickOutcome{status: fmt.Sprintf("no fit: %s", name), kind: bus.KindStatus}
	}
	if m.Score < task.Threshold {
		return tickOutcome{score: m.Score, status: fmt.Sprintf("no match %s", percent(m.Score)), kind: bus.KindStatus}
	}
	return s.clickMatch(ctx, task, win, frame, m)
}

// probeMultiOption fires only when every option template is visible in
// the same capture, then clicks the pre-selected one. Seeing all options
// at once is what confirms the right prompt is on screen.
func (s *Scheduler) probeMultiOption(ctx context.Context, task *Task, win platform.Window, frame *vision.Frame) tickOutcome {
	var selected vision.Match
	visible := 0
	worst := 1.0
	for i, opt := range task.Target.Options {
		tpl, err := s.templates.Load(opt.Template)
		if err != nil {
			return tickOutcome{status: fmt.Sprintf("template missing: %s", opt.Template), kind: bus.KindError}
		}
		m, err := vision.MatchTemplate(frame, tpl)
		if err != nil {
			return tickOutcome{status: fmt.Sprintf("no fit: %s", opt.Template), kind: bus.KindStatus}
		}
		if m.Score < worst {
			worst = m.Score
		}
		if m.Score >= task.Threshold {
			visible++
		}
		if i == task.Target.Selected {
			selected = m
		}
	}
	if visible < len(task.Target.Options) {
		return tickOutcome{
			score:  worst,
			status: fmt.Sprintf("waiting %d/%d options", visible, len(task.Target.Options)),
			kind:   bus.KindStatus,
		}
	}
	return s.clickMatch(ctx, task, win, frame, selected)
}

// clickMatch maps the match center from captured pixels to logical screen
// coordinates and injects the task's action. The scale used for the
// mapping comes from the same capture the match was found in.
func (s *Scheduler) clickMatch(ctx context.Context, task *Task, win platform.Window, frame *vision.Frame, m vision.Match) tickOutcome {
	local := vision.PixelToLogical(m.Center(), frame.Scale)
	screen := win.Bounds.Min.Add(local)
	if err := s.injector.Click(ctx, screen, platform.ClickKind(task.Action)); err != nil {
		return tickOutcome{score: m.Score, status: fmt.Sprintf("click failed: %v", err), kind: bus.KindError}
	}
	s.logger.Info("clicked", "task_id", task.ID, "x", screen.X, "y", screen.Y, "score", m.Score, "window", win.Title)
	return tickOutcome{
		clicked: true,
		score:   m.Score,
		status:  fmt.Sprintf("clicked %s", percent(m.Score)),
		kind:    bus.KindClicked,
	}
}

func percent(score float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(score*100)))
}
