package core

import (
	"context"
	"fmt"
	"image"
	"time"

	"ghostclick/internal/platform"
	"ghostclick/internal/vision"
	"ghostclick/internal/window"
)

// waitForPoll is the probe cadence of WaitFor.
const waitForPoll = 500 * time.Millisecond

// ClickOnce performs a single resolve/capture/match/click cycle outside
// any task, for the ad-hoc click surface and for scripts. It returns the
// best score seen; the click fires on the first window whose match
// reaches the threshold.
func (s *Scheduler) ClickOnce(ctx context.Context, sel window.Selector, template string, action ActionKind, threshold float64) (float64, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if action == "" {
		action = ActionClick
	}
	tpl, err := s.templates.Load(template)
	if err != nil {
		return 0, fmt.Errorf("template %s: %w", template, err)
	}

	wins, err := s.resolver.Resolve(sel)
	if err != nil {
		return 0, err
	}
	if len(wins) == 0 {
		return 0, fmt.Errorf("window missing: %s", sel)
	}

	best := 0.0
	for _, win := range wins {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		frame, err := s.driver.Capture(win)
		if err != nil {
			continue
		}
		m, err := vision.MatchTemplate(frame, tpl)
		if err != nil {
			continue
		}
		if m.Score > best {
			best = m.Score
		}
		if m.Score < threshold {
			continue
		}
		local := vision.PixelToLogical(m.Center(), frame.Scale)
		screen := win.Bounds.Min.Add(local)
		if err := s.injector.Click(ctx, screen, platform.ClickKind(action)); err != nil {
			return m.Score, err
		}
		return m.Score, nil
	}
	return best, fmt.Errorf("no match %s for %s", percent(best), template)
}

// WaitFor polls until the template is visible in one of the selector's
// windows, returning the score that cleared the threshold. It does not
// click. The context deadline is the timeout.
func (s *Scheduler) WaitFor(ctx context.Context, sel window.Selector, template string, threshold float64) (float64, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	tpl, err := s.templates.Load(template)
	if err != nil {
		return 0, fmt.Errorf("template %s: %w", template, err)
	}

	best := 0.0
	for {
		wins, err := s.resolver.Resolve(sel)
		if err == nil {
			for _, win := range wins {
				frame, err := s.driver.Capture(win)
				if err != nil {
					continue
				}
				m, err := vision.MatchTemplate(frame, tpl)
				if err != nil {
					continue
				}
				if m.Score > best {
					best = m.Score
				}
				if m.Score >= threshold {
					return m.Score, nil
				}
			}
		}

		timer := time.NewTimer(waitForPoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return best, fmt.Errorf("wait for %s: %w (best %s)", template, ctx.Err(), percent(best))
		case <-timer.C:
		}
	}
}

// CaptureRegion grabs a region of the selector's first window, given in
// logical window-relative coordinates, and returns the cropped frame.
// Used to cut new templates out of live windows.
func (s *Scheduler) CaptureRegion(ctx context.Context, sel window.Selector, region image.Rectangle) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wins, err := s.resolver.Resolve(sel)
	if err != nil {
		return nil, err
	}
	if len(wins) == 0 {
		return nil, fmt.Errorf("window missing: %s", sel)
	}
	frame, err := s.driver.Capture(wins[0])
	if err != nil {
		return nil, err
	}
	px := image.Rectangle{
		Min: vision.LogicalToPixel(region.Min, frame.Scale),
		Max: vision.LogicalToPixel(region.Max, frame.Scale),
	}
	return frame.SubFrame(px)
}

// Windows lists all candidate windows, for the window-picker surfaces.
func (s *Scheduler) Windows() ([]platform.Window, error) {
	return s.driver.ListWindows()
}
