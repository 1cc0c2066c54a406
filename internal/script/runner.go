package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ghostclick/internal/core"
	"ghostclick/internal/window"
)

// Engine is the one-shot click surface the runner drives; the scheduler
// implements it.
type Engine interface {
	ClickOnce(ctx context.Context, sel window.Selector, template string, action core.ActionKind, threshold float64) (float64, error)
	WaitFor(ctx context.Context, sel window.Selector, template string, threshold float64) (float64, error)
}

// StepResult records one executed action.
type StepResult struct {
	Index  int     `json:"index"`
	Type   string  `json:"type"`
	Status string  `json:"status"`
	Score  float64 `json:"score,omitempty"`
}

// Result is the outcome of a script run. Steps holds every action that
// executed, including the failed one when the run aborted.
type Result struct {
	Script string       `json:"script"`
	Steps  []StepResult `json:"steps"`
}

// Runner executes scripts against an engine.
type Runner struct {
	engine Engine
	logger *slog.Logger
}

// NewRunner returns a script runner.
func NewRunner(engine Engine, logger *slog.Logger) *Runner {
	return &Runner{engine: engine, logger: logger}
}

// Run executes the script top to bottom. A failed required step aborts
// the run and returns an error alongside the partial result.
func (r *Runner) Run(ctx context.Context, sc *Script) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	result := &Result{Script: sc.Name}
	for i, action := range sc.Actions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		step := StepResult{Index: i, Type: action.Type}
		score, err := r.runAction(ctx, action)
		step.Score = score
		if err != nil {
			step.Status = err.Error()
			result.Steps = append(result.Steps, step)
			if action.IsRequired() {
				r.logger.Warn("script aborted", "script", sc.Name, "step", i, "error", err)
				return result, fmt.Errorf("script %s step %d (%s): %w", sc.Name, i, action.Type, err)
			}
			r.logger.Info("optional step failed", "script", sc.Name, "step", i, "error", err)
			continue
		}
		step.Status = "ok"
		result.Steps = append(result.Steps, step)
	}
	return result, nil
}

func (r *Runner) runAction(ctx context.Context, action Action) (float64, error) {
	switch action.Type {
	case TypeClick, TypeDoubleClick, TypeRightClick:
		return r.engine.ClickOnce(ctx, action.Selector(), action.Image,
			core.ActionKind(action.Type), action.Threshold)
	case TypeWait:
		timer := time.NewTimer(time.Duration(action.Seconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, nil
		}
	case TypeWaitFor:
		timeout := action.TimeoutSeconds
		if timeout <= 0 {
			timeout = DefaultWaitForTimeout
		}
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
		defer cancel()
		return r.engine.WaitFor(waitCtx, action.Selector(), action.Image, action.Threshold)
	default:
		return 0, fmt.Errorf("unknown action type %q", action.Type)
	}
}
