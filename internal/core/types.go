package core

import (
	"fmt"

	"ghostclick/internal/window"
)

// ActionKind is the pointer gesture a task fires on a match.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionRightClick  ActionKind = "right_click"
)

// TargetKind discriminates the target variant.
type TargetKind string

const (
	// TargetSingle looks for one template and clicks it.
	TargetSingle TargetKind = "single"
	// TargetMultiOption waits until every option template is visible at
	// once (confirming the right prompt is showing), then clicks the
	// pre-selected option.
	TargetMultiOption TargetKind = "multi_option"
)

// Option is one labelled choice of a multi-option target.
type Option struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// Target is a tagged variant: exactly one of the Single/MultiOption field
// sets is populated, enforced by Validate.
type Target struct {
	Kind TargetKind `json:"kind"`

	// Single
	Template string `json:"template,omitempty"`

	// MultiOption
	Options  []Option `json:"options,omitempty"`
	Selected int      `json:"selected,omitempty"`
}

// Validate rejects invalid or mixed variants.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetSingle:
		if t.Template == "" {
			return fmt.Errorf("single target needs a template name")
		}
		if len(t.Options) > 0 {
			return fmt.Errorf("single target must not carry options")
		}
	case TargetMultiOption:
		if len(t.Options) == 0 {
			return fmt.Errorf("multi-option target needs at least one option")
		}
		if t.Template != "" {
			return fmt.Errorf("multi-option target must not carry a single template")
		}
		if t.Selected < 0 || t.Selected >= len(t.Options) {
			return fmt.Errorf("selected option %d out of range (0..%d)", t.Selected, len(t.Options)-1)
		}
		for i, opt := range t.Options {
			if opt.Template == "" {
				return fmt.Errorf("option %d has no template name", i)
			}
		}
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

// Task thresholds and defaults accepted by validation.
const (
	MinThreshold = 0.5
	MaxThreshold = 0.99

	DefaultThreshold       = 0.85
	DefaultIntervalSeconds = 5.0
)

// Task is one automation rule: find a template inside the windows a
// selector resolves to, click it. Only configuration lives here; runtime
// state (current status, click counter, cancellation) belongs to the
// scheduler and is never persisted.
type Task struct {
	ID              string          `json:"id"`
	Selector        window.Selector `json:"selector"`
	Target          Target          `json:"target"`
	Action          ActionKind      `json:"action"`
	Repeat          bool            `json:"repeat"`
	IntervalSeconds float64         `json:"interval_s"`
	Threshold       float64         `json:"threshold"`
	Enabled         bool            `json:"enabled"`
}

// Normalize fills documented defaults on optional fields: threshold 0.85,
// action "click", repeat false (the zero value). Multi-option targets
// always repeat; their point is to sit and wait for a prompt.
func (t *Task) Normalize() {
	if t.Threshold == 0 {
		t.Threshold = DefaultThreshold
	}
	if t.Action == "" {
		t.Action = ActionClick
	}
	if t.Target.Kind == "" {
		if len(t.Target.Options) > 0 {
			t.Target.Kind = TargetMultiOption
		} else {
			t.Target.Kind = TargetSingle
		}
	}
	if t.Target.Kind == TargetMultiOption {
		t.Repeat = true
	}
	if t.Repeat && t.IntervalSeconds == 0 {
		t.IntervalSeconds = DefaultIntervalSeconds
	}
}

// Validate checks the task configuration. Invalid tasks never enter the
// store: thresholds and intervals are checked at add/update time and
// never relaxed afterwards.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is empty")
	}
	if err := t.Selector.Validate(); err != nil {
		return fmt.Errorf("selector: %w", err)
	}
	if err := t.Target.Validate(); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	switch t.Action {
	case ActionClick, ActionDoubleClick, ActionRightClick:
	default:
		return fmt.Errorf("unknown action %q", t.Action)
	}
	if t.Threshold < MinThreshold || t.Threshold > MaxThreshold {
		return fmt.Errorf("threshold %.2f outside [%.2f, %.2f]", t.Threshold, MinThreshold, MaxThreshold)
	}
	if t.Repeat && t.IntervalSeconds <= 0 {
		return fmt.Errorf("repeating task needs a positive interval")
	}
	return nil
}

// Clone returns a deep copy, so callers can hand tasks across goroutines
// without sharing slices.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Selector.Index != nil {
		idx := *t.Selector.Index
		cp.Selector.Index = &idx
	}
	if len(t.Target.Options) > 0 {
		cp.Target.Options = append([]Option(nil), t.Target.Options...)
	}
	return &cp
}

// TaskState is the runtime-only view of a task, shown by UIs and the
// status endpoints.
type TaskState struct {
	TaskID  string `json:"task_id"`
	Running bool   `json:"running"`
	Status  string `json:"status"`
	Clicks  int    `json:"clicks"`
}
