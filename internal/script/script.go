// Package script runs JSON automation scripts: a named sequence of
// click, wait and wait_for actions executed top to bottom. A required
// action that fails aborts the script; optional ones are recorded and
// skipped over.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ghostclick/internal/window"
)

// ErrScriptMissing is returned for unknown script names.
var ErrScriptMissing = errors.New("script missing")

// Action types.
const (
	TypeClick       = "click"
	TypeDoubleClick = "double_click"
	TypeRightClick  = "right_click"
	TypeWait        = "wait"
	TypeWaitFor     = "wait_for"
)

// DefaultWaitForTimeout bounds wait_for actions that specify none.
const DefaultWaitForTimeout = 30.0

// Action is one script step. Which fields apply depends on Type.
type Action struct {
	Type string `json:"type"`

	// click / double_click / right_click / wait_for
	Image     string  `json:"image,omitempty"`
	Window    string  `json:"window,omitempty"`
	Process   string  `json:"process,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	// Required defaults to true: a failed step aborts the script unless
	// the file says otherwise.
	Required *bool `json:"required,omitempty"`

	// wait
	Seconds float64 `json:"seconds,omitempty"`

	// wait_for
	TimeoutSeconds float64 `json:"timeout,omitempty"`
}

// IsRequired applies the default.
func (a Action) IsRequired() bool {
	return a.Required == nil || *a.Required
}

// Selector builds the window selector for this step.
func (a Action) Selector() window.Selector {
	return window.Selector{Title: a.Window, Process: a.Process}
}

// Validate rejects steps the runner could not execute.
func (a Action) Validate() error {
	switch a.Type {
	case TypeClick, TypeDoubleClick, TypeRightClick:
		if a.Image == "" {
			return fmt.Errorf("%s action needs an image", a.Type)
		}
		if a.Window == "" && a.Process == "" {
			return fmt.Errorf("%s action needs a window or process", a.Type)
		}
	case TypeWait:
		if a.Seconds <= 0 {
			return fmt.Errorf("wait action needs positive seconds")
		}
	case TypeWaitFor:
		if a.Image == "" {
			return fmt.Errorf("wait_for action needs an image")
		}
		if a.Window == "" && a.Process == "" {
			return fmt.Errorf("wait_for action needs a window or process")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Script is a named action sequence.
type Script struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Actions     []Action `json:"actions"`
}

// Validate checks the whole script.
func (s *Script) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("script name is empty")
	}
	if len(s.Actions) == 0 {
		return fmt.Errorf("script %s has no actions", s.Name)
	}
	for i, a := range s.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("script %s action %d: %w", s.Name, i, err)
		}
	}
	return nil
}

// Library reads scripts from one directory, one JSON file per script.
type Library struct {
	dir string
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Load reads and validates one script by name.
func (l *Library) Load(name string) (*Script, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("bad script name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrScriptMissing, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", name, err)
	}
	var sc Script
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", name, err)
	}
	if sc.Name == "" {
		sc.Name = name
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// List returns all script names, sorted.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}
