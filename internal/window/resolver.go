// Package window resolves task selectors to concrete windows. Resolution
// happens on every poll tick: descriptors are never cached, a selector may
// legitimately match zero or many windows, and "nothing matched" is an
// empty result, not an error.
package window

import (
	"fmt"
	"strings"

	"ghostclick/internal/platform"
)

// Selector picks windows either by a title wildcard pattern or by owning
// process. When Process is set the title pattern is ignored and
// TitleFilter/Index refine the process match instead.
type Selector struct {
	// Title is a wildcard pattern: "*x*" substring, "*x" suffix,
	// "x*" prefix, plain "x" exact-or-substring. Case-insensitive.
	Title string `json:"title,omitempty"`
	// Process is the exact (case-insensitive) process name, e.g.
	// "Code.exe".
	Process string `json:"process,omitempty"`
	// TitleFilter optionally narrows a process match to windows whose
	// title contains this substring.
	TitleFilter string `json:"title_filter,omitempty"`
	// Index optionally picks the n-th (zero-based) window of a process
	// match, for processes with several windows.
	Index *int `json:"index,omitempty"`
}

// ByProcess reports whether the selector matches on process rather than
// title.
func (s Selector) ByProcess() bool {
	return s.Process != ""
}

// Validate rejects selectors that can never match anything.
func (s Selector) Validate() error {
	if s.Title == "" && s.Process == "" {
		return fmt.Errorf("selector needs a title pattern or a process name")
	}
	if s.Index != nil && *s.Index < 0 {
		return fmt.Errorf("window index must not be negative")
	}
	return nil
}

// String renders the selector for status messages.
func (s Selector) String() string {
	if s.ByProcess() {
		out := s.Process
		if s.TitleFilter != "" {
			out += " [" + s.TitleFilter + "]"
		}
		if s.Index != nil {
			out += fmt.Sprintf(" #%d", *s.Index)
		}
		return out
	}
	return s.Title
}

// Resolver lists windows through the platform driver and filters them
// against selectors.
type Resolver struct {
	driver platform.Driver
}

// NewResolver returns a resolver backed by the given driver.
func NewResolver(driver platform.Driver) *Resolver {
	return &Resolver{driver: driver}
}

// Resolve returns every window matching the selector, in enumeration
// order. Minimized windows are excluded; windows on other virtual
// desktops are included (the driver lists them). An empty result is not
// an error.
func (r *Resolver) Resolve(sel Selector) ([]platform.Window, error) {
	wins, err := r.driver.ListWindows()
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	var matched []platform.Window
	for _, w := range wins {
		if w.Minimized {
			continue
		}
		if sel.ByProcess() {
			if !matchProcess(sel, w) {
				continue
			}
		} else if !MatchTitle(sel.Title, w.Title) {
			continue
		}
		matched = append(matched, w)
	}
	if sel.ByProcess() && sel.Index != nil {
		if *sel.Index >= len(matched) {
			return nil, nil
		}
		matched = matched[*sel.Index : *sel.Index+1]
	}
	return matched, nil
}

func matchProcess(sel Selector, w platform.Window) bool {
	if !strings.EqualFold(sel.Process, w.Process) {
		return false
	}
	if sel.TitleFilter != "" &&
		!strings.Contains(strings.ToLower(w.Title), strings.ToLower(sel.TitleFilter)) {
		return false
	}
	return true
}

// MatchTitle applies the wildcard rules, case-insensitively:
//
//	*x*  title contains x
//	*x   title ends with x
//	x*   title starts with x
//	x    exact match, or either string contains the other (titles are
//	     often truncated by the window manager)
func MatchTitle(pattern, title string) bool {
	p := strings.ToLower(pattern)
	t := strings.ToLower(title)
	needle := strings.Trim(p, "*")

	leading := strings.HasPrefix(p, "*")
	trailing := strings.HasSuffix(p, "*")

	switch {
	case leading && trailing:
		return strings.Contains(t, needle)
	case leading:
		return strings.HasSuffix(t, needle)
	case trailing:
		return strings.HasPrefix(t, needle)
	default:
		return t == p || strings.Contains(t, p) || (t != "" && strings.Contains(p, t))
	}
}
