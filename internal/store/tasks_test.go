package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostclick/internal/core"
	"ghostclick/internal/window"
)

func TestTaskFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	f := NewTaskFile(path)

	idx := 1
	tasks := []*core.Task{
		{
			ID:        "a",
			Selector:  window.Selector{Title: "*Notepad"},
			Target:    core.Target{Kind: core.TargetSingle, Template: "save"},
			Action:    core.ActionDoubleClick,
			Threshold: 0.9,
			Enabled:   true,
		},
		{
			ID:       "b",
			Selector: window.Selector{Process: "Code.exe", TitleFilter: "main.go", Index: &idx},
			Target: core.Target{
				Kind: core.TargetMultiOption,
				Options: []core.Option{
					{Name: "yes", Template: "btn_yes"},
					{Name: "no", Template: "btn_no"},
				},
				Selected: 1,
			},
			Action:          core.ActionClick,
			Repeat:          true,
			IntervalSeconds: 2.5,
			Threshold:       0.8,
			Enabled:         false,
		},
	}
	require.NoError(t, f.Save(tasks))

	got, err := f.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, tasks[0], got[0])
	assert.Equal(t, tasks[1], got[1])
	assert.Equal(t, 1, *got[1].Selector.Index)
	assert.Equal(t, "btn_no", got[1].Target.Options[1].Template)
}

func TestTaskFileMissingIsEmpty(t *testing.T) {
	f := NewTaskFile(filepath.Join(t.TempDir(), "tasks.json"))
	got, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTaskFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	// A hand-written file carrying only the essentials.
	raw := `{
  "tasks": [
    {"id": "a", "selector": {"title": "App"}, "target": {"template": "ok"}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	got, err := NewTaskFile(path).Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.DefaultThreshold, got[0].Threshold)
	assert.Equal(t, core.ActionClick, got[0].Action)
	assert.Equal(t, core.TargetSingle, got[0].Target.Kind)
	assert.True(t, got[0].Enabled, "enabled defaults to true when absent")
	assert.False(t, got[0].Repeat)
}

func TestTaskFileIgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	raw := `{
  "format_version": 7,
  "tasks": [
    {"id": "a", "selector": {"title": "App"}, "target": {"template": "ok"}, "color": "red"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	got, err := NewTaskFile(path).Load()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTaskFileRejectsInvalidRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	raw := `{"tasks": [{"id": "a", "selector": {"title": "App"}, "target": {"template": "ok"}, "threshold": 0.2}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := NewTaskFile(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

func TestTaskFileRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	raw := `{
  "tasks": [
    {"id": "a", "selector": {"title": "App"}, "target": {"template": "ok"}},
    {"id": "a", "selector": {"title": "Other"}, "target": {"template": "ok"}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := NewTaskFile(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestTaskFileSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewTaskFile(filepath.Join(dir, "tasks.json"))
	require.NoError(t, f.Save([]*core.Task{{
		ID:       "a",
		Selector: window.Selector{Title: "App"},
		Target:   core.Target{Kind: core.TargetSingle, Template: "ok"},
		Action:   core.ActionClick, Threshold: 0.85,
	}}))
	require.NoError(t, f.Save(nil)) // overwrite

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tasks.json", entries[0].Name())
	assert.False(t, strings.Contains(entries[0].Name(), ".tmp-"))
}
