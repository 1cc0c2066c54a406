// Package store persists tasks, templates and profiles under the data
// directory. Task writes are atomic: the file is either the old list or
// the new one, never a torn write, even across crashes.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"ghostclick/internal/core"
)

// TaskFile persists the ordered task list as one JSON document.
type TaskFile struct {
	path string
	mu   sync.Mutex
}

// NewTaskFile returns a store backed by the given file path. The parent
// directory is created on first save.
func NewTaskFile(path string) *TaskFile {
	return &TaskFile{path: path}
}

// taskDocument is the on-disk shape. Unknown fields are ignored on load,
// so newer builds can extend the document without breaking older files.
type taskDocument struct {
	Tasks []taskRecord `json:"tasks"`
}

// taskRecord shadows optional fields with pointers so absent values can
// be told apart from explicit zero values. Hand-edited files routinely
// omit fields; absent means "use the default", which for enabled is true.
type taskRecord struct {
	core.Task
	Enabled *bool `json:"enabled"`
}

// Load reads the task list. A missing file is an empty list. Every task
// is normalized and validated and ids must be unique across the file;
// one bad record fails the whole load so a corrupt file never
// half-applies.
func (f *TaskFile) Load() ([]*core.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	var doc taskDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}

	tasks := make([]*core.Task, 0, len(doc.Tasks))
	seen := make(map[string]struct{}, len(doc.Tasks))
	for i, rec := range doc.Tasks {
		task := rec.Task
		task.Enabled = rec.Enabled == nil || *rec.Enabled
		task.Normalize()
		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, task.ID, err)
		}
		if _, dup := seen[task.ID]; dup {
			return nil, fmt.Errorf("task %d: duplicate id %s", i, task.ID)
		}
		seen[task.ID] = struct{}{}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// Save writes the task list atomically: temp file in the same directory,
// fsync, rename over the target.
func (f *TaskFile) Save(tasks []*core.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := make([]taskRecord, len(tasks))
	for i, task := range tasks {
		enabled := task.Enabled
		records[i] = taskRecord{Task: *task, Enabled: &enabled}
	}
	data, err := json.MarshalIndent(taskDocument{Tasks: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	data = append(data, '\n')

	return writeFileAtomic(f.path, data, 0o644)
}

// Path returns the backing file path, used by the backup job.
func (f *TaskFile) Path() string {
	return f.path
}

// writeFileAtomic writes via a temp file and rename. The temp file lives
// in the target's directory so the rename stays on one filesystem.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
