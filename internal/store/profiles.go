package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ghostclick/internal/core"
)

// ErrProfileMissing is returned for unknown profile names.
var ErrProfileMissing = errors.New("profile missing")

// Profile is a named task set that can replace the live task table in
// one step, for switching between automation setups.
type Profile struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Tasks       []*core.Task `json:"tasks"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ProfileStore keeps one JSON file per profile under a directory.
type ProfileStore struct {
	dir string
}

// NewProfileStore returns a store rooted at dir.
func NewProfileStore(dir string) *ProfileStore {
	return &ProfileStore{dir: dir}
}

// Save writes the profile atomically, stamping CreatedAt on first save
// and UpdatedAt always.
func (s *ProfileStore) Save(p *Profile) error {
	if err := checkName(p.Name); err != nil {
		return fmt.Errorf("profile name: %w", err)
	}
	now := time.Now().UTC()
	if existing, err := s.Load(p.Name); err == nil {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.Name, err)
	}
	data = append(data, '\n')
	return writeFileAtomic(s.path(p.Name), data, 0o644)
}

// Load reads one profile. Tasks are normalized and validated so an
// activated profile can go straight into the scheduler.
func (s *ProfileStore) Load(name string) (*Profile, error) {
	if err := checkName(name); err != nil {
		return nil, fmt.Errorf("profile name: %w", err)
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrProfileMissing, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", name, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", name, err)
	}
	for i, task := range p.Tasks {
		task.Normalize()
		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("profile %s task %d: %w", name, i, err)
		}
	}
	return &p, nil
}

// Delete removes a profile.
func (s *ProfileStore) Delete(name string) error {
	if err := checkName(name); err != nil {
		return fmt.Errorf("profile name: %w", err)
	}
	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrProfileMissing, name)
		}
		return err
	}
	return nil
}

// List returns all profile names, sorted.
func (s *ProfileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
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

func (s *ProfileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
