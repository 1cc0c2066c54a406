package store

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"ghostclick/internal/vision"
)

// ErrTemplateMissing is returned when a named template has no PNG on
// disk. Workers surface it as a per-tick status, not a crash.
var ErrTemplateMissing = errors.New("template missing")

// TemplateLibrary reads and writes reference images under one directory.
// Each template is a grayscale-convertible PNG plus an optional sidecar
// "<name>.scale" recording the DPI scale it was captured at; without a
// sidecar the scale is 1.
type TemplateLibrary struct {
	dir string
}

// NewTemplateLibrary returns a library rooted at dir.
func NewTemplateLibrary(dir string) *TemplateLibrary {
	return &TemplateLibrary{dir: dir}
}

// Load reads a template by name. Names are bare identifiers; anything
// that looks like a path is rejected so callers cannot read outside the
// library directory.
func (l *TemplateLibrary) Load(name string) (*vision.Template, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, name+".png"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", name, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", name, err)
	}
	scale, err := l.loadScale(name)
	if err != nil {
		return nil, err
	}
	return &vision.Template{Name: name, Frame: vision.FrameFromImage(img, scale)}, nil
}

// Save writes the frame as a PNG and records its capture scale in the
// sidecar. Both writes are atomic.
func (l *TemplateLibrary) Save(name string, frame *vision.Frame) error {
	if err := checkName(name); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.ToGray()); err != nil {
		return fmt.Errorf("encode template %s: %w", name, err)
	}
	if err := writeFileAtomic(filepath.Join(l.dir, name+".png"), buf.Bytes(), 0o644); err != nil {
		return err
	}
	scale := strconv.FormatFloat(frame.Scale, 'f', 4, 64) + "\n"
	return writeFileAtomic(filepath.Join(l.dir, name+".scale"), []byte(scale), 0o644)
}

// Delete removes the template PNG and its sidecar.
func (l *TemplateLibrary) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.dir, name+".png")); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrTemplateMissing, name)
		}
		return err
	}
	// Sidecar may legitimately be absent.
	_ = os.Remove(filepath.Join(l.dir, name+".scale"))
	return nil
}

// List returns the template names, sorted.
func (l *TemplateLibrary) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".png"))
	}
	sort.Strings(names)
	return names, nil
}

func (l *TemplateLibrary) loadScale(name string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, name+".scale"))
	if errors.Is(err, fs.ErrNotExist) {
		return 1.0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read scale for %s: %w", name, err)
	}
	scale, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil || scale <= 0 {
		return 0, fmt.Errorf("bad scale for template %s: %q", name, strings.TrimSpace(string(data)))
	}
	return scale, nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("template name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("bad template name %q", name)
	}
	return nil
}
