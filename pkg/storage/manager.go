package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Manager owns the staging directory where files wait between download and
// upload. Each artifact gets its own subdirectory.
type Manager struct {
	dir string
}

// NewManager creates the staging directory if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	m := &Manager{dir: dir}
	if err := m.dropPartials(); err != nil {
		return nil, fmt.Errorf("failed to scan staging directory: %w", err)
	}
	return m, nil
}

// dropPartials removes .tmp files left behind by an interrupted run.
func (m *Manager) dropPartials() error {
	return filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tmp") {
			return os.Remove(path)
		}
		return nil
	})
}

func (m *Manager) Dir() string { return m.dir }

// PathFor returns where name is staged for artifact.
func (m *Manager) PathFor(artifact, name string) string {
	return filepath.Join(m.dir, safeName(artifact), safeName(name))
}

func safeName(s string) string {
	s = strings.ReplaceAll(s, string(filepath.Separator), "_")
	s = strings.ReplaceAll(s, "/", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Save streams write's output to the staged path through a temp file and
// renames it into place once complete.
func (m *Manager) Save(artifact, name string, write func(w io.Writer) (int64, error)) (string, int64, error) {
	path := m.PathFor(artifact, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := write(out)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", 0, err
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return path, n, nil
}

// IsStaged reports whether a complete copy of name is already staged.
func (m *Manager) IsStaged(artifact, name string) bool {
	info, err := os.Stat(m.PathFor(artifact, name))
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes everything staged for artifact.
func (m *Manager) Remove(artifact string) error {
	if err := os.RemoveAll(filepath.Join(m.dir, safeName(artifact))); err != nil {
		return fmt.Errorf("failed to remove staged files for %s: %w", artifact, err)
	}
	return nil
}

// Usage returns the bytes currently held in the staging directory.
func (m *Manager) Usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}
