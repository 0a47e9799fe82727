// Package storage provides the file persistence primitives shared by the raw data
// cache and the model store: a root directory, per-key reader/writer locks,
// atomic writes and crash recovery of temp files.
//
// Writes go to a temporary file that is renamed over the target, so readers see
// either the previous or the new content, never a partial file.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const tempSuffix = ".tmp"

// Dir is a directory tree owned by a single process
type Dir struct {
	root            string
	filePermissions os.FileMode
	dirPermissions  os.FileMode

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New creates a Dir rooted at root. If root is empty, uses OS-appropriate tmp directory
func New(root string, filePermissions, dirPermissions os.FileMode) *Dir {
	if root == "" {
		root = filepath.Join(os.TempDir(), "ocean-oracle")
	}
	if filePermissions == 0 {
		filePermissions = 0o644
	}
	if dirPermissions == 0 {
		dirPermissions = 0o755
	}

	return &Dir{
		root:            root,
		filePermissions: filePermissions,
		dirPermissions:  dirPermissions,
		locks:           make(map[string]*sync.RWMutex),
	}
}

// Root returns the root directory
func (d *Dir) Root() string {
	return d.root
}

// Path joins rel onto the root
func (d *Dir) Path(rel ...string) string {
	return filepath.Join(append([]string{d.root}, rel...)...)
}

// Lock returns the reader/writer lock guarding key. The same key always
// yields the same lock.
func (d *Dir) Lock(key string) *sync.RWMutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		d.locks[key] = l
	}
	return l
}

// WriteAtomic writes data to rel through a temp file and rename
func (d *Dir) WriteAtomic(rel string, data []byte) error {
	path := d.Path(rel)

	// Create parent directory if needed
	if err := os.MkdirAll(filepath.Dir(path), d.dirPermissions); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := path + tempSuffix
	if err := os.WriteFile(tempPath, data, d.filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	// Rename temp file to actual file
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// SaveJSON marshals v with indentation and writes it atomically to rel
func (d *Dir) SaveJSON(rel string, v interface{}) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return d.WriteAtomic(rel, jsonData)
}

// Read returns the content of rel. A missing file yields an error matching
// fs.ErrNotExist.
func (d *Dir) Read(rel string) ([]byte, error) {
	data, err := os.ReadFile(d.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Exists reports whether rel exists
func (d *Dir) Exists(rel string) bool {
	_, err := os.Stat(d.Path(rel))
	return err == nil
}

// Remove deletes rel. Removing a missing file is not an error.
func (d *Dir) Remove(rel string) error {
	if err := os.Remove(d.Path(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// RemoveAll deletes rel and everything below it
func (d *Dir) RemoveAll(rel string) error {
	if err := os.RemoveAll(d.Path(rel)); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	return nil
}

// List returns the names of regular files in rel with the given suffix, sorted.
// A missing directory yields an empty list.
func (d *Dir) List(rel, suffix string) ([]string, error) {
	entries, err := os.ReadDir(d.Path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CleanupTemp removes stale temp files left by crashes and returns how many
// were removed
func (d *Dir) CleanupTemp() (int, error) {
	removed := 0
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !e.IsDir() && strings.HasSuffix(e.Name(), tempSuffix) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to clean temp files: %w", err)
	}
	return removed, nil
}
