package fs

import (
	iofs "io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Memory implements [FS] entirely in process memory.
//
// It models a host with no real filesystem (for example a sandboxed or
// browser-like runtime): whole-file reads and writes work, but file metadata
// is unavailable and [Memory.Stat] always fails with [ErrNotSupported].
//
// Memory is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}
}

// NewMemory returns an empty [Memory] filesystem.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
	}
}

// ReadFile returns a copy of the stored bytes.
func (m *Memory) ReadFile(path string) ([]byte, error) {
	path = filepath.Clean(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[path]
	if !ok {
		return nil, &iofs.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}

// WriteFileAtomic replaces the stored bytes in one step.
func (m *Memory) WriteFileAtomic(path string, data []byte, _ os.FileMode) error {
	path = filepath.Clean(path)

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, isDir := m.dirs[path]; isDir {
		return &iofs.PathError{Op: "write", Path: path, Err: iofs.ErrInvalid}
	}

	m.files[path] = buf

	return nil
}

// MkdirAll records path and its parents as directories.
func (m *Memory) MkdirAll(path string, _ os.FileMode) error {
	path = filepath.Clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	for p := path; ; p = filepath.Dir(p) {
		if _, isFile := m.files[p]; isFile {
			return &iofs.PathError{Op: "mkdir", Path: p, Err: iofs.ErrExist}
		}

		m.dirs[p] = struct{}{}

		if parent := filepath.Dir(p); parent == p {
			break
		}
	}

	return nil
}

// Stat is not available without a real filesystem.
func (m *Memory) Stat(path string) (os.FileInfo, error) {
	return nil, &iofs.PathError{Op: "stat", Path: path, Err: ErrNotSupported}
}

// Exists reports whether path was written or created as a directory.
func (m *Memory) Exists(path string) (bool, error) {
	path = filepath.Clean(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[path]; ok {
		return true, nil
	}

	_, ok := m.dirs[path]

	return ok, nil
}

// Remove deletes a stored file or an empty directory.
func (m *Memory) Remove(path string) error {
	path = filepath.Clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[path]; ok {
		delete(m.files, path)

		return nil
	}

	if _, ok := m.dirs[path]; ok {
		for p := range m.files {
			if filepath.Dir(p) == path {
				return &iofs.PathError{Op: "remove", Path: path, Err: iofs.ErrExist}
			}
		}

		delete(m.dirs, path)

		return nil
	}

	return &iofs.PathError{Op: "remove", Path: path, Err: os.ErrNotExist}
}

// Compile-time interface check.
var _ FS = (*Memory)(nil)
