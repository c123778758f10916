package jsonkv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/jsonkv/pkg/fs"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755

	// corruptSuffix names the copy of an unreadable backing file kept next
	// to it when a load fails.
	corruptSuffix = ".corrupt"
)

// ResolvePath returns the backing file location for key inside dir. An empty
// dir means the current directory. The result depends only on the inputs.
func ResolvePath(key, dir string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	if dir == "" {
		dir = "."
	}

	return filepath.Join(dir, key), nil
}

// BackupPath returns where a corrupt backing file at path is copied.
func BackupPath(path string) string {
	return path + corruptSuffix
}

func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case key == "." || key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsRune(key, '/') || strings.ContainsRune(key, filepath.Separator):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	}

	return nil
}

// backingFile reads and writes the JSON text of one document.
type backingFile struct {
	fs   fs.FS
	key  string
	path string
}

func (b *backingFile) wrap(err error) error {
	if err == nil {
		return nil
	}

	return &Error{Key: b.key, Path: b.path, Err: err}
}

// loadOrCreate returns the decoded file content. A missing file is created
// from seed. A file that does not decode is copied aside and reported as
// [ErrCorrupt]; the original stays where it is.
func (b *backingFile) loadOrCreate(seed *Document) (*Document, error) {
	data, err := b.fs.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return b.create(seed)
	}

	if err != nil {
		return nil, b.wrap(fmt.Errorf("read: %w", err))
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		backupErr := b.fs.WriteFileAtomic(BackupPath(b.path), data, filePerm)
		if backupErr != nil {
			backupErr = fmt.Errorf("saving copy of corrupt file: %w", backupErr)
		}

		return nil, b.wrap(errors.Join(ensureCorrupt(err), backupErr))
	}

	return doc, nil
}

func (b *backingFile) create(seed *Document) (*Document, error) {
	if seed == nil {
		seed = NewDocument()
	}

	if err := b.fs.MkdirAll(filepath.Dir(b.path), dirPerm); err != nil {
		return nil, b.wrap(fmt.Errorf("create directory: %w", err))
	}

	data, err := seed.Encode()
	if err != nil {
		return nil, b.wrap(fmt.Errorf("encode seed: %w", err))
	}

	if err := b.fs.WriteFileAtomic(b.path, data, filePerm); err != nil {
		return nil, b.wrap(fmt.Errorf("%w: create: %w", ErrWrite, err))
	}

	return seed.Clone(), nil
}

// writeAll replaces the file content with data.
func (b *backingFile) writeAll(data []byte) error {
	if err := b.fs.WriteFileAtomic(b.path, data, filePerm); err != nil {
		return b.wrap(fmt.Errorf("%w: %w", ErrWrite, err))
	}

	return nil
}

// sizeOf returns the byte size of the file.
func (b *backingFile) sizeOf() (int64, error) {
	info, err := b.fs.Stat(b.path)
	if errors.Is(err, fs.ErrNotSupported) {
		return 0, b.wrap(fmt.Errorf("size: %w", ErrNotSupported))
	}

	if err != nil {
		return 0, b.wrap(fmt.Errorf("size: %w", err))
	}

	return info.Size(), nil
}

// remove deletes the backing file. A missing file is not an error.
func (b *backingFile) remove() error {
	err := b.fs.Remove(b.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return b.wrap(fmt.Errorf("remove: %w", err))
}

func ensureCorrupt(err error) error {
	if errors.Is(err, ErrCorrupt) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}
