// Package fs provides the filesystem abstraction used by jsonkv stores.
//
// The main types are:
//   - [FS]: interface for the whole-file operations a store needs
//   - [Real]: production implementation using [os] and atomic renames
//   - [Memory]: in-process implementation for hosts without a filesystem
//   - [Chaos]: testing implementation that injects random failures
//
// Example usage:
//
//	fsys := fs.NewReal()
//	data, err := fsys.ReadFile("settings.json")
//	if errors.Is(err, os.ErrNotExist) {
//	    // create it
//	}
package fs

import (
	"errors"
	"os"
)

// ErrNotSupported is returned by implementations that cannot answer an
// operation at all in the current environment, for example [Memory.Stat].
//
// It is a static capability of the implementation, not a transient error.
var ErrNotSupported = errors.New("operation not supported")

// FS defines the whole-file operations used to persist documents.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing with fault injection.
type FS interface {
	// --- Whole-file Operations ---

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	// Returns an error satisfying errors.Is(err, os.ErrNotExist) if the
	// file does not exist.
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to a file atomically.
	// A concurrent reader observes either the old or the new content, never
	// a partial write.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// --- Directory Operations ---

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	// No error if the directory already exists.
	MkdirAll(path string, perm os.FileMode) error

	// --- Metadata ---

	// Stat returns file info. See [os.Stat].
	// Implementations without size introspection return [ErrNotSupported].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// --- Mutations ---

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error
}
