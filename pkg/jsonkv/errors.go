package jsonkv

import (
	"errors"
	"strings"
)

// Sentinel errors. Use [errors.Is] to check for them.
var (
	// ErrInvalidKey is returned for empty keys or keys that are not a plain
	// file name.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrCorrupt is reported when the backing file exists but does not hold
	// a JSON object.
	ErrCorrupt = errors.New("backing file is not a valid JSON object")

	// ErrWrite wraps every failed physical flush.
	ErrWrite = errors.New("write failed")

	// ErrNotSupported is returned by [Store.Size] when the filesystem cannot
	// report file sizes.
	ErrNotSupported = errors.New("not supported in this environment")

	// ErrNotEncodable is returned by [Store.Set] for values that have no
	// JSON form.
	ErrNotEncodable = errors.New("value is not JSON encodable")

	// ErrClosed is returned by mutations on a disposed [Store].
	ErrClosed = errors.New("store is closed")
)

// Error is the error type returned by store operations that involve a
// backing file.
//
// The underlying error message appears first, followed by the store context:
//
//	write /data/settings.json: no space left on device (key=settings.json path=/data/settings.json)
//
// Use [errors.As] to extract the fields.
type Error struct {
	// Key is the storage key of the store.
	Key string

	// Path is the resolved backing file location.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (key=K path=P)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}
