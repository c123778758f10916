package fs

import (
	"errors"
	iofs "io/fs"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
type ChaosConfig struct {
	ReadFailRate   float64 // Fail ReadFile entirely
	WriteFailRate  float64 // Fail WriteFileAtomic (old content stays in place)
	MkdirFailRate  float64 // Fail MkdirAll
	StatFailRate   float64 // Fail Stat/Exists
	RemoveFailRate float64 // Fail Remove
}

// DefaultChaosConfig returns a config with reasonable fault rates for testing.
func DefaultChaosConfig() ChaosConfig {
	return ChaosConfig{
		ReadFailRate:   0.02,
		WriteFailRate:  0.05,
		MkdirFailRate:  0.02,
		StatFailRate:   0.01,
		RemoveFailRate: 0.02,
	}
}

// PathState tracks the fault state of a path for consistent error injection.
type PathState int

const (
	// PathNormal means no persistent fault - errors are transient.
	// This is the zero value, so untracked paths are normal.
	PathNormal PathState = iota
	// PathIOError is sticky - the path has a "bad sector" and always returns EIO.
	PathIOError
	// PathReadOnly is sticky for writes - filesystem is read-only, returns EROFS.
	PathReadOnly
)

// ChaosMode controls how Chaos behaves.
type ChaosMode uint8

const (
	// ChaosModePassthrough behaves like the underlying FS.
	// It ignores fault rates and also ignores any sticky path state.
	ChaosModePassthrough ChaosMode = iota

	// ChaosModeInject enables fault-rate injection and sticky path state.
	ChaosModeInject

	// ChaosModeStickyOnly applies only sticky path state. Fault rates are disabled.
	ChaosModeStickyOnly
)

// Chaos wraps an [FS] and injects random failures for testing.
//
// Errors are state-aware: once a path gets EIO (bad sector) or EROFS it stays
// broken until [Chaos.ResetPathState]. Injected errors are real OS errors
// (syscall.Errno wrapped in *fs.PathError) so errors.Is keeps working, and
// [IsInjected] tells them apart from real failures.
//
// Use [Chaos.SetMode] to control behavior. The zero mode is passthrough.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	mu         sync.Mutex
	rng        *rand.Rand
	pathStates map[string]PathState

	readFails   atomic.Int64
	writeFails  atomic.Int64
	mkdirFails  atomic.Int64
	statFails   atomic.Int64
	removeFails atomic.Int64
}

// NewChaos creates a new Chaos filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
func NewChaos(fs FS, seed int64, config ChaosConfig) *Chaos {
	return &Chaos{
		fs:         fs,
		rng:        rand.New(rand.NewSource(seed)),
		config:     config,
		pathStates: make(map[string]PathState),
	}
}

// SetMode updates Chaos behavior. Safe to call concurrently with filesystem
// operations. Switching modes never clears sticky path state.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	ReadFails   int64
	WriteFails  int64
	MkdirFails  int64
	StatFails   int64
	RemoveFails int64
}

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		ReadFails:   c.readFails.Load(),
		WriteFails:  c.writeFails.Load(),
		MkdirFails:  c.mkdirFails.Load(),
		StatFails:   c.statFails.Load(),
		RemoveFails: c.removeFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.ReadFails + s.WriteFails + s.MkdirFails + s.StatFails + s.RemoveFails
}

// SetPathState forces a sticky fault state on path (for testing).
func (c *Chaos) SetPathState(path string, state PathState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state == PathNormal {
		delete(c.pathStates, path)
	} else {
		c.pathStates[path] = state
	}
}

// PathState returns the current fault state for a path (for testing).
func (c *Chaos) PathState(path string) PathState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pathStates[path]
}

// ResetPathState clears the fault state for a path (for testing).
func (c *Chaos) ResetPathState(path string) {
	c.SetPathState(path, PathNormal)
}

// --- Whole-file Operations ---

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModePassthrough {
		return c.fs.ReadFile(path)
	}

	if c.PathState(path) == PathIOError {
		c.readFails.Add(1)

		return nil, pathError("read", path, syscall.EIO)
	}

	if c.should(mode, c.config.ReadFailRate) {
		c.readFails.Add(1)

		return nil, pathError("read", path, c.pickError("read"))
	}

	return c.fs.ReadFile(path)
}

func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModePassthrough {
		return c.fs.WriteFileAtomic(path, data, perm)
	}

	switch c.PathState(path) {
	case PathIOError:
		c.writeFails.Add(1)

		return pathError("write", path, syscall.EIO)
	case PathReadOnly:
		c.writeFails.Add(1)

		return pathError("write", path, syscall.EROFS)
	}

	if c.should(mode, c.config.WriteFailRate) {
		errno := c.pickError("write")
		c.SetPathState(path, errToState(errno))
		c.writeFails.Add(1)

		return pathError("write", path, errno)
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

// --- Directory Operations ---

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	mode := ChaosMode(c.mode.Load())
	if mode != ChaosModePassthrough && c.should(mode, c.config.MkdirFailRate) {
		c.mkdirFails.Add(1)

		return pathError("mkdir", path, c.pickError("mkdir"))
	}

	return c.fs.MkdirAll(path, perm)
}

// --- Metadata ---

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModePassthrough {
		return c.fs.Stat(path)
	}

	if c.PathState(path) == PathIOError {
		c.statFails.Add(1)

		return nil, pathError("stat", path, syscall.EIO)
	}

	if c.should(mode, c.config.StatFailRate) {
		c.statFails.Add(1)

		return nil, pathError("stat", path, c.pickError("stat"))
	}

	return c.fs.Stat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	mode := ChaosMode(c.mode.Load())
	if mode != ChaosModePassthrough && c.should(mode, c.config.StatFailRate) {
		c.statFails.Add(1)

		return false, pathError("stat", path, c.pickError("stat"))
	}

	return c.fs.Exists(path)
}

// --- Mutations ---

func (c *Chaos) Remove(path string) error {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModePassthrough {
		return c.fs.Remove(path)
	}

	if c.PathState(path) == PathReadOnly {
		c.removeFails.Add(1)

		return pathError("remove", path, syscall.EROFS)
	}

	if c.should(mode, c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		return pathError("remove", path, c.pickError("remove"))
	}

	return c.fs.Remove(path)
}

// --- Private api ---

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(mode ChaosMode, rate float64) bool {
	if mode != ChaosModeInject {
		return false
	}

	c.mu.Lock()
	result := c.rng.Float64()
	c.mu.Unlock()

	return result < rate
}

func (c *Chaos) pickError(op string) syscall.Errno {
	var valid []syscall.Errno

	switch op {
	case "read":
		valid = []syscall.Errno{syscall.EIO, syscall.EINTR, syscall.EACCES}
	case "write":
		valid = []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS}
	case "mkdir":
		valid = []syscall.Errno{syscall.EACCES, syscall.ENOSPC, syscall.EROFS}
	case "remove":
		valid = []syscall.Errno{syscall.EACCES, syscall.EBUSY, syscall.EPERM}
	default:
		valid = []syscall.Errno{syscall.EIO}
	}

	c.mu.Lock()
	idx := c.rng.Intn(len(valid))
	c.mu.Unlock()

	return valid[idx]
}

// errToState converts an error to a path state for tracking.
func errToState(err syscall.Errno) PathState {
	switch err {
	case syscall.EIO:
		return PathIOError
	case syscall.EROFS:
		return PathReadOnly
	default:
		return PathNormal
	}
}

var injectedPathErrors sync.Map // map[*fs.PathError]struct{}

// pathError creates an *os.PathError with the given operation, path, and errno.
// This matches what the real OS returns, so errors.Is() works correctly.
func pathError(op, path string, errno syscall.Errno) error {
	pe := &iofs.PathError{Op: op, Path: path, Err: errno}
	injectedPathErrors.Store(pe, struct{}{})

	return pe
}

// IsInjected reports whether err (or any wrapped error) was injected by [Chaos].
// Returns false if err is nil.
func IsInjected(err error) bool {
	var pathErr *iofs.PathError
	if !errors.As(err, &pathErr) {
		return false
	}

	_, ok := injectedPathErrors.Load(pathErr)

	return ok
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
