package jsonkv

import (
	"context"
	"sync"
)

// flusher serializes and coalesces physical writes for one backing file.
//
// At most one write runs at a time. A request that arrives while a write is
// in flight only sets rewriteRequested; when the running write finishes the
// loop takes a fresh snapshot and writes again. Any number of requests during
// one write therefore cost exactly one follow-up write.
type flusher struct {
	// write takes a snapshot of the current document and persists it.
	write func() error

	mu               sync.Mutex
	writing          bool
	rewriteRequested bool
	idle             chan struct{} // closed while not writing
	lastErr          error

	writes      uint64
	writeErrors uint64
}

func newFlusher(write func() error) *flusher {
	idle := make(chan struct{})
	close(idle)

	return &flusher{write: write, idle: idle}
}

// request starts a write, or marks that another one must follow the
// write in flight. It never blocks on I/O.
func (f *flusher) request() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writing {
		f.rewriteRequested = true

		return
	}

	f.writing = true
	f.idle = make(chan struct{})

	go f.run()
}

func (f *flusher) run() {
	for {
		err := f.write()

		f.mu.Lock()
		f.writes++
		if err != nil {
			f.writeErrors++
		}

		f.lastErr = err

		if !f.rewriteRequested {
			f.writing = false
			close(f.idle)
			f.mu.Unlock()

			return
		}

		f.rewriteRequested = false
		f.mu.Unlock()
	}
}

// wait blocks until no write is in flight or ctx is done. It returns the
// error of the last write that settled.
func (f *flusher) wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastErr
}

// FlushStats reports coalescer activity for one store.
type FlushStats struct {
	// Writes is the number of physical writes that completed, successful
	// or not.
	Writes uint64

	// WriteErrors is how many of those failed.
	WriteErrors uint64

	// Writing reports whether a write is in flight.
	Writing bool

	// RewriteRequested reports whether another write will follow the one
	// in flight.
	RewriteRequested bool
}

func (f *flusher) stats() FlushStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return FlushStats{
		Writes:           f.writes,
		WriteErrors:      f.writeErrors,
		Writing:          f.writing,
		RewriteRequested: f.rewriteRequested,
	}
}
