package jsonkv

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calvinalkan/jsonkv/pkg/fs"
)

// gatedFS wraps an [fs.FS] and can hold WriteFileAtomic calls until the test
// releases them. It records how many writes overlap.
type gatedFS struct {
	fs.FS

	gate    chan struct{} // nil means writes pass straight through
	started chan string   // receives the path of each write as it starts

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	writes      atomic.Int32

	mu sync.Mutex
}

func newGatedFS(inner fs.FS) *gatedFS {
	return &gatedFS{
		FS:      inner,
		started: make(chan string, 1024),
	}
}

// hold makes subsequent writes block until release is called. Start
// notifications from earlier writes are discarded.
func (g *gatedFS) hold() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gate = make(chan struct{})

	for {
		select {
		case <-g.started:
		default:
			return
		}
	}
}

func (g *gatedFS) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.gate != nil {
		close(g.gate)
		g.gate = nil
	}
}

func (g *gatedFS) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	for {
		cur := g.maxInFlight.Load()
		if n <= cur || g.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	g.writes.Add(1)

	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()

	g.started <- path

	if gate != nil {
		<-gate
	}

	return g.FS.WriteFileAtomic(path, data, perm)
}

func (g *gatedFS) writeCount() int {
	return int(g.writes.Load())
}

// waitStarted blocks until a write has started or fails the test.
func (g *gatedFS) waitStarted(t *testing.T) {
	t.Helper()

	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a write to start")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	return ctx
}

// openReady opens key in r and waits for the initial load.
func openReady(t *testing.T, r *Registry, key string, opts ...Option) *Store {
	t.Helper()

	s, err := r.Open(key, opts...)
	if err != nil {
		t.Fatalf("Open(%q): %v", key, err)
	}

	if err := s.WaitReady(testContext(t)); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	return s
}

// readJSONFile decodes the file at path from fsys into a plain map.
func readJSONFile(t *testing.T, fsys fs.FS, path string) map[string]any {
	t.Helper()

	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v\n%s", path, err, data)
	}

	return m
}

// heldReadFS blocks every ReadFile until release is called, keeping a store
// in its loading phase.
type heldReadFS struct {
	fs.FS

	gate chan struct{}
	once sync.Once
}

func newHeldReadFS(inner fs.FS) *heldReadFS {
	return &heldReadFS{FS: inner, gate: make(chan struct{})}
}

func (h *heldReadFS) ReadFile(path string) ([]byte, error) {
	<-h.gate

	return h.FS.ReadFile(path)
}

func (h *heldReadFS) release() {
	h.once.Do(func() { close(h.gate) })
}
