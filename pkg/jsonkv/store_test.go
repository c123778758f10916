package jsonkv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/jsonkv/pkg/fs"
)

func Test_Store_Loads_Existing_File(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prefs"), []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	r := NewRegistry(WithDir(dir), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	v, ok := s.Get("a")
	if got, want := ok, true; got != want {
		t.Fatalf("ok=%v, want=%v", got, want)
	}

	if got, want := v, any(1.0); got != want {
		t.Fatalf("a=%v, want=%v", got, want)
	}

	if v, ok := s.Get("b"); ok || v != nil {
		t.Fatalf("Get(b)=(%v, %v), want (nil, false)", v, ok)
	}

	if err := s.InitError(); err != nil {
		t.Fatalf("InitError=%v, want nil", err)
	}
}

func Test_Store_Creates_Missing_File_From_Seed(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(WithDir(dir), WithLogger(discardLogger()))

	s := openReady(t, r, "prefs", WithSeed(map[string]any{"x": 0}))

	v, ok := s.Get("x")
	if !ok || v != any(0.0) {
		t.Fatalf("Get(x)=(%v, %v), want (0, true)", v, ok)
	}

	if diff := cmp.Diff(map[string]any{"x": 0.0}, readJSONFile(t, fs.NewReal(), s.Path())); diff != "" {
		t.Fatalf("file mismatch (-want +got):\n%s", diff)
	}
}

func Test_Store_Corrupt_File_Reports_Error_But_Becomes_Ready(t *testing.T) {
	mem := fs.NewMemory()
	if err := mem.WriteFileAtomic("/d/prefs", []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	var (
		mu       sync.Mutex
		reported []error
	)

	r := NewRegistry(WithFS(mem), WithDir("/d"), WithLogger(discardLogger()),
		WithInitErrorHandler(func(key string, err error) {
			mu.Lock()
			defer mu.Unlock()

			if key != "prefs" {
				t.Errorf("key=%q, want prefs", key)
			}

			reported = append(reported, err)
		}))

	s := openReady(t, r, "prefs", WithSeed(map[string]any{"fallback": true}))

	if err := s.InitError(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("InitError=%v, want ErrCorrupt", err)
	}

	mu.Lock()
	got := len(reported)
	mu.Unlock()

	if want := 1; got != want {
		t.Fatalf("reported=%d, want=%d", got, want)
	}

	// The store keeps running on its default state.
	if v, ok := s.Get("fallback"); !ok || v != true {
		t.Fatalf("Get(fallback)=(%v, %v), want (true, true)", v, ok)
	}

	data, err := mem.ReadFile("/d/prefs")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if got, want := string(data), "{not json"; got != want {
		t.Fatalf("corrupt file was modified: %q", got)
	}
}

func Test_Store_Set_Then_Delete_Persists_Without_Field(t *testing.T) {
	mem := fs.NewMemory()
	r := NewRegistry(WithFS(mem), WithDir("/d"), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	require.NoError(t, s.Set("a", 5))
	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Sync(testContext(t)))

	file := readJSONFile(t, mem, "/d/prefs")
	_, present := file["a"]
	assert.False(t, present, "file=%v must not contain a", file)
}

func Test_Store_Rapid_Mutations_Coalesce_And_Final_State_Persists(t *testing.T) {
	g := newGatedFS(fs.NewMemory())
	r := NewRegistry(WithFS(g), WithDir("/d"), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	require.NoError(t, s.Sync(testContext(t)))

	before := g.writeCount()

	g.hold()
	require.NoError(t, s.Set("n", 0))
	g.waitStarted(t)

	for i := 1; i <= 100; i++ {
		require.NoError(t, s.Set("n", i))
		require.NoError(t, s.Set(fmt.Sprintf("k%d", i%7), i))
	}

	require.NoError(t, s.Delete("k3"))

	st := s.Stats()
	assert.True(t, st.Writing)
	assert.True(t, st.RewriteRequested)

	g.release()
	require.NoError(t, s.flusher.wait(testContext(t)))

	assert.Equal(t, 2, g.writeCount()-before, "one blocked write plus one coalesced follow-up")
	assert.Equal(t, int32(1), g.maxInFlight.Load())

	if diff := cmp.Diff(s.Snapshot().Map(), readJSONFile(t, g, "/d/prefs")); diff != "" {
		t.Fatalf("file differs from memory (-memory +file):\n%s", diff)
	}
}

func Test_Store_Concurrent_Callers_Never_Lose_The_Final_State(t *testing.T) {
	g := newGatedFS(fs.NewMemory())
	r := NewRegistry(WithFS(g), WithDir("/d"), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	var wg sync.WaitGroup

	for w := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 50 {
				field := fmt.Sprintf("w%d", w)
				if i%10 == 9 {
					_ = s.Delete(field)
				} else {
					_ = s.Set(field, i)
				}
			}
		}()
	}

	wg.Wait()
	require.NoError(t, s.Sync(testContext(t)))

	assert.Equal(t, int32(1), g.maxInFlight.Load())

	if diff := cmp.Diff(s.Snapshot().Map(), readJSONFile(t, g, "/d/prefs")); diff != "" {
		t.Fatalf("file differs from memory (-memory +file):\n%s", diff)
	}
}

func Test_Store_DeleteMany_Issues_A_Single_Write(t *testing.T) {
	g := newGatedFS(fs.NewMemory())
	r := NewRegistry(WithFS(g), WithDir("/d"), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs", WithSeed(map[string]any{"a": 1, "b": 2, "c": 3}))

	before := g.writeCount()

	require.NoError(t, s.DeleteMany([]string{"a", "b", "missing"}))
	require.NoError(t, s.flusher.wait(testContext(t)))

	assert.Equal(t, 1, g.writeCount()-before)
	assert.Equal(t, map[string]any{"c": 3.0}, readJSONFile(t, g, "/d/prefs"))
}

func Test_Store_WithoutWrite_Defers_Until_WriteData(t *testing.T) {
	g := newGatedFS(fs.NewMemory())
	r := NewRegistry(WithFS(g), WithDir("/d"), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	before := g.writeCount()

	require.NoError(t, s.Set("a", 1, WithoutWrite()))
	require.NoError(t, s.Set("b", 2, WithoutWrite()))
	require.NoError(t, s.Clear(WithoutWrite()))
	require.NoError(t, s.Set("c", 3, WithoutWrite()))

	assert.Equal(t, 0, g.writeCount()-before)

	require.NoError(t, s.WriteData())
	require.NoError(t, s.flusher.wait(testContext(t)))

	assert.Equal(t, 1, g.writeCount()-before)
	assert.Equal(t, map[string]any{"c": 3.0}, readJSONFile(t, g, "/d/prefs"))
}

func Test_Store_Buffers_Mutations_Made_Before_Ready(t *testing.T) {
	g := newGatedFS(fs.NewMemory())
	g.hold() // blocks the create of the missing file, so the store stays unready

	r := NewRegistry(WithFS(g), WithDir("/d"), WithLogger(discardLogger()))

	s, err := r.Open("prefs", WithSeed(map[string]any{"seeded": true, "drop": 1}))
	require.NoError(t, err)

	g.waitStarted(t)

	select {
	case <-s.Ready():
		t.Fatal("store ready while create is blocked")
	default:
	}

	require.NoError(t, s.Set("early", "yes"))
	require.NoError(t, s.Delete("drop"))

	g.release()
	require.NoError(t, s.Sync(testContext(t)))

	want := map[string]any{"seeded": true, "early": "yes"}
	assert.Equal(t, want, s.Snapshot().Map())
	assert.Equal(t, want, readJSONFile(t, g, "/d/prefs"))
}

func Test_Store_Write_Failures_Are_Reported_Not_Returned(t *testing.T) {
	chaos := fs.NewChaos(fs.NewMemory(), 1, fs.ChaosConfig{})
	chaos.SetMode(fs.ChaosModeStickyOnly)

	var (
		mu       sync.Mutex
		failures int
	)

	r := NewRegistry(WithFS(chaos), WithDir("/d"), WithLogger(discardLogger()),
		WithWriteErrorHandler(func(string, error) {
			mu.Lock()
			failures++
			mu.Unlock()
		}))

	s := openReady(t, r, "prefs")
	chaos.SetPathState("/d/prefs", fs.PathReadOnly)

	require.NoError(t, s.Set("a", 1), "mutations must not fail because of the disk")

	err := s.Sync(testContext(t))
	require.ErrorIs(t, err, ErrWrite)
	assert.True(t, fs.IsInjected(err))

	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	mu.Lock()
	assert.GreaterOrEqual(t, failures, 1)
	mu.Unlock()

	chaos.ResetPathState("/d/prefs")
	require.NoError(t, s.Sync(testContext(t)))

	assert.Equal(t, map[string]any{"a": 1.0}, readJSONFile(t, chaos, "/d/prefs"))
	assert.GreaterOrEqual(t, s.Stats().WriteErrors, uint64(1))
}

func Test_Store_Size(t *testing.T) {
	t.Run("real filesystem", func(t *testing.T) {
		r := NewRegistry(WithDir(t.TempDir()), WithLogger(discardLogger()))
		s := openReady(t, r, "prefs")

		require.NoError(t, s.Set("a", 1))
		require.NoError(t, s.Sync(testContext(t)))

		size, err := s.Size()
		require.NoError(t, err)

		info, err := os.Stat(s.Path())
		require.NoError(t, err)
		assert.Equal(t, info.Size(), size)
	})

	t.Run("no filesystem", func(t *testing.T) {
		r := NewRegistry(WithFS(fs.NewMemory()), WithLogger(discardLogger()))
		s := openReady(t, r, "prefs")

		_, err := s.Size()
		require.ErrorIs(t, err, ErrNotSupported)
	})
}

func Test_Store_Set_Rejects_Unencodable_Values(t *testing.T) {
	g := newGatedFS(fs.NewMemory())
	r := NewRegistry(WithFS(g), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")
	before := g.writeCount()

	err := s.Set("p", point{X: 1})
	require.ErrorIs(t, err, ErrNotEncodable)

	_, ok := s.Get("p")
	assert.False(t, ok)
	assert.Equal(t, 0, g.writeCount()-before)

	require.NoError(t, s.Set("p", point{X: 1}, WithConverter(func(v any) (any, error) {
		return []int{v.(point).X, v.(point).Y}, nil
	})))

	v, _ := s.Get("p")
	assert.Equal(t, []any{1.0, 0.0}, v)
}

func Test_Store_Get_Returns_A_Copy(t *testing.T) {
	r := NewRegistry(WithFS(fs.NewMemory()), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	require.NoError(t, s.Set("list", []any{"a"}))

	v, _ := s.Get("list")
	v.([]any)[0] = "mutated"

	again, _ := s.Get("list")
	assert.Equal(t, []any{"a"}, again)
}

func Test_Store_Subscribe_Receives_Snapshots(t *testing.T) {
	r := NewRegistry(WithFS(fs.NewMemory()), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	ch, cancel := s.Subscribe()
	defer cancel()

	initial := receive(t, ch)
	assert.Equal(t, 0, initial.Len())

	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Sync(testContext(t)))

	// Best-effort delivery keeps only the newest snapshot.
	got := receive(t, ch)
	assert.Equal(t, map[string]any{"a": 1.0}, got.Map())

	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
}

func Test_Store_Mutations_Fail_After_Dispose(t *testing.T) {
	r := NewRegistry(WithFS(fs.NewMemory()), WithLogger(discardLogger()))
	s := openReady(t, r, "prefs")

	ch, _ := s.Subscribe()
	r.Dispose(s)

	require.ErrorIs(t, s.Set("a", 1), ErrClosed)
	require.ErrorIs(t, s.Delete("a"), ErrClosed)
	require.ErrorIs(t, s.Clear(), ErrClosed)
	require.ErrorIs(t, s.WriteData(), ErrClosed)

	// Drain the primed snapshot, then the channel must be closed.
	for range ch {
	}
}

func receive(t *testing.T, ch <-chan *Document) *Document {
	t.Helper()

	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}

		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")

		return nil
	}
}

func Test_Store_Disposed_While_Loading_Never_Writes(t *testing.T) {
	mem := fs.NewMemory()
	require.NoError(t, mem.WriteFileAtomic("/d/prefs", []byte(`{"keep": 1}`), 0o644))

	held := newHeldReadFS(mem)
	t.Cleanup(held.release)

	r := NewRegistry(WithFS(held), WithDir("/d"), WithLogger(discardLogger()))

	s, err := r.Open("prefs")
	require.NoError(t, err)

	require.NoError(t, s.Set("stale", true))
	r.Dispose(s)
	held.release()

	require.NoError(t, s.WaitReady(testContext(t)))
	require.NoError(t, s.flusher.wait(testContext(t)))

	if got, want := s.Stats().Writes, uint64(0); got != want {
		t.Fatalf("writes=%d, want=%d", got, want)
	}

	assert.Equal(t, map[string]any{"keep": 1.0}, readJSONFile(t, mem, "/d/prefs"))
	require.ErrorIs(t, s.Set("late", true), ErrClosed)
}

func Test_Store_Subscriber_Ends_On_Newest_State_When_Writes_Follow_Load(t *testing.T) {
	mem := fs.NewMemory()
	held := newHeldReadFS(mem)
	t.Cleanup(held.release)

	r := NewRegistry(WithFS(held), WithDir("/d"), WithLogger(discardLogger()))

	s, err := r.Open("prefs")
	require.NoError(t, err)

	ch, cancel := s.Subscribe()
	t.Cleanup(cancel)

	done := make(chan struct{})

	go func() {
		defer close(done)

		// Mutate as fast as possible across the moment the store turns ready.
		for i := 0; i < 200; i++ {
			if err := s.Set("n", i); err != nil {
				t.Errorf("Set: %v", err)

				return
			}
		}
	}()

	held.release()
	<-done

	require.NoError(t, s.Sync(testContext(t)))

	if diff := cmp.Diff(s.Snapshot().Map(), receive(t, ch).Map()); diff != "" {
		t.Fatalf("latest snapshot is stale (-want +got):\n%s", diff)
	}
}
