package jsonkv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the shared in-memory state of one backing file. Obtain one from
// [Registry.Open].
//
// All methods are safe for concurrent use. Mutations apply to memory
// synchronously and then request a flush; they never report disk errors.
type Store struct {
	key  string
	file *backingFile
	log  *slog.Logger

	onInitError  func(key string, err error)
	onWriteError func(key string, err error)

	flusher *flusher
	changes *changeHub
	readyCh chan struct{}

	mu      sync.Mutex
	doc     *Document
	ready   bool
	closed  bool
	initErr error

	// Mutations made before the load finished. They are replayed on top of
	// the loaded document.
	pending          []func(*Document)
	flushBeforeReady bool
}

func newStore(key, path string, o Options) (*Store, error) {
	seed, err := normalizeSeed(o.Seed)
	if err != nil {
		return nil, &Error{Key: key, Path: path, Err: err}
	}

	s := &Store{
		key:          key,
		file:         &backingFile{fs: o.FS, key: key, path: path},
		log:          o.Logger.With("key", key),
		onInitError:  o.OnInitError,
		onWriteError: o.OnWriteError,
		changes:      newChangeHub(),
		readyCh:      make(chan struct{}),
		doc:          seed.Clone(),
	}
	s.flusher = newFlusher(s.writeSnapshot)

	go s.load(seed)

	return s, nil
}

func normalizeSeed(seed *Document) (*Document, error) {
	doc := NewDocument()
	if seed == nil {
		return doc, nil
	}

	data, err := json.Marshal(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: seed: %w", ErrNotEncodable, err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: seed: %w", ErrNotEncodable, err)
	}

	return doc, nil
}

// load reads or creates the backing file and then marks the store ready.
func (s *Store) load(seed *Document) {
	loaded, err := s.file.loadOrCreate(seed)

	s.mu.Lock()
	if err == nil {
		for _, op := range s.pending {
			op(loaded)
		}

		s.doc = loaded
	}

	s.initErr = err
	s.pending = nil

	// A store disposed while loading neither writes nor notifies.
	closed := s.closed
	flush := s.flushBeforeReady && !closed
	s.flushBeforeReady = false
	fields := s.doc.Len()

	// Published under the lock, before any write can start, so the load
	// snapshot never lands after a newer one.
	if !closed && s.changes.hasSubscribers() {
		s.changes.publish(s.doc.Clone())
	}

	s.ready = true
	s.mu.Unlock()

	if err != nil {
		s.log.Error("loading backing file failed", "path", s.file.path, "err", err)

		if s.onInitError != nil {
			s.onInitError(s.key, err)
		}
	} else {
		s.log.Debug("backing file loaded", "path", s.file.path, "fields", fields)
	}

	// Requested before readiness is signaled so waiters observe the write.
	if flush {
		s.flusher.request()
	}

	close(s.readyCh)
}

// writeSnapshot encodes the current document and writes it. It is the
// flusher's write function.
func (s *Store) writeSnapshot() error {
	s.mu.Lock()
	data, err := s.doc.Encode()

	var snapshot *Document
	if err == nil && s.changes.hasSubscribers() {
		snapshot = s.doc.Clone()
	}
	s.mu.Unlock()

	if err != nil {
		err = &Error{Key: s.key, Path: s.file.path, Err: fmt.Errorf("%w: encode: %w", ErrWrite, err)}
	} else {
		err = s.file.writeAll(data)
	}

	if err != nil {
		s.log.Error("flush failed", "path", s.file.path, "err", err)

		if s.onWriteError != nil {
			s.onWriteError(s.key, err)
		}

		return err
	}

	s.log.Debug("flushed", "path", s.file.path, "bytes", len(data))

	if snapshot != nil {
		s.changes.publish(snapshot)
	}

	return nil
}

// Key returns the storage key.
func (s *Store) Key() string {
	return s.key
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.file.path
}

// Ready returns a channel that is closed once the initial load or creation
// of the backing file has finished, successfully or not.
func (s *Store) Ready() <-chan struct{} {
	return s.readyCh
}

// WaitReady blocks until [Store.Ready] is closed or ctx is done. It only
// returns ctx errors; check [Store.InitError] for load failures.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InitError returns the error from loading the backing file, or nil. It is
// meaningful once [Store.Ready] is closed.
func (s *Store) InitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.initErr
}

// Get returns a copy of the value stored under field. The second result is
// false if the field is absent.
func (s *Store) Get(field string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.doc.Get(field)
	if !ok {
		return nil, false
	}

	return cloneValue(v), true
}

// Set stores value under field and requests a flush.
//
// The value goes through the conversion policy: [WithConverter] if given,
// else [Documenter] or [json.Marshaler], else the value itself if it is a
// JSON primitive or a slice/map of them. Anything else fails with
// [ErrNotEncodable] and leaves the store unchanged.
func (s *Store) Set(field string, value any, opts ...WriteOption) error {
	o := buildWriteOptions(opts)

	form, err := toDocumentForm(value, o.convert)
	if err != nil {
		return fmt.Errorf("set %q: %w", field, err)
	}

	return s.mutate(o, func(d *Document) { d.Set(field, cloneValue(form)) })
}

// Delete removes field and requests a flush.
func (s *Store) Delete(field string, opts ...WriteOption) error {
	return s.mutate(buildWriteOptions(opts), func(d *Document) { d.Delete(field) })
}

// DeleteMany removes every listed field and requests a single flush.
func (s *Store) DeleteMany(fields []string, opts ...WriteOption) error {
	fields = append([]string(nil), fields...)

	return s.mutate(buildWriteOptions(opts), func(d *Document) { d.DeleteMany(fields) })
}

// Clear removes all fields and requests a flush.
func (s *Store) Clear(opts ...WriteOption) error {
	return s.mutate(buildWriteOptions(opts), func(d *Document) { d.Clear() })
}

// WriteData requests a flush without changing anything, typically after
// mutations made with [WithoutWrite].
func (s *Store) WriteData() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return s.closedErr()
	}

	if !s.ready {
		s.flushBeforeReady = true
		s.mu.Unlock()

		return nil
	}
	s.mu.Unlock()

	s.flusher.request()

	return nil
}

// Sync waits for readiness, requests a flush and blocks until the flush
// chain settles. It returns the error of the last physical write.
func (s *Store) Sync(ctx context.Context) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	if err := s.WriteData(); err != nil {
		return err
	}

	return s.flusher.wait(ctx)
}

// Size returns the size of the backing file in bytes. It fails with
// [ErrNotSupported] when the filesystem cannot report sizes.
func (s *Store) Size() (int64, error) {
	return s.file.sizeOf()
}

// Len returns the number of fields.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc.Len()
}

// Keys returns the field names in document order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc.Keys()
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc.Clone()
}

// Subscribe returns a channel of document snapshots, sent after the initial
// load and after every successful write. If the store is already ready the
// channel starts with the current state.
//
// Delivery is best-effort: a subscriber that falls behind only sees the
// newest snapshot. The channel is closed by cancel or when the store is
// disposed; it cannot be reopened.
func (s *Store) Subscribe() (<-chan *Document, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var initial *Document
	if s.ready {
		initial = s.doc.Clone()
	}

	return s.changes.subscribe(initial)
}

// Stats returns flush activity counters.
func (s *Store) Stats() FlushStats {
	return s.flusher.stats()
}

func (s *Store) mutate(o writeOptions, op func(*Document)) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return s.closedErr()
	}

	op(s.doc)

	if !s.ready {
		s.pending = append(s.pending, op)
		if !o.noWrite {
			s.flushBeforeReady = true
		}

		s.mu.Unlock()

		return nil
	}

	s.mu.Unlock()

	if !o.noWrite {
		s.flusher.request()
	}

	return nil
}

// close marks the store disposed and ends every subscription. A write in
// flight finishes on its own.
func (s *Store) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.changes.close()
}

func (s *Store) closedErr() error {
	return &Error{Key: s.key, Path: s.file.path, Err: ErrClosed}
}
