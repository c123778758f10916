package jsonkv

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Registry guarantees a single [Store] per storage key.
//
// Create one per application (or per test) and pass it where stores are
// needed. Entries live until [Registry.Dispose]; nothing is evicted
// automatically.
type Registry struct {
	base Options

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry returns an empty registry. opts become the defaults for every
// store it opens.
func NewRegistry(opts ...Option) *Registry {
	var base Options
	for _, opt := range opts {
		opt(&base)
	}

	return &Registry{base: base, stores: make(map[string]*Store)}
}

// Open returns the store for key, creating it on first use. A new store
// starts loading its backing file in the background; see [Store.Ready].
//
// When a store for key already exists it is returned as is and opts are
// ignored.
func (r *Registry) Open(key string, opts ...Option) (*Store, error) {
	if err := validateKey(key); err != nil {
		return nil, &Error{Key: key, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[key]; ok {
		return s, nil
	}

	o := buildOptions(r.base, opts)

	path, err := ResolvePath(key, o.Dir)
	if err != nil {
		return nil, &Error{Key: key, Err: err}
	}

	s, err := newStore(key, path, o)
	if err != nil {
		return nil, err
	}

	r.stores[key] = s

	return s, nil
}

// Lookup returns the live store for key without creating one.
func (r *Registry) Lookup(key string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stores[key]

	return s, ok
}

// Dispose removes s from the registry and closes its change subscriptions.
// It does not flush; call [Store.Sync] first when durability matters. The
// next Open for the same key builds a fresh store that reloads from disk.
func (r *Registry) Dispose(s *Store) {
	if s == nil {
		return
	}

	r.mu.Lock()
	if cur, ok := r.stores[s.key]; ok && cur == s {
		delete(r.stores, s.key)
	}
	r.mu.Unlock()

	s.close()
}

// Destroy disposes s, waits for its in-flight write and deletes the backing
// file.
func (r *Registry) Destroy(ctx context.Context, s *Store) error {
	r.Dispose(s)

	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	if err := s.flusher.wait(ctx); err != nil && ctx.Err() != nil {
		return err
	}

	return s.file.remove()
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.stores)
}

// Keys returns the keys of all live stores, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.stores))
	for k := range r.stores {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// Close waits for the pending writes of every live store and disposes it.
// It does not request new writes. Errors are joined; every store is disposed
// regardless.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	var errs []error

	for _, s := range stores {
		err := s.WaitReady(ctx)
		if err == nil {
			err = s.flusher.wait(ctx)
		}

		if err != nil {
			errs = append(errs, err)
		}

		r.Dispose(s)
	}

	return errors.Join(errs...)
}
