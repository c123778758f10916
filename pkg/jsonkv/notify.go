package jsonkv

import "sync"

// changeHub fans document snapshots out to subscribers.
//
// Each subscriber channel holds one snapshot. Publishing never blocks: when a
// subscriber has not drained the previous snapshot it is replaced by the
// newer one, so slow readers see the latest state and skip intermediate ones.
type changeHub struct {
	mu     sync.Mutex
	subs   map[int]chan *Document
	nextID int
	closed bool
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[int]chan *Document)}
}

// subscribe registers a new channel, primed with initial when it is not nil.
// After close it returns an already closed channel.
func (h *changeHub) subscribe(initial *Document) (<-chan *Document, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan *Document, 1)
	if h.closed {
		close(ch)

		return ch, func() {}
	}

	if initial != nil {
		ch <- initial
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}

	return ch, cancel
}

func (h *changeHub) hasSubscribers() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs) > 0
}

// publish delivers doc to every subscriber. Each subscriber gets its own
// clone.
func (h *changeHub) publish(doc *Document) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		snapshot := doc.Clone()

		select {
		case ch <- snapshot:
			continue
		default:
		}

		// Drop the stale snapshot, then retry. The hub lock keeps other
		// publishers out, so the second send always has room.
		select {
		case <-ch:
		default:
		}

		ch <- snapshot
	}
}

// close closes every subscriber channel. Later subscriptions get closed
// channels.
func (h *changeHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
