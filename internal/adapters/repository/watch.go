package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/okian/framecoach/internal/domain/model"
)

// watchHub fans template snapshots out to per-user subscribers. Each
// subscriber channel holds one snapshot; a newer one replaces an unread one.
// Callers publish while holding their store's write lock so snapshots reach
// subscribers in commit order.
type watchHub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	done chan struct{}
	wg   sync.WaitGroup
	shut bool
}

type subscriber struct {
	ch     chan []model.Template
	closed bool
}

func newWatchHub() *watchHub {
	return &watchHub{
		subs: make(map[string]map[*subscriber]struct{}),
		done: make(chan struct{}),
	}
}

func (h *watchHub) subscribe(ctx context.Context, userID string, initial []model.Template) (<-chan []model.Template, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shut {
		return nil, ErrClosed
	}

	s := &subscriber{ch: make(chan []model.Template, 1)}
	s.ch <- slices.Clone(initial)
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case <-ctx.Done():
		case <-h.done:
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(userID, s)
	}()
	return s.ch, nil
}

func (h *watchHub) publish(userID string, snapshot []model.Template) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[userID] {
		offer(s.ch, slices.Clone(snapshot))
	}
}

// offer replaces any unread snapshot with v. Only publish sends, under h.mu,
// so the second send never blocks.
func offer(ch chan []model.Template, v []model.Template) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// remove must be called with h.mu held.
func (h *watchHub) remove(userID string, s *subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	delete(h.subs[userID], s)
	if len(h.subs[userID]) == 0 {
		delete(h.subs, userID)
	}
}

func (h *watchHub) subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// close ends every subscription and waits for the watcher goroutines.
func (h *watchHub) close() {
	h.mu.Lock()
	if h.shut {
		h.mu.Unlock()
		return
	}
	h.shut = true
	close(h.done)
	h.mu.Unlock()
	h.wg.Wait()
}
