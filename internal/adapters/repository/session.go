package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/pkg/metrics"
)

// SessionStore tracks the newest generation of every session and the state
// it last published. Only the newest generation may publish.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	// evictedGen is the highest generation ever evicted. New entries start
	// above it so a reused session ID never repeats a generation.
	evictedGen uint64

	now                   func() time.Time
	ttl                   time.Duration
	metricsUpdateInterval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type sessionEntry struct {
	gen    uint64
	cancel context.CancelFunc
	state  model.SessionState
}

// NewSessionStore creates the store and starts its metrics updater, which
// runs until ctx is done or Close is called.
func NewSessionStore(ctx context.Context, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		sessions:              make(map[string]*sessionEntry),
		now:                   time.Now,
		ttl:                   30 * time.Minute,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Begin opens a new generation for sessionID, cancels the context of the
// previous one and marks the session pending.
func (s *SessionStore) Begin(sessionID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &sessionEntry{gen: s.evictedGen}
		s.sessions[sessionID] = e
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.state = model.SessionState{
		SessionID:  sessionID,
		Status:     model.StatusPending,
		Generation: e.gen,
		Result:     e.state.Result,
		UpdatedAt:  s.now().UTC(),
	}
	return e.gen
}

// Attach derives the context for generation gen from parent. The context is
// cancelled as soon as a newer generation begins. A stale gen fails with
// fault.ErrSuperseded.
func (s *SessionStore) Attach(parent context.Context, sessionID string, gen uint64) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok || e.gen != gen {
		return nil, nil, fault.New("sessions.attach", fault.ErrSuperseded, sessionID)
	}
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	return ctx, cancel, nil
}

// Publish stores state when gen is still the newest generation of the
// session. It reports whether the state was applied. A state without a
// result keeps the previously published one.
func (s *SessionStore) Publish(_ context.Context, sessionID string, gen uint64, state model.SessionState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if gen != e.gen {
		return false, nil
	}
	state.SessionID = sessionID
	state.Generation = gen
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = s.now().UTC()
	}
	if state.Result == nil {
		state.Result = e.state.Result
	}
	e.state = state
	if state.Terminal() && e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	return true, nil
}

// Current returns the newest generation of sessionID, zero when unknown.
func (s *SessionStore) Current(sessionID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e.gen
	}
	return 0
}

// Get returns the latest published state of sessionID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (model.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return model.SessionState{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return model.SessionState{}, ErrSessionNotFound
	}
	return e.state, nil
}

// Count returns the number of tracked sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close cancels in-flight generations and stops the background goroutine.
func (s *SessionStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sessions {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
	return nil
}

func (s *SessionStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.evictExpired()
				metrics.UpdateActiveSessions(s.Count())
			}
		}
	}()
}

// evictExpired drops finished sessions idle for longer than the TTL.
func (s *SessionStore) evictExpired() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		if e.state.Terminal() && e.state.UpdatedAt.Before(cutoff) {
			if e.gen > s.evictedGen {
				s.evictedGen = e.gen
			}
			delete(s.sessions, id)
		}
	}
}
