package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
	"github.com/okian/framecoach/pkg/logger"
	"github.com/okian/framecoach/pkg/metrics"
)

// MemoryTemplateStore keeps templates in process memory.
type MemoryTemplateStore struct {
	mu     sync.RWMutex
	byUser map[string]map[string]model.Template
	hub    *watchHub
	cfg    templateConfig
	closed bool
}

var _ TemplateStore = (*MemoryTemplateStore)(nil)

// NewMemoryTemplateStore returns an empty store.
func NewMemoryTemplateStore(opts ...TemplateOption) *MemoryTemplateStore {
	cfg := defaultTemplateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryTemplateStore{
		byUser: make(map[string]map[string]model.Template),
		hub:    newWatchHub(),
		cfg:    cfg,
	}
}

func (s *MemoryTemplateStore) List(ctx context.Context, userID string) (out []model.Template, err error) {
	defer observe("list", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.snapshot(userID), nil
}

func (s *MemoryTemplateStore) Get(ctx context.Context, userID, id string) (out model.Template, err error) {
	defer observe("get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Template{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Template{}, ErrClosed
	}
	t, ok := s.byUser[userID][id]
	if !ok {
		return model.Template{}, ErrTemplateNotFound
	}
	return t, nil
}

func (s *MemoryTemplateStore) Create(ctx context.Context, userID, name string, mode telemetry.Mode, t telemetry.Telemetry) (out model.Template, err error) {
	defer observe("create", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return model.Template{}, err
	}
	tmpl, err := newTemplate(s.cfg.newID(), userID, name, mode, t)
	if err != nil {
		return model.Template{}, err
	}
	tmpl.CreatedAt = s.cfg.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Template{}, ErrClosed
	}
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]model.Template)
	}
	s.byUser[userID][tmpl.ID] = tmpl
	s.hub.publish(userID, s.snapshot(userID))
	s.cfg.log.Debug(ctx, "template created",
		logger.String("user", userID), logger.String("id", tmpl.ID), logger.String("mode", mode.String()))
	return tmpl, nil
}

func (s *MemoryTemplateStore) Delete(ctx context.Context, userID, id string) (err error) {
	defer observe("delete", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.byUser[userID][id]; !ok {
		return ErrTemplateNotFound
	}
	delete(s.byUser[userID], id)
	if len(s.byUser[userID]) == 0 {
		delete(s.byUser, userID)
	}
	s.hub.publish(userID, s.snapshot(userID))
	return nil
}

func (s *MemoryTemplateStore) Watch(ctx context.Context, userID string) (<-chan []model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.hub.subscribe(ctx, userID, s.snapshot(userID))
}

// Close ends all subscriptions. Further calls fail with ErrClosed.
func (s *MemoryTemplateStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.close()
	return nil
}

// snapshot must be called with s.mu held.
func (s *MemoryTemplateStore) snapshot(userID string) []model.Template {
	out := make([]model.Template, 0, len(s.byUser[userID]))
	for _, t := range s.byUser[userID] {
		out = append(out, t)
	}
	sortTemplates(out)
	return out
}

func sortTemplates(ts []model.Template) {
	slices.SortFunc(ts, func(a, b model.Template) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// observe records the outcome of a template operation.
func observe(op string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = fault.KindName(*err)
	}
	metrics.RecordTemplateOp(op, outcome, float64(time.Since(start).Milliseconds()))
}
