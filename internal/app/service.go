// Package service wires the advisory pipeline: analyzer, telemetry parsing,
// rule engine, session bookkeeping and template storage.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/framecoach/internal/adapters/analyzer"
	"github.com/okian/framecoach/internal/adapters/mq/queue"
	"github.com/okian/framecoach/internal/adapters/mq/worker"
	"github.com/okian/framecoach/internal/adapters/repository"
	"github.com/okian/framecoach/internal/domain/dedupe"
	"github.com/okian/framecoach/internal/domain/overlay"
	"github.com/okian/framecoach/internal/domain/rules"
	"github.com/okian/framecoach/pkg/logger"
	"github.com/okian/framecoach/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// Service implements the operations behind the HTTP API.
type Service struct {
	mu sync.RWMutex

	analyzer  analyzer.Analyzer
	templates repository.TemplateStore
	engine    *rules.Engine
	projector *overlay.Projector

	// Created by Start.
	sessions *repository.SessionStore
	deduper  dedupe.Deduper
	queue    queue.Queue
	pool     *worker.Pool

	workerCount int
	queueSize   int
	dedupeSize  int
	sessionTTL  time.Duration

	now   func() time.Time
	newID func() string

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithAnalyzer sets the vision analyzer. It is required.
func WithAnalyzer(a analyzer.Analyzer) Option {
	return func(s *Service) {
		if a != nil {
			s.analyzer = a
		}
	}
}

// WithTemplateStore sets the template store. The service closes it on Stop.
func WithTemplateStore(ts repository.TemplateStore) Option {
	return func(s *Service) {
		if ts != nil {
			s.templates = ts
		}
	}
}

// WithEngine replaces the default rule engine.
func WithEngine(e *rules.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithWorkerCount sets the number of worker goroutines for async submits.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending async submits.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the number of remembered request IDs.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSessionTTL sets how long finished sessions are kept.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithClock overrides the result timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides result, job and session ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Without WithTemplateStore an in-memory store is used.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		dedupeSize:  10000,
		sessionTTL:  30 * time.Minute,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.engine == nil {
		s.engine = rules.NewEngine()
	}
	if s.templates == nil {
		s.templates = repository.NewMemoryTemplateStore(repository.WithTemplateLogger(s.logger.Named("templates")))
	}
	s.projector = overlay.NewProjector(overlay.WithEngine(s.engine))
	return s
}

// Start creates the session table, the job queue and the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.analyzer == nil {
		return ErrNoAnalyzer
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.sessions = repository.NewSessionStore(runCtx, repository.WithSessionTTL(s.sessionTTL))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, jobRunner{svc: s, sessions: s.sessions},
		worker.WithPoolLogger(s.logger.Named("worker")))
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "advisory service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains pending jobs, cancels in-flight analyses and closes the stores.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool, sessions, cancelRun := s.pool, s.sessions, s.cancel
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping advisory service...")
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	_ = sessions.Close()
	if err := s.templates.Close(); err != nil {
		s.logger.Warn(ctx, "template store close failed", logger.Error(err))
	}
	cancelRun()
	s.logger.Info(ctx, "advisory service stopped")
}

// components returns the Start-created parts, or ErrNotStarted.
func (s *Service) components() (*repository.SessionStore, queue.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.sessions, s.queue, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"maxCommands": s.engine.Thresholds().MaxCommands,
	}
	if s.started {
		queueLen := s.queue.Len()
		sessions := s.sessions.Count()
		stats["queueLength"] = queueLen
		stats["sessions"] = sessions
		stats["requestIds"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateActiveSessions(sessions)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}
