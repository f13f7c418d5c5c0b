package loadtest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/framecoach/pkg/logger"
)

// placeholder frame; the analyzer behind the service decides what it sees
var frameImage = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("framecoach load frame"))

type options struct {
	httpClient *http.Client
	log        logger.Logger
}

// Option configures Run.
type Option func(*options)

// WithHTTPClient replaces the default client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the progress logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Run submits cfg.Frames frames for each of cfg.Sessions sessions, resends
// each session's first frame to check idempotency, then waits for every
// session to settle on its newest generation. Sessions that settle on an
// older generation are reported as violations.
func Run(ctx context.Context, cfg Config, opts ...Option) (Stats, error) {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.validate(); err != nil {
		return Stats{}, err
	}

	start := time.Now()
	c := newClient(o.httpClient, cfg.BaseURL, cfg.Timeout)
	o.log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("frames", cfg.Frames),
		logger.Int("workers", cfg.Workers),
		logger.String("mode", cfg.Mode.String()))

	if err := c.health(ctx); err != nil {
		return Stats{}, err
	}

	r := &run{cfg: cfg, client: c, log: o.log, prefix: uuid.NewString()[:8]}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range cfg.Sessions {
		g.Go(func() error { return r.drive(gctx, fmt.Sprintf("load-%s-%04d", r.prefix, i)) })
	}
	err := g.Wait()

	r.stats.Duration = time.Since(start)
	o.log.Info(ctx, "load test finished",
		logger.Int("framesSubmitted", r.stats.FramesSubmitted),
		logger.Int("framesAccepted", r.stats.FramesAccepted),
		logger.Int("duplicates", r.stats.Duplicates),
		logger.Int("rejected", r.stats.Rejected),
		logger.Int("failed", r.stats.Failed),
		logger.Int("sessionsSettled", r.stats.SessionsSettled),
		logger.Int("sessionsFailed", r.stats.SessionsFailed),
		logger.Int("violations", len(r.stats.Violations)),
		logger.Duration("duration", r.stats.Duration),
		logger.Float64("framesPerSecond", r.stats.FramesPerSecond()))

	if err != nil {
		return r.stats, err
	}
	if n := len(r.stats.Violations); n > 0 {
		return r.stats, fmt.Errorf("%w: %d of %d sessions", ErrViolations, n, cfg.Sessions)
	}
	return r.stats, nil
}

type run struct {
	cfg    Config
	client *client
	log    logger.Logger
	prefix string

	mu    sync.Mutex
	stats Stats
}

func (r *run) drive(ctx context.Context, sid string) error {
	var (
		newest   uint64
		rejected bool
	)
	for i := range r.cfg.Frames {
		f := frame{SessionID: sid, RequestID: uuid.NewString(), Image: frameImage, Mode: r.cfg.Mode.String()}
		status, ack, err := r.client.submit(ctx, f)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.count(status, err)
		switch {
		case err != nil:
			r.log.Debug(ctx, "submit failed", logger.String("session", sid), logger.Error(err))
		case status == http.StatusAccepted:
			newest = max(newest, ack.Generation)
		case status == http.StatusTooManyRequests:
			rejected = true
		}

		if i == 0 && status == http.StatusAccepted {
			again, _, err := r.client.submit(ctx, f)
			if err == nil {
				r.count(again, nil)
				if again != http.StatusOK {
					r.violation("session %s: resubmitted request answered %d", sid, again)
				}
			}
		}
	}
	if newest == 0 {
		r.mu.Lock()
		r.stats.SessionsFailed++
		r.mu.Unlock()
		return nil
	}
	return r.settle(ctx, sid, newest, rejected)
}

// settle polls sid until it reaches a terminal state. A rejected frame
// still advances the generation, so newer generations are accepted then.
func (r *run) settle(ctx context.Context, sid string, newest uint64, rejected bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
	defer cancel()
	tick := time.NewTicker(r.cfg.PollInterval)
	defer tick.Stop()

	for {
		st, err := r.client.session(ctx, sid)
		if err == nil && (st.Status == "done" || st.Status == "failed") {
			switch {
			case st.Generation < newest:
				r.violation("session %s: settled on generation %d, newest is %d", sid, st.Generation, newest)
			case st.Generation > newest && !rejected:
				r.violation("session %s: unexpected generation %d, newest is %d", sid, st.Generation, newest)
			default:
				r.mu.Lock()
				if st.Status == "done" {
					r.stats.SessionsSettled++
				} else {
					r.stats.SessionsFailed++
				}
				r.mu.Unlock()
			}
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				r.violation("session %s: %v after %s", sid, ErrNotSettled, r.cfg.PollTimeout)
				return nil
			}
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (r *run) count(status int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.FramesSubmitted++
	switch {
	case err != nil:
		r.stats.Failed++
	case status == http.StatusAccepted:
		r.stats.FramesAccepted++
	case status == http.StatusOK:
		r.stats.Duplicates++
	case status == http.StatusTooManyRequests:
		r.stats.Rejected++
	default:
		r.stats.Failed++
	}
}

func (r *run) violation(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Violations = append(r.stats.Violations, fmt.Sprintf(format, args...))
}
