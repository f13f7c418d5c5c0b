package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/framecoach/pkg/logger"
)

type templateConfig struct {
	now   func() time.Time
	newID func() string
	log   logger.Logger
}

func defaultTemplateConfig() templateConfig {
	return templateConfig{
		now:   time.Now,
		newID: uuid.NewString,
		log:   logger.Nop(),
	}
}

// TemplateOption configures a template store.
type TemplateOption func(*templateConfig)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) TemplateOption {
	return func(c *templateConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides template ID generation.
func WithIDGenerator(gen func() string) TemplateOption {
	return func(c *templateConfig) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithTemplateLogger sets the store logger.
func WithTemplateLogger(l logger.Logger) TemplateOption {
	return func(c *templateConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// SessionOption configures the SessionStore.
type SessionOption func(*SessionStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) SessionOption {
	return func(s *SessionStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithSessionTTL drops finished sessions that have not changed for ttl.
// Zero keeps them forever.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides the state timestamp source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}
