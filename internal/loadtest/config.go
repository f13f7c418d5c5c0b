// Package loadtest drives a running advisor over HTTP with concurrent
// sessions and checks that every session settles on its newest frame.
package loadtest

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/framecoach/internal/domain/telemetry"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string         // Base URL of the service
	Sessions     int            // Concurrent camera sessions
	Frames       int            // Frames submitted per session, in order
	Mode         telemetry.Mode // Mode of every frame
	Workers      int            // Sessions driven at once
	Timeout      time.Duration  // Per-request timeout
	PollInterval time.Duration  // Delay between session polls
	PollTimeout  time.Duration  // How long a session may take to settle
}

// DefaultConfig returns settings suited to a local instance.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:9080",
		Sessions:     50,
		Frames:       5,
		Mode:         telemetry.ModeLandscape,
		Workers:      runtime.NumCPU() * 2,
		Timeout:      30 * time.Second,
		PollInterval: 200 * time.Millisecond,
		PollTimeout:  2 * time.Minute,
	}
}

func (c Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base URL is required", ErrConfig)
	case c.Sessions <= 0 || c.Frames <= 0:
		return fmt.Errorf("%w: sessions and frames must be positive", ErrConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrConfig)
	case !c.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %q", ErrConfig, c.Mode)
	case c.PollInterval <= 0 || c.PollTimeout <= 0:
		return fmt.Errorf("%w: poll interval and timeout must be positive", ErrConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	FramesSubmitted int           `json:"framesSubmitted"`
	FramesAccepted  int           `json:"framesAccepted"`
	Duplicates      int           `json:"duplicates"`
	Rejected        int           `json:"rejected"`
	Failed          int           `json:"failed"`
	SessionsSettled int           `json:"sessionsSettled"`
	SessionsFailed  int           `json:"sessionsFailed"`
	Violations      []string      `json:"violations,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// FramesPerSecond is the submission throughput.
func (s Stats) FramesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.FramesSubmitted) / s.Duration.Seconds()
}
