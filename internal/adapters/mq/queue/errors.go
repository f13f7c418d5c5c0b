package queue

import (
	"errors"
	"fmt"

	"github.com/okian/framecoach/internal/domain/fault"
)

// Sentinel kinds for enqueue failures.
var (
	ErrFull   = fmt.Errorf("analysis queue is full: %w", fault.ErrBackpressure)
	ErrClosed = errors.New("analysis queue is closed")
)
