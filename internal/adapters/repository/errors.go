package repository

import (
	"errors"
	"fmt"

	"github.com/okian/framecoach/internal/domain/fault"
)

// Sentinel kinds for store errors.
var (
	ErrTemplateNotFound = fmt.Errorf("template %w", fault.ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("session %w", fault.ErrNotFound)
	ErrInvalidTemplate  = fmt.Errorf("invalid template: %w", fault.ErrInput)
	ErrClosed           = errors.New("store closed")
)
