package service

import (
	"errors"
	"fmt"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
)

// Sentinel errors returned by the service.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNoAnalyzer = errors.New("no analyzer configured")
	ErrNoResult   = fmt.Errorf("session has no analysis result: %w", fault.ErrNotFound)

	// ErrDuplicateRequest is returned by Submit for a request ID seen before.
	ErrDuplicateRequest = model.ErrDuplicateRequest
)
