// Package analyzer talks to the vision service that turns an image into raw
// telemetry.
package analyzer

import (
	"context"
	"errors"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

// Sentinel errors.
var (
	ErrStatus   = errors.New("analyzer returned a non-success status")
	ErrTooLarge = errors.New("analyzer response exceeds the size limit")
	ErrNoURL    = errors.New("analyzer url is required")
)

// Request is one image to analyse. Template is forwarded as context only.
type Request struct {
	Image    string
	Mode     telemetry.Mode
	Template *model.Template
}

// Analyzer returns the raw analyzer response. Interpreting it is the
// caller's job.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]byte, error)
}

// Func adapts a function to Analyzer.
type Func func(ctx context.Context, req Request) ([]byte, error)

func (f Func) Analyze(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }

// StaticAnalyzer always returns the same payload.
type StaticAnalyzer struct {
	payload []byte
}

// NewStatic returns an analyzer that answers with payload.
func NewStatic(payload []byte) *StaticAnalyzer {
	return &StaticAnalyzer{payload: append([]byte(nil), payload...)}
}

func (s *StaticAnalyzer) Analyze(ctx context.Context, _ Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.payload...), nil
}
