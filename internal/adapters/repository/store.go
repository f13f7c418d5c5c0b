// Package repository holds the template stores and the session table.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

// TemplateStore persists saved compositions per user.
type TemplateStore interface {
	// List returns the user's templates, oldest first.
	List(ctx context.Context, userID string) ([]model.Template, error)
	// Get returns ErrTemplateNotFound when the template does not exist or
	// belongs to a different user.
	Get(ctx context.Context, userID, id string) (model.Template, error)
	// Create stores a new template. The name is normalized first.
	Create(ctx context.Context, userID, name string, mode telemetry.Mode, t telemetry.Telemetry) (model.Template, error)
	// Delete removes a template. Deleting an unknown ID returns ErrTemplateNotFound.
	Delete(ctx context.Context, userID, id string) error
	// Watch emits the full template list now and after every change until ctx
	// is done. Slow readers only see the latest snapshot.
	Watch(ctx context.Context, userID string) (<-chan []model.Template, error)
	Close() error
}

// newTemplate checks the create arguments and builds the record.
func newTemplate(id, userID, name string, mode telemetry.Mode, t telemetry.Telemetry) (model.Template, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Template{}, fmt.Errorf("%w: user id is required", ErrInvalidTemplate)
	}
	if !mode.Valid() {
		return model.Template{}, fmt.Errorf("%w: %w", ErrInvalidTemplate, telemetry.ErrUnknownMode)
	}
	if err := t.Validate(mode); err != nil {
		return model.Template{}, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	n, err := model.NormalizeTemplateName(name)
	if err != nil {
		return model.Template{}, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return model.Template{ID: id, UserID: userID, Name: n, Mode: mode, Telemetry: t}, nil
}
