package service

import (
	"context"
	"errors"

	"github.com/okian/framecoach/internal/adapters/repository"
	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/overlay"
	"github.com/okian/framecoach/internal/domain/telemetry"
	"github.com/okian/framecoach/pkg/logger"
	"github.com/okian/framecoach/pkg/metrics"
)

// ProjectOverlay draws the guides for t on a w x h canvas.
func (s *Service) ProjectOverlay(ctx context.Context, t telemetry.Telemetry, mode telemetry.Mode, tmpl *model.Template, w, h float64) ([]overlay.Primitive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prims, err := s.projector.Project(t, mode, tmpl, w, h)
	if err != nil {
		return nil, inputError("overlay", err)
	}
	metrics.RecordOverlayProjection(mode.String())
	return prims, nil
}

// ProjectSessionOverlay draws the guides for the latest result of a session.
func (s *Service) ProjectSessionOverlay(ctx context.Context, sessionID string, w, h float64) ([]overlay.Primitive, error) {
	st, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.Result == nil {
		return nil, ErrNoResult
	}
	res := st.Result
	return s.ProjectOverlay(ctx, res.Telemetry, res.Mode, res.Template, w, h)
}

// SaveTemplate stores the latest result of a session as a template.
func (s *Service) SaveTemplate(ctx context.Context, userID, name, sessionID string) (model.Template, error) {
	st, err := s.Session(ctx, sessionID)
	if err != nil {
		return model.Template{}, err
	}
	if st.Result == nil {
		return model.Template{}, ErrNoResult
	}
	return s.CreateTemplate(ctx, userID, name, st.Result.Mode, st.Result.Telemetry)
}

// CreateTemplate stores an explicit telemetry snapshot as a template.
func (s *Service) CreateTemplate(ctx context.Context, userID, name string, mode telemetry.Mode, t telemetry.Telemetry) (model.Template, error) {
	tmpl, err := s.templates.Create(ctx, userID, name, mode, t)
	if err != nil {
		return model.Template{}, storeError("templates.create", err)
	}
	s.logger.Info(ctx, "template saved",
		logger.String("user", userID), logger.String("template", tmpl.ID), logger.String("mode", mode.String()))
	return tmpl, nil
}

// ListTemplates returns the user's templates, oldest first.
func (s *Service) ListTemplates(ctx context.Context, userID string) ([]model.Template, error) {
	list, err := s.templates.List(ctx, userID)
	if err != nil {
		return nil, storeError("templates.list", err)
	}
	return list, nil
}

// GetTemplate returns one of the user's templates.
func (s *Service) GetTemplate(ctx context.Context, userID, id string) (model.Template, error) {
	t, err := s.templates.Get(ctx, userID, id)
	if err != nil {
		return model.Template{}, storeError("templates.get", err)
	}
	return t, nil
}

// DeleteTemplate removes a template. Sessions that referenced it analyse
// without guidance from then on.
func (s *Service) DeleteTemplate(ctx context.Context, userID, id string) error {
	if err := s.templates.Delete(ctx, userID, id); err != nil {
		return storeError("templates.delete", err)
	}
	s.logger.Info(ctx, "template deleted", logger.String("user", userID), logger.String("template", id))
	return nil
}

// WatchTemplates streams the user's template list until ctx is done.
func (s *Service) WatchTemplates(ctx context.Context, userID string) (<-chan []model.Template, error) {
	ch, err := s.templates.Watch(ctx, userID)
	if err != nil {
		return nil, storeError("templates.watch", err)
	}
	return ch, nil
}

// storeError maps a template store error onto the fault taxonomy.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, repository.ErrTemplateNotFound):
		return fault.Wrap(op, fault.ErrNotFound, err)
	case errors.Is(err, repository.ErrInvalidTemplate):
		detail := "template is invalid"
		switch {
		case errors.Is(err, model.ErrTemplateNameTooLong):
			detail = model.ErrTemplateNameTooLong.Error()
		case errors.Is(err, telemetry.ErrModeMismatch), errors.Is(err, telemetry.ErrUnknownMode):
			detail = "telemetry does not match the template mode"
		}
		return &fault.Error{Op: op, Kind: fault.ErrInput, Err: err, Detail: detail}
	default:
		return fault.Wrap(op, fault.ErrStore, err)
	}
}

func inputError(op string, err error) error {
	return &fault.Error{Op: op, Kind: fault.ErrInput, Err: err, Detail: err.Error()}
}
