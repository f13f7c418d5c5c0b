package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/okian/framecoach/internal/adapters/analyzer"
	"github.com/okian/framecoach/internal/adapters/repository"
	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/rationale"
	"github.com/okian/framecoach/internal/domain/telemetry"
	"github.com/okian/framecoach/pkg/logger"
	"github.com/okian/framecoach/pkg/metrics"
)

// rawLogLimit caps how much of an unparseable analyzer reply is logged.
const rawLogLimit = 512

// RunAnalysis analyses one image synchronously. A newer request for the same
// session cancels this one, which then fails with fault.ErrSuperseded.
func (s *Service) RunAnalysis(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error) {
	sessions, _, err := s.components()
	if err != nil {
		return model.AnalysisResult{}, err
	}
	req, err = s.normalize(req)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	gen := sessions.Begin(req.SessionID)
	return s.execute(ctx, sessions, req, gen)
}

// Submit queues an analysis and returns at once. The outcome is published
// to the session. A repeated RequestID fails with ErrDuplicateRequest.
func (s *Service) Submit(ctx context.Context, req model.AnalysisRequest) (model.Job, error) {
	sessions, q, err := s.components()
	if err != nil {
		return model.Job{}, err
	}
	req, err = s.normalize(req)
	if err != nil {
		return model.Job{}, err
	}
	if req.RequestID != "" && s.deduper.SeenAndRecord(ctx, req.RequestID) {
		metrics.RecordDuplicateSubmit()
		s.logger.Debug(ctx, "duplicate submit ignored", logger.String("request", req.RequestID))
		return model.Job{}, ErrDuplicateRequest
	}

	gen := sessions.Begin(req.SessionID)
	job := model.Job{ID: s.newID(), Generation: gen, Request: req, Enqueued: s.now().UTC()}
	if err := q.Enqueue(ctx, job); err != nil {
		if req.RequestID != "" {
			s.deduper.Unrecord(ctx, req.RequestID)
		}
		err = fault.Wrap("submit", fault.ErrBackpressure, err)
		s.publishFailure(ctx, sessions, req, gen, err)
		s.logger.Warn(ctx, "analysis rejected",
			logger.String("session", req.SessionID), logger.Error(err))
		return model.Job{}, err
	}
	return job, nil
}

// Session returns the latest published state of a session.
func (s *Service) Session(ctx context.Context, sessionID string) (model.SessionState, error) {
	sessions, _, err := s.components()
	if err != nil {
		return model.SessionState{}, err
	}
	return sessions.Get(ctx, sessionID)
}

// jobRunner executes queued jobs for the worker pool.
type jobRunner struct {
	svc      *Service
	sessions *repository.SessionStore
}

func (r jobRunner) Run(ctx context.Context, job model.Job) error {
	_, err := r.svc.execute(ctx, r.sessions, job.Request, job.Generation)
	return err
}

func (s *Service) normalize(req model.AnalysisRequest) (model.AnalysisRequest, error) {
	req.Image = strings.TrimSpace(req.Image)
	if !hasImageData(req.Image) || !req.Mode.Valid() {
		return req, fault.New("analyze", fault.ErrInput, "")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		req.SessionID = s.newID()
	}
	return req, nil
}

// hasImageData reports whether image carries any bytes. A data URL counts
// only when something follows the comma.
func hasImageData(image string) bool {
	if strings.HasPrefix(image, "data:") {
		_, payload, ok := strings.Cut(image, ",")
		return ok && strings.Trim(payload, "= \t\r\n") != ""
	}
	return image != ""
}

// execute runs the pipeline for generation gen and publishes the outcome if
// gen is still the newest.
func (s *Service) execute(ctx context.Context, sessions *repository.SessionStore, req model.AnalysisRequest, gen uint64) (model.AnalysisResult, error) {
	start := time.Now()
	log := s.logger.With(logger.String("session", req.SessionID), logger.Uint64("generation", gen))

	runCtx, cancel, err := sessions.Attach(ctx, req.SessionID, gen)
	if err != nil {
		metrics.RecordSuperseded()
		return model.AnalysisResult{}, err
	}
	defer cancel()

	res, err := s.analyze(runCtx, req, gen, log)
	if err == nil {
		var applied bool
		applied, err = sessions.Publish(ctx, req.SessionID, gen, model.SessionState{
			Status:     model.StatusDone,
			Mode:       res.Mode,
			TemplateID: res.TemplateID,
			Result:     &res,
		})
		if err == nil && !applied {
			err = fault.New("publish", fault.ErrSuperseded, req.SessionID)
		}
	}
	if err != nil && ctx.Err() == nil && runCtx.Err() != nil && !errors.Is(err, fault.ErrSuperseded) {
		err = fault.Wrap("analyze", fault.ErrSuperseded, err)
	}

	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordAnalysis(req.Mode.String(), fault.KindName(err), latency)
		if errors.Is(err, fault.ErrSuperseded) {
			metrics.RecordSuperseded()
			log.Debug(ctx, "analysis superseded")
			return model.AnalysisResult{}, err
		}
		s.publishFailure(ctx, sessions, req, gen, err)
		log.Warn(ctx, "analysis failed", logger.String("kind", fault.KindName(err)), logger.Error(err))
		return model.AnalysisResult{}, err
	}

	metrics.RecordAnalysis(req.Mode.String(), "ok", latency)
	log.Info(ctx, "analysis complete",
		logger.String("mode", res.Mode.String()),
		logger.Int("commands", len(res.Commands)),
		logger.Bool("template", res.TemplateID != ""),
		logger.Float64("latency_ms", latency),
	)
	return res, nil
}

func (s *Service) analyze(ctx context.Context, req model.AnalysisRequest, gen uint64, log logger.Logger) (model.AnalysisResult, error) {
	tmpl := s.resolveTemplate(ctx, req, log)

	raw, err := s.analyzer.Analyze(ctx, analyzer.Request{Image: req.Image, Mode: req.Mode, Template: tmpl})
	if err != nil {
		return model.AnalysisResult{}, fault.Wrap("analyze", fault.ErrAnalyzer, err)
	}

	t, err := telemetry.Parse(raw, req.Mode)
	if err != nil {
		log.Debug(ctx, "unparseable analyzer reply", logger.String("raw", clip(raw, rawLogLimit)), logger.Error(err))
		return model.AnalysisResult{}, fault.Wrap("parse", fault.ErrParse, err)
	}

	cmds, err := s.engine.Evaluate(t, req.Mode, tmpl)
	if err != nil {
		return model.AnalysisResult{}, fault.Wrap("evaluate", fault.ErrParse, err)
	}
	for _, c := range cmds {
		metrics.RecordCommand(string(c.Rule), strconv.Itoa(c.Priority))
	}

	res := model.AnalysisResult{
		ID:         s.newID(),
		SessionID:  req.SessionID,
		Generation: gen,
		Mode:       req.Mode,
		Telemetry:  t,
		Commands:   cmds,
		Rationale:  rationale.Select(cmds, tmpl.ActiveFor(req.Mode), t.AIRationale),
		Timestamp:  s.now().UTC(),
		Template:   tmpl,
	}
	if tmpl != nil {
		res.TemplateID = tmpl.ID
	}
	return res, nil
}

// resolveTemplate returns the template to compare against, or nil. Lookup
// failures never fail the analysis: a deleted or unreachable template simply
// deactivates guidance.
func (s *Service) resolveTemplate(ctx context.Context, req model.AnalysisRequest, log logger.Logger) *model.Template {
	tmpl := req.Template
	if tmpl == nil && req.TemplateID != "" {
		t, err := s.templates.Get(ctx, req.UserID, req.TemplateID)
		if err != nil {
			log.Warn(ctx, "template unavailable, continuing without it",
				logger.String("template", req.TemplateID), logger.Error(err))
			return nil
		}
		tmpl = &t
	}
	if tmpl != nil && !tmpl.ActiveFor(req.Mode) {
		log.Info(ctx, "template mode differs from request mode, ignoring it",
			logger.String("template", tmpl.ID),
			logger.String("templateMode", tmpl.Mode.String()),
			logger.String("mode", req.Mode.String()))
		return nil
	}
	return tmpl
}

func (s *Service) publishFailure(ctx context.Context, sessions *repository.SessionStore, req model.AnalysisRequest, gen uint64, cause error) {
	_, err := sessions.Publish(ctx, req.SessionID, gen, model.SessionState{
		Status:     model.StatusFailed,
		Mode:       req.Mode,
		TemplateID: req.TemplateID,
		Error:      &model.ErrorInfo{Code: fault.KindName(cause), Message: fault.UserMessage(cause)},
	})
	if err != nil {
		s.logger.Warn(ctx, "publish failure state", logger.String("session", req.SessionID), logger.Error(err))
	}
}

func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
