package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/telemetry"
	"github.com/okian/framecoach/pkg/logger"
)

// extra room for the non-image fields of an analysis body
const envelopeBytes = 1 << 20

type templateInput struct {
	Name      string          `json:"name"`
	Mode      string          `json:"mode" validate:"required"`
	Telemetry json.RawMessage `json:"telemetry" validate:"required"`
}

type analysisRequest struct {
	SessionID  string         `json:"sessionId" validate:"omitempty,max=128"`
	RequestID  string         `json:"requestId" validate:"omitempty,max=128"`
	UserID     string         `json:"userId" validate:"required_with=TemplateID"`
	Image      string         `json:"image" validate:"required"`
	Mode       string         `json:"mode" validate:"required"`
	TemplateID string         `json:"templateId"`
	Template   *templateInput `json:"template"`
}

type jobResponse struct {
	JobID      string `json:"jobId"`
	SessionID  string `json:"sessionId"`
	Generation uint64 `json:"generation"`
	Status     string `json:"status"`
}

// AnalysisHandler serves synchronous and queued analyses.
type AnalysisHandler struct {
	deps          Dependencies
	maxImageBytes int64
	log           logger.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(deps Dependencies, maxImageBytes int64, log logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{deps: deps, maxImageBytes: maxImageBytes, log: log}
}

// HandlePostAnalysis handles POST /v1/analyses. With ?async=1 the request
// is queued and 202 is returned with the job coordinates.
func (h *AnalysisHandler) HandlePostAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := decodeJSON[analysisRequest](r, h.maxImageBytes*4/3+envelopeBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := h.toModel(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		job, err := h.deps.Submit(ctx, req)
		switch {
		case errors.Is(err, model.ErrDuplicateRequest):
			writeJSON(w, http.StatusOK, jobResponse{SessionID: req.SessionID, Status: "duplicate"})
		case err != nil:
			writeError(w, err)
		default:
			writeJSON(w, http.StatusAccepted, jobResponse{
				JobID:      job.ID,
				SessionID:  job.Request.SessionID,
				Generation: job.Generation,
				Status:     string(model.StatusPending),
			})
		}
		return
	}

	res, err := h.deps.RunAnalysis(ctx, req)
	if err != nil {
		h.log.Debug(ctx, "analysis request failed", logger.String("code", fault.KindName(err)), logger.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetSession handles GET /v1/sessions/{id}.
func (h *AnalysisHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *AnalysisHandler) toModel(body analysisRequest) (model.AnalysisRequest, error) {
	const op = "api.analysis"
	mode, err := telemetry.ParseMode(body.Mode)
	if err != nil {
		return model.AnalysisRequest{}, fault.Newf(op, fault.ErrInput, "unknown mode %q", body.Mode)
	}
	if err := checkImage(body.Image, h.maxImageBytes); err != nil {
		return model.AnalysisRequest{}, &fault.Error{Op: op, Kind: fault.ErrInput, Err: err, Detail: err.Error()}
	}
	req := model.AnalysisRequest{
		RequestID:  body.RequestID,
		SessionID:  body.SessionID,
		UserID:     body.UserID,
		Image:      body.Image,
		Mode:       mode,
		TemplateID: body.TemplateID,
	}
	if body.Template != nil {
		tmpl, err := body.Template.toModel(body.UserID)
		if err != nil {
			return model.AnalysisRequest{}, err
		}
		req.Template = &tmpl
	}
	return req, nil
}

func (in templateInput) toModel(userID string) (model.Template, error) {
	const op = "api.template"
	if err := validateStruct(in); err != nil {
		return model.Template{}, err
	}
	mode, err := telemetry.ParseMode(in.Mode)
	if err != nil {
		return model.Template{}, fault.Newf(op, fault.ErrInput, "unknown template mode %q", in.Mode)
	}
	t, err := telemetry.Parse(in.Telemetry, mode)
	if err != nil {
		return model.Template{}, &fault.Error{Op: op, Kind: fault.ErrInput, Err: err, Detail: "template telemetry is invalid"}
	}
	name, err := model.NormalizeTemplateName(in.Name)
	if err != nil {
		return model.Template{}, &fault.Error{Op: op, Kind: fault.ErrInput, Err: err, Detail: err.Error()}
	}
	return model.Template{UserID: userID, Name: name, Mode: mode, Telemetry: t}, nil
}

// checkImage accepts raw base64 or a base64 data URL whose decoded size is
// within limit. The payload itself is forwarded untouched.
func checkImage(image string, limit int64) error {
	payload := image
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return ErrImageEncoding
		}
		payload = payload[comma+1:]
	}
	payload = strings.TrimRight(payload, "=")
	if strings.TrimSpace(payload) == "" {
		return ErrImageEmpty
	}
	if int64(base64.RawStdEncoding.DecodedLen(len(payload))) > limit {
		return ErrImageTooLarge
	}
	if _, err := base64.RawStdEncoding.DecodeString(payload); err != nil {
		return ErrImageEncoding
	}
	return nil
}
