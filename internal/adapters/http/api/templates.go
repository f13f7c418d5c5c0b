package api

import (
	"net/http"

	"github.com/okian/framecoach/internal/domain/model"
)

const maxTemplateBody = 1 << 20

// createTemplateRequest either snapshots a session's latest telemetry or
// stores the supplied document.
type createTemplateRequest struct {
	Name      string         `json:"name" validate:"max=256"`
	SessionID string         `json:"sessionId" validate:"required_without=Template"`
	Template  *templateInput `json:"template" validate:"required_without=SessionID"`
}

type templateList struct {
	Templates []model.Template `json:"templates"`
}

// TemplatesHandler manages a user's saved templates.
type TemplatesHandler struct {
	deps Dependencies
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(deps Dependencies) *TemplatesHandler {
	return &TemplatesHandler{deps: deps}
}

// HandleList handles GET /v1/users/{uid}/templates.
func (h *TemplatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.ListTemplates(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Template{}
	}
	writeJSON(w, http.StatusOK, templateList{Templates: list})
}

// HandleCreate handles POST /v1/users/{uid}/templates.
func (h *TemplatesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := r.PathValue("uid")
	body, err := decodeJSON[createTemplateRequest](r, maxTemplateBody)
	if err != nil {
		writeError(w, err)
		return
	}

	var tmpl model.Template
	if body.SessionID != "" {
		tmpl, err = h.deps.SaveTemplate(ctx, uid, body.Name, body.SessionID)
	} else {
		in := *body.Template
		if in.Name == "" {
			in.Name = body.Name
		}
		var parsed model.Template
		if parsed, err = in.toModel(uid); err == nil {
			tmpl, err = h.deps.CreateTemplate(ctx, uid, parsed.Name, parsed.Mode, parsed.Telemetry)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

// HandleGet handles GET /v1/users/{uid}/templates/{id}.
func (h *TemplatesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.deps.GetTemplate(r.Context(), r.PathValue("uid"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// HandleDelete handles DELETE /v1/users/{uid}/templates/{id}.
func (h *TemplatesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteTemplate(r.Context(), r.PathValue("uid"), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
