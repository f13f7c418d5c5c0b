package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/overlay"
	"github.com/okian/framecoach/internal/domain/telemetry"
)

const maxOverlayBody = 1 << 20

type overlayRequest struct {
	Mode      string          `json:"mode" validate:"required"`
	Telemetry json.RawMessage `json:"telemetry" validate:"required"`
	Template  *templateInput  `json:"template"`
	Width     float64         `json:"width" validate:"gt=0"`
	Height    float64         `json:"height" validate:"gt=0"`
}

type overlayResponse struct {
	Width      float64             `json:"width"`
	Height     float64             `json:"height"`
	Primitives []overlay.Primitive `json:"primitives"`
}

// OverlayHandler projects telemetry into drawable primitives.
type OverlayHandler struct {
	deps Dependencies
}

// NewOverlayHandler creates a new overlay handler.
func NewOverlayHandler(deps Dependencies) *OverlayHandler {
	return &OverlayHandler{deps: deps}
}

// HandlePostOverlay handles POST /v1/overlay for caller-supplied telemetry.
func (h *OverlayHandler) HandlePostOverlay(w http.ResponseWriter, r *http.Request) {
	const op = "api.overlay"
	body, err := decodeJSON[overlayRequest](r, maxOverlayBody)
	if err != nil {
		writeError(w, err)
		return
	}
	mode, err := telemetry.ParseMode(body.Mode)
	if err != nil {
		writeError(w, fault.Newf(op, fault.ErrInput, "unknown mode %q", body.Mode))
		return
	}
	t, err := telemetry.Parse(body.Telemetry, mode)
	if err != nil {
		writeError(w, &fault.Error{Op: op, Kind: fault.ErrInput, Err: err, Detail: "telemetry is invalid"})
		return
	}
	var tmpl *model.Template
	if body.Template != nil {
		parsed, err := body.Template.toModel("")
		if err != nil {
			writeError(w, err)
			return
		}
		tmpl = &parsed
	}
	prims, err := h.deps.ProjectOverlay(r.Context(), t, mode, tmpl, body.Width, body.Height)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overlayResponse{Width: body.Width, Height: body.Height, Primitives: prims})
}

// HandleSessionOverlay handles GET /v1/sessions/{id}/overlay?width=&height=.
func (h *OverlayHandler) HandleSessionOverlay(w http.ResponseWriter, r *http.Request) {
	const op = "api.overlay"
	width, errW := strconv.ParseFloat(r.URL.Query().Get("width"), 64)
	height, errH := strconv.ParseFloat(r.URL.Query().Get("height"), 64)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		writeError(w, fault.New(op, fault.ErrInput, "width and height must be positive numbers"))
		return
	}
	prims, err := h.deps.ProjectSessionOverlay(r.Context(), r.PathValue("id"), width, height)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overlayResponse{Width: width, Height: height, Primitives: prims})
}
