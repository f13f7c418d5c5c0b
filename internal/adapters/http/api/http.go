// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/internal/domain/overlay"
	"github.com/okian/framecoach/internal/domain/telemetry"
	"github.com/okian/framecoach/pkg/logger"
)

// DefaultMaxImageBytes is the largest decoded image accepted.
const DefaultMaxImageBytes = 10 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RunAnalysis(ctx context.Context, req model.AnalysisRequest) (model.AnalysisResult, error)
	Submit(ctx context.Context, req model.AnalysisRequest) (model.Job, error)
	Session(ctx context.Context, sessionID string) (model.SessionState, error)

	ProjectOverlay(ctx context.Context, t telemetry.Telemetry, mode telemetry.Mode, tmpl *model.Template, w, h float64) ([]overlay.Primitive, error)
	ProjectSessionOverlay(ctx context.Context, sessionID string, w, h float64) ([]overlay.Primitive, error)

	SaveTemplate(ctx context.Context, userID, name, sessionID string) (model.Template, error)
	CreateTemplate(ctx context.Context, userID, name string, mode telemetry.Mode, t telemetry.Telemetry) (model.Template, error)
	ListTemplates(ctx context.Context, userID string) ([]model.Template, error)
	GetTemplate(ctx context.Context, userID, id string) (model.Template, error)
	DeleteTemplate(ctx context.Context, userID, id string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	analysisHandler  *AnalysisHandler
	overlayHandler   *OverlayHandler
	templatesHandler *TemplatesHandler
}

type serverConfig struct {
	maxImageBytes int64
	logger        logger.Logger
}

// Option configures the Server.
type Option func(*serverConfig)

// WithMaxImageBytes caps the decoded image size.
func WithMaxImageBytes(n int64) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxImageBytes = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{maxImageBytes: DefaultMaxImageBytes, logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		analysisHandler:  NewAnalysisHandler(deps, cfg.maxImageBytes, cfg.logger),
		overlayHandler:   NewOverlayHandler(deps),
		templatesHandler: NewTemplatesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/analyses", MetricsMiddleware(s.analysisHandler.HandlePostAnalysis, "analyses"))
	mux.HandleFunc("GET /v1/sessions/{id}", MetricsMiddleware(s.analysisHandler.HandleGetSession, "session"))
	mux.HandleFunc("GET /v1/sessions/{id}/overlay", MetricsMiddleware(s.overlayHandler.HandleSessionOverlay, "session_overlay"))
	mux.HandleFunc("POST /v1/overlay", MetricsMiddleware(s.overlayHandler.HandlePostOverlay, "overlay"))

	mux.HandleFunc("GET /v1/users/{uid}/templates", MetricsMiddleware(s.templatesHandler.HandleList, "templates"))
	mux.HandleFunc("POST /v1/users/{uid}/templates", MetricsMiddleware(s.templatesHandler.HandleCreate, "templates"))
	mux.HandleFunc("GET /v1/users/{uid}/templates/{id}", MetricsMiddleware(s.templatesHandler.HandleGet, "template"))
	mux.HandleFunc("DELETE /v1/users/{uid}/templates/{id}", MetricsMiddleware(s.templatesHandler.HandleDelete, "template"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {code, message}. The message is the fixed text
// for the error kind; causes are never exposed.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, fault.HTTPStatus(err), errorResponse{
		Code:    fault.KindName(err),
		Message: fault.UserMessage(err),
	})
}
