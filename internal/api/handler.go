package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
	"github.com/rajasatyajit/brocante/internal/logger"
	middlewares "github.com/rajasatyajit/brocante/internal/middleware"
	"github.com/rajasatyajit/brocante/internal/models"
)

// adminRequestsPerMinute bounds manual import triggers per client
const adminRequestsPerMinute = 10

// EventStore is the part of the event store the API reads
type EventStore interface {
	Count(ctx context.Context) (int, error)
	Health(ctx context.Context) error
}

// Importer starts an import run on demand
type Importer interface {
	Trigger(ctx context.Context) (*models.ImportRunReport, error)
}

// RunStatus exposes the orchestrator state
type RunStatus interface {
	State() models.RunState
	LastReport() *models.ImportRunReport
}

// Handler handles HTTP requests for the API
type Handler struct {
	store       EventStore
	importer    Importer
	status      RunStatus
	version     string
	buildTime   string
	gitCommit   string
	startTime   time.Time
	adminSecret string
}

// NewHandler creates a new API handler
func NewHandler(store EventStore, importer Importer, status RunStatus, adminSecret, version, buildTime, gitCommit string) *Handler {
	return &Handler{
		store:       store,
		importer:    importer,
		status:      status,
		version:     version,
		buildTime:   buildTime,
		gitCommit:   gitCommit,
		startTime:   time.Now(),
		adminSecret: adminSecret,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.healthHandler)
		r.Get("/health/ready", h.readinessHandler)
		r.Get("/health/live", h.livenessHandler)

		r.Get("/imports/latest", h.latestImportHandler)
		r.Get("/events/count", h.eventCountHandler)

		r.Get("/version", h.versionHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewares.RateLimit(adminRequestsPerMinute))
			r.Use(middlewares.AdminSecret(h.adminSecret))
			r.Post("/imports", h.triggerImportHandler)
		})
	})

	// Root health check
	r.Get("/health", h.healthHandler)
}

// healthHandler provides basic health check
func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// readinessHandler checks if the application is ready to serve traffic
func (h *Handler) readinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"store": "ok",
	}
	statusCode := http.StatusOK

	if err := h.store.Health(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}
	if statusCode != http.StatusOK {
		response["status"] = "not_ready"
	}

	h.writeJSONResponse(w, statusCode, response)
}

// livenessHandler checks if the application is alive
func (h *Handler) livenessHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// versionHandler returns version information
func (h *Handler) versionHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"version":    h.version,
		"build_time": h.buildTime,
		"git_commit": h.gitCommit,
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// latestImportHandler handles GET /v1/imports/latest
func (h *Handler) latestImportHandler(w http.ResponseWriter, r *http.Request) {
	report := h.status.LastReport()
	if report == nil {
		h.writeErrorResponse(w, r, http.StatusNotFound, "no import has finished yet")
		return
	}

	response := map[string]interface{}{
		"state":  h.status.State(),
		"report": report,
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// eventCountHandler handles GET /v1/events/count
func (h *Handler) eventCountHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.store.Count(ctx)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to count events", "error", err)
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, "event store unavailable")
		return
	}

	response := map[string]interface{}{
		"count":     n,
		"timestamp": time.Now().UTC(),
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// triggerImportHandler handles POST /v1/admin/imports. The run is
// synchronous; the response carries its report.
func (h *Handler) triggerImportHandler(w http.ResponseWriter, r *http.Request) {
	// The import outlives a disconnecting client or a write timeout.
	ctx := context.WithoutCancel(r.Context())

	report, err := h.importer.Trigger(ctx)
	switch {
	case err == nil:
		h.writeJSONResponse(w, http.StatusOK, report)
	case errors.Is(err, apperrors.ErrRunInProgress):
		h.writeErrorResponse(w, r, http.StatusConflict, err.Error())
	case apperrors.IsStorageFailure(err):
		logger.WithContext(ctx).Error("Manual import failed", "error", err)
		if report != nil {
			h.writeJSONResponse(w, http.StatusServiceUnavailable, report)
			return
		}
		h.writeErrorResponse(w, r, http.StatusServiceUnavailable, "event store unavailable")
	default:
		logger.WithContext(ctx).Error("Manual import failed", "error", err)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSONResponse writes a JSON response
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes a standardized error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(r.Context()),
	}
	if response.RequestID == "" {
		response.RequestID = r.Header.Get("X-Request-ID")
	}

	h.writeJSONResponse(w, statusCode, response)
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
