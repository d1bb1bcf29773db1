package testkit

import (
	"encoding/json"
	"net/http"

	"gosegment/internal/errors"
	"gosegment/internal/logging"
	"gosegment/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewHandler serves a StubAnalytics over the same routes as the remote
// analytics service. Failures are reported as 422 {"error": message}.
func NewHandler(service *StubAnalytics, logger *zap.Logger) http.Handler {
	h := &handler{service: service, logger: logging.OrNop(logger).Named("stub.http")}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.handleHealth)
	router.Get("/variables", h.handleVariables)
	router.Post("/segmentation/auto-detect", h.handleAutoDetect)
	router.Post("/segmentation/execute", h.handleExecute)
	return router
}

type handler struct {
	service *StubAnalytics
	logger  *zap.Logger
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := h.service.Survey().ListVariables(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": vars})
}

func (h *handler) handleAutoDetect(w http.ResponseWriter, r *http.Request) {
	var req ports.AutoDetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errors.Wrap(err, "invalid request body"))
		return
	}
	result, err := h.service.AutoDetectParameter(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ports.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errors.Wrap(err, "invalid request body"))
		return
	}
	result, err := h.service.ExecuteClustering(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	h.logger.Warn("request rejected", zap.Error(err))
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
