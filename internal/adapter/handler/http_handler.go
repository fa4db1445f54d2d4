package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/scan-sync/internal/adapter/auth"
	"github.com/rl1809/scan-sync/internal/adapter/rpc"
	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/core/service"
	"github.com/rl1809/scan-sync/internal/port"
)

const (
	SyncPath          = "/api/inventory/sync"
	HealthPath        = "/health"
	IdempotencyHeader = "Idempotency-Key"

	maxBodyBytes = 64 << 10
)

type HTTPHandler struct {
	reconcileService *service.ReconcileService
	verifier         port.TokenVerifier
	logger           *slog.Logger
}

func NewHTTPHandler(reconcileService *service.ReconcileService, verifier port.TokenVerifier, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		reconcileService: reconcileService,
		verifier:         verifier,
		logger:           logger,
	}
}

// Routes mounts the health check and the authenticated sync endpoint.
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get(HealthPath, h.HealthCheck)
	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post(SyncPath, h.Sync)
	})
	return r
}

func (h *HTTPHandler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.verifier.Verify(r.Context(), auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			h.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

func (h *HTTPHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req domain.ReconcileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpc.ErrorEnvelope{Error: rpc.ErrorBody{
			Code:    rpc.CodeValidation,
			Message: "invalid request body",
		}})
		return
	}
	if req.MutationID == "" {
		req.MutationID = r.Header.Get(IdempotencyHeader)
	}

	res, err := h.reconcileService.Reconcile(r.Context(), UserFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code, status, _ := rpc.Classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("sync request failed", "error", err)
	}
	writeJSON(w, status, rpc.ErrorEnvelope{Error: rpc.ErrorBody{Code: code, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
