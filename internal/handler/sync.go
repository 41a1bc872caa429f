package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/havenportal/drivesync/internal/authz"
	"github.com/havenportal/drivesync/internal/store"
	"github.com/havenportal/drivesync/internal/syncer"
)

// SyncHandler triggers reconciliation passes over remote folders.
type SyncHandler struct {
	syncer    *syncer.Syncer
	store     store.Store
	oracle    authz.Oracle
	jwtSecret string
	logger    *slog.Logger
}

func NewSyncHandler(s *syncer.Syncer, st store.Store, oracle authz.Oracle, jwtSecret string, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{syncer: s, store: st, oracle: oracle, jwtSecret: jwtSecret, logger: logger}
}

// SyncProject reconciles one project's folder against the ledger.
// POST /api/projects/{projectID}/sync
func (h *SyncHandler) SyncProject(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r, h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	projectID := chi.URLParam(r, "projectID")
	project, err := h.store.Projects().Get(r.Context(), projectID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	if !h.oracle.Allowed(r.Context(), userID, project) {
		respondError(w, http.StatusForbidden, "not authorized")
		return
	}

	result, err := h.syncer.Sync(r.Context(), projectID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// SyncGeneral reconciles the shared pool folder.
// POST /api/uploads/sync
func (h *SyncHandler) SyncGeneral(w http.ResponseWriter, r *http.Request) {
	if _, err := GetUserID(r, h.jwtSecret); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	result, err := h.syncer.Sync(r.Context(), "")
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}
