package handler

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/havenportal/drivesync/internal/auth"
	"github.com/havenportal/drivesync/internal/authz"
	"github.com/havenportal/drivesync/internal/ledger"
	"github.com/havenportal/drivesync/internal/remote"
	"github.com/havenportal/drivesync/internal/store"
	"github.com/havenportal/drivesync/internal/uploads"
)

// FileHandler exposes the upload broker, version ledger and download paths.
type FileHandler struct {
	broker    *uploads.Broker
	ledger    *ledger.Ledger
	remotes   remote.Provider
	store     store.Store
	oracle    authz.Oracle
	jwtSecret string
	logger    *slog.Logger

	exportMaxFiles int
	exportMaxBytes int64
}

func NewFileHandler(broker *uploads.Broker, lgr *ledger.Ledger, remotes remote.Provider, st store.Store, oracle authz.Oracle, jwtSecret string, logger *slog.Logger, exportMaxFiles int, exportMaxBytes int64) *FileHandler {
	return &FileHandler{
		broker:         broker,
		ledger:         lgr,
		remotes:        remotes,
		store:          st,
		oracle:         oracle,
		jwtSecret:      jwtSecret,
		logger:         logger,
		exportMaxFiles: exportMaxFiles,
		exportMaxBytes: exportMaxBytes,
	}
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var opErr *remote.OpError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, uploads.ErrScopeNotSyncable):
		return http.StatusConflict
	case errors.Is(err, auth.ErrRefreshFailed),
		errors.Is(err, uploads.ErrSessionFailed),
		errors.As(err, &opErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *FileHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	respondError(w, status, err.Error())
}

// RequestSession issues a one-time direct-upload handle.
// POST /api/uploads/sessions
func (h *FileHandler) RequestSession(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r, h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var payload struct {
		ProjectID   string `json:"projectId"`
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.FileName == "" {
		respondError(w, http.StatusBadRequest, "fileName is required")
		return
	}

	session, err := h.broker.RequestSession(r.Context(), payload.ProjectID, payload.FileName, payload.ContentType)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Debug("session issued", "user", userID, "name", payload.FileName)
	respondJSON(w, http.StatusCreated, session)
}

// Confirm finalizes an upload the client completed against the backend.
// POST /api/uploads/complete
func (h *FileHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r, h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var payload uploads.Confirmation
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.RemoteID == "" || payload.FileName == "" {
		respondError(w, http.StatusBadRequest, "remoteId and fileName are required")
		return
	}
	payload.UploaderID = userID

	file, err := h.broker.Confirm(r.Context(), payload)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, file)
}

// ListVersions renders a file's version chain, newest first.
// GET /api/files/{fileID}/versions
func (h *FileHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r, h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	versions, err := h.ledger.ListVersions(r.Context(), userID, chi.URLParam(r, "fileID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

// Delete removes a file record and best-effort removes the remote object.
// DELETE /api/files/{fileID}
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r, h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := h.ledger.Delete(r.Context(), userID, chi.URLParam(r, "fileID")); err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// Download streams a file's bytes through the server. The stream is a
// pass-through; aborting the request cancels the upstream read.
// GET /api/files/{fileID}/download?inline=1
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r, h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	file, err := h.ledger.Get(r.Context(), userID, chi.URLParam(r, "fileID"))
	if err != nil {
		h.fail(w, err)
		return
	}

	storage, err := h.remotes.Storage(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	dl, err := storage.Download(r.Context(), file.RemoteID)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer dl.Body.Close()

	disposition := "attachment"
	if r.URL.Query().Get("inline") == "1" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, file.Name))
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	if _, err := io.Copy(w, dl.Body); err != nil {
		// Client went away or upstream broke; nothing to send at this point.
		h.logger.Debug("download stream interrupted", "file", file.ID, "error", err)
	}
}

// Export bundles a project's current file versions into a zip stream.
// Bounded: zip reassembly holds open streams, so file count and aggregate
// size are capped.
// GET /api/projects/{projectID}/export
func (h *FileHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserID(r, h.jwtSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	projectID := chi.URLParam(r, "projectID")
	project, err := h.store.Projects().Get(r.Context(), projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !h.oracle.Allowed(r.Context(), userID, project) {
		respondError(w, http.StatusForbidden, "not authorized")
		return
	}

	files, err := h.store.Files().ListByScope(r.Context(), projectID)
	if err != nil {
		h.fail(w, err)
		return
	}
	latest := ledger.LatestPerGroup(files)

	if len(latest) > h.exportMaxFiles {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("export limited to %d files", h.exportMaxFiles))
		return
	}
	var total int64
	for _, g := range latest {
		total += g.Latest.Size
	}
	if total > h.exportMaxBytes {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("export limited to %d bytes", h.exportMaxBytes))
		return
	}

	storage, err := h.remotes.Storage(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", project.Name+".zip"))
	zw := zip.NewWriter(w)
	for _, g := range latest {
		dl, err := storage.Download(r.Context(), g.Latest.RemoteID)
		if err != nil {
			h.logger.Warn("export skipped file", "file", g.Latest.ID, "error", err)
			continue
		}
		entry, err := zw.Create(g.Latest.Name)
		if err == nil {
			_, err = io.Copy(entry, dl.Body)
		}
		dl.Body.Close()
		if err != nil {
			h.logger.Debug("export stream interrupted", "file", g.Latest.ID, "error", err)
			zw.Close()
			return
		}
	}
	if err := zw.Close(); err != nil {
		h.logger.Debug("export close failed", "error", err)
	}
}
