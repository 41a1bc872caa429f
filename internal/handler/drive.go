package handler

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/havenportal/drivesync/internal/activity"
	"github.com/havenportal/drivesync/internal/auth"
	"github.com/havenportal/drivesync/internal/uploads"
)

const (
	stateCookie  = "drive_oauth_state"
	maxAssetSize = 5 << 20
)

// DriveHandler manages the portal's single Drive connection and the
// small admin upload paths that ride on it.
type DriveHandler struct {
	manager   *auth.Manager
	broker    *uploads.Broker
	sink      activity.Sink
	jwtSecret string
	logger    *slog.Logger
}

func NewDriveHandler(manager *auth.Manager, broker *uploads.Broker, sink activity.Sink, jwtSecret string, logger *slog.Logger) *DriveHandler {
	return &DriveHandler{manager: manager, broker: broker, sink: sink, jwtSecret: jwtSecret, logger: logger}
}

// Status reports whether a Drive account is connected.
// GET /api/drive/status
func (h *DriveHandler) Status(w http.ResponseWriter, r *http.Request) {
	if _, err := GetUserID(r, h.jwtSecret); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	connected, email, err := h.manager.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"connected":    connected,
		"accountEmail": email,
	})
}

// Connect starts the OAuth consent flow. The anti-forgery state rides a
// short-lived cookie and is checked on callback.
// GET /api/drive/connect
func (h *DriveHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if _, err := GetUserID(r, h.jwtSecret); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.manager.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow.
// GET /api/drive/callback
func (h *DriveHandler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		respondError(w, http.StatusBadRequest, "state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	if err := h.manager.Connect(r.Context(), code); err != nil {
		h.logger.Error("drive connect failed", "error", err)
		respondError(w, http.StatusBadGateway, "failed to connect drive account")
		return
	}
	h.sink.Record(r.Context(), activity.EventDriveLinked, "drive account connected", "")
	http.Redirect(w, r, "/settings?drive=connected", http.StatusTemporaryRedirect)
}

// Disconnect drops the stored credential.
// POST /api/drive/disconnect
func (h *DriveHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if _, err := GetUserID(r, h.jwtSecret); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := h.manager.Disconnect(r.Context()); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// UploadLogo stores a small branding asset in the shared assets folder.
// POST /api/settings/logo
func (h *DriveHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	if _, err := GetUserID(r, h.jwtSecret); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxAssetSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	part, header, err := r.FormFile("logo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "logo file is required")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxAssetSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) > maxAssetSize {
		respondError(w, http.StatusRequestEntityTooLarge, "logo exceeds size limit")
		return
	}

	obj, err := h.broker.UploadAsset(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, obj)
}

// ProvisionFolder creates a project's Drive folder if it does not exist yet.
// POST /api/projects/{projectID}/folder
func (h *DriveHandler) ProvisionFolder(w http.ResponseWriter, r *http.Request) {
	if _, err := GetUserID(r, h.jwtSecret); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	folderID, err := h.broker.ProvisionProjectFolder(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"folderId": folderID})
}
