package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/havenportal/drivesync/internal/activity"
	"github.com/havenportal/drivesync/internal/auth"
	"github.com/havenportal/drivesync/internal/authz"
	"github.com/havenportal/drivesync/internal/crypto"
	"github.com/havenportal/drivesync/internal/ledger"
	"github.com/havenportal/drivesync/internal/model"
	"github.com/havenportal/drivesync/internal/remote"
	"github.com/havenportal/drivesync/internal/remote/memory"
	"github.com/havenportal/drivesync/internal/store"
	"github.com/havenportal/drivesync/internal/uploads"
)

type driveEnv struct {
	router  *chi.Mux
	store   *store.MemoryStore
	remote  *memory.Storage
	manager *auth.Manager
}

// newDriveEnv wires a DriveHandler against a fake OAuth backend.
func newDriveEnv(t *testing.T) *driveEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"email": "studio@example.com"})
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	st := store.NewMemoryStore()
	rs := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://portal.test/api/drive/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  backend.URL + "/auth",
			TokenURL: backend.URL + "/token",
		},
	}
	manager := auth.NewManager(cfg, st.Credentials(), crypto.NewMockEncryptor(), logger,
		auth.WithUserinfoEndpoint(backend.URL+"/userinfo"))

	provider := &remote.StaticProvider{S: rs}
	sink := activity.NewLogSink(logger)
	lgr := ledger.New(st, provider, authz.AllowAll{}, sink, logger)
	broker := uploads.NewBroker(st, provider, lgr, sink, logger, "Client Portal")
	h := NewDriveHandler(manager, broker, sink, testSecret, logger)

	router := chi.NewRouter()
	router.Get("/api/drive/status", h.Status)
	router.Get("/api/drive/connect", h.Connect)
	router.Get("/api/drive/callback", h.Callback)
	router.Post("/api/drive/disconnect", h.Disconnect)
	router.Post("/api/settings/logo", h.UploadLogo)
	router.Post("/api/projects/{projectID}/folder", h.ProvisionFolder)

	return &driveEnv{router: router, store: st, remote: rs, manager: manager}
}

func (e *driveEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+signToken(t, "u1"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestDriveStatusEndpoint(t *testing.T) {
	e := newDriveEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/drive/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Connected    bool   `json:"connected"`
		AccountEmail string `json:"accountEmail"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Connected {
		t.Error("reported connected with no credential")
	}

	err := e.store.Credentials().Save(context.Background(), &model.DriveCredential{
		AccessToken: "tok", AccountEmail: "studio@example.com", Expiry: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/drive/status", nil))
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Connected || body.AccountEmail != "studio@example.com" {
		t.Errorf("body = %+v", body)
	}
}

func TestConnectFlow(t *testing.T) {
	e := newDriveEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/drive/connect", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want redirect", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("no state in consent URL")
	}

	var stateCookieValue string
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie {
			stateCookieValue = c.Value
		}
	}
	if stateCookieValue != state {
		t.Fatalf("cookie state %q does not match URL state %q", stateCookieValue, state)
	}

	// Callback with the matching state completes the exchange.
	req := httptest.NewRequest(http.MethodGet, "/api/drive/callback?state="+state+"&code=auth-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: state})
	rec = e.do(t, req)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("callback status = %d, body %s", rec.Code, rec.Body)
	}

	cred, err := e.store.Credentials().Get(context.Background())
	if err != nil {
		t.Fatalf("credential not stored: %v", err)
	}
	if cred.AccessToken != "access-1" {
		t.Errorf("access token = %q", cred.AccessToken)
	}
	if !strings.HasPrefix(cred.EncryptedRefreshToken, "mock:") {
		t.Errorf("refresh token stored unencrypted: %q", cred.EncryptedRefreshToken)
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	e := newDriveEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/drive/callback?state=evil&code=auth-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "genuine"})
	rec := e.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if _, err := e.store.Credentials().Get(context.Background()); err == nil {
		t.Error("credential stored despite state mismatch")
	}
}

func TestDisconnectEndpoint(t *testing.T) {
	e := newDriveEnv(t)
	err := e.store.Credentials().Save(context.Background(), &model.DriveCredential{AccessToken: "tok"})
	if err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/drive/disconnect", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := e.store.Credentials().Get(context.Background()); err == nil {
		t.Error("credential still present after disconnect")
	}
}

func TestUploadLogoEndpoint(t *testing.T) {
	e := newDriveEnv(t)
	err := e.store.Credentials().Save(context.Background(), &model.DriveCredential{AccessToken: "tok"})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("logo", "logo.svg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("<svg/>"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/settings/logo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var obj remote.Object
	if err := json.NewDecoder(rec.Body).Decode(&obj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj.Name != "logo.svg" {
		t.Errorf("name = %q", obj.Name)
	}
}

func TestProvisionFolderEndpoint(t *testing.T) {
	e := newDriveEnv(t)
	ctx := context.Background()
	if err := e.store.Credentials().Save(ctx, &model.DriveCredential{AccessToken: "tok"}); err != nil {
		t.Fatal(err)
	}
	if err := e.store.Projects().Save(ctx, &model.Project{ID: "p1", Name: "Acme Redesign"}); err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/projects/p1/folder", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["folderId"] == "" {
		t.Fatal("empty folder id")
	}

	project, err := e.store.Projects().Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if project.DriveFolderID != body["folderId"] {
		t.Errorf("project folder = %q, response %q", project.DriveFolderID, body["folderId"])
	}
}
