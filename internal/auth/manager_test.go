package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/havenportal/drivesync/internal/crypto"
	"github.com/havenportal/drivesync/internal/model"
	"github.com/havenportal/drivesync/internal/store"
)

func newTestManager(t *testing.T, tokenURL string) (*Manager, store.Credentials) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  tokenURL + "/auth",
			TokenURL: tokenURL + "/token",
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(cfg, st.Credentials(), crypto.NewMockEncryptor(), logger), st.Credentials()
}

func seedCredential(t *testing.T, creds store.Credentials, expiry time.Time) {
	t.Helper()
	enc, err := crypto.NewMockEncryptor().Encrypt(context.Background(), "refresh-1")
	require.NoError(t, err)
	err = creds.Save(context.Background(), &model.DriveCredential{
		AccessToken:           "stored-access",
		EncryptedRefreshToken: enc,
		Expiry:                expiry,
		AccountEmail:          "studio@example.com",
	})
	require.NoError(t, err)
}

func TestTokenNotConnected(t *testing.T) {
	m, _ := newTestManager(t, "http://invalid.test")

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTokenReturnsStoredWhenFresh(t *testing.T) {
	m, creds := newTestManager(t, "http://invalid.test")
	seedCredential(t, creds, time.Now().Add(time.Hour))

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored-access", token.AccessToken)
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-2",
		})
	}))
	defer srv.Close()

	m, creds := newTestManager(t, srv.URL)
	seedCredential(t, creds, time.Now().Add(time.Minute))

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token.AccessToken)

	// The refreshed pair was persisted, rotated refresh token included.
	cred, err := creds.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", cred.AccessToken)
	rt, err := crypto.NewMockEncryptor().Decrypt(context.Background(), cred.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", rt)
}

func TestTokenRefreshFailureLeavesCredentialAlone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	m, creds := newTestManager(t, srv.URL)
	stale := time.Now().Add(time.Minute)
	seedCredential(t, creds, stale)

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)

	cred, err := creds.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored-access", cred.AccessToken)
	assert.Equal(t, stale, cred.Expiry)
}

func TestConnectPersistsEncryptedRefreshToken(t *testing.T) {
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
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, creds := newTestManager(t, srv.URL)
	WithUserinfoEndpoint(srv.URL + "/userinfo")(m)

	require.NoError(t, m.Connect(context.Background(), "auth-code"))

	cred, err := creds.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "studio@example.com", cred.AccountEmail)
	assert.NotEqual(t, "refresh-1", cred.EncryptedRefreshToken)
	rt, err := crypto.NewMockEncryptor().Decrypt(context.Background(), cred.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", rt)
}

func TestConnectRejectsMissingRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	m, creds := newTestManager(t, srv.URL)
	err := m.Connect(context.Background(), "auth-code")
	require.Error(t, err)

	_, err = creds.Get(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus(t *testing.T) {
	m, creds := newTestManager(t, "http://invalid.test")

	connected, email, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, connected)
	assert.Empty(t, email)

	seedCredential(t, creds, time.Now().Add(time.Hour))
	connected, email, err = m.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, connected)
	assert.Equal(t, "studio@example.com", email)
}

func TestDisconnect(t *testing.T) {
	m, creds := newTestManager(t, "http://invalid.test")
	seedCredential(t, creds, time.Now().Add(time.Hour))

	require.NoError(t, m.Disconnect(context.Background()))
	_, err := creds.Get(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
