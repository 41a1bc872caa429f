// Package auth owns the portal's single Drive credential: the OAuth connect
// flow, storage of the encrypted refresh token, and transparent access-token
// refresh ahead of expiry.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/havenportal/drivesync/internal/crypto"
	"github.com/havenportal/drivesync/internal/model"
	"github.com/havenportal/drivesync/internal/store"
)

var (
	// ErrNotConnected is returned when no credential record exists.
	ErrNotConnected = errors.New("auth: drive account not connected")

	// ErrRefreshFailed is returned when the refresh round-trip is rejected.
	// Fatal until the account is re-authorized; the previously stored token
	// is left untouched.
	ErrRefreshFailed = errors.New("auth: token refresh failed")
)

// refreshWindow is how close to expiry a token may get before it is
// refreshed rather than returned.
const refreshWindow = 5 * time.Minute

const defaultUserinfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"

// Manager handles the credential lifecycle. It is an injected dependency of
// every component needing remote access; nothing reads ambient global state.
type Manager struct {
	oauthConfig      *oauth2.Config
	creds            store.Credentials
	encryptor        crypto.Encryptor
	logger           *slog.Logger
	userinfoEndpoint string

	// mu serializes refreshes within this process. Concurrent refreshes
	// across processes are wasteful but safe: each writes a self-consistent
	// token/expiry pair.
	mu sync.Mutex

	now func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithUserinfoEndpoint overrides where the account email is resolved from.
// Used by tests pointing at a fake server.
func WithUserinfoEndpoint(url string) Option {
	return func(m *Manager) { m.userinfoEndpoint = url }
}

// NewManager creates a Manager. The oauth2.Config is constructed by the
// caller (from configuration), keeping this package free of env access.
func NewManager(oauthConfig *oauth2.Config, creds store.Credentials, encryptor crypto.Encryptor, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		oauthConfig:      oauthConfig,
		creds:            creds,
		encryptor:        encryptor,
		logger:           logger,
		userinfoEndpoint: defaultUserinfoEndpoint,
		now:              time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AuthURL returns the URL to redirect an administrator to for Google consent.
func (m *Manager) AuthURL(state string) string {
	return m.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect exchanges the authorization code and persists the credential
// record, replacing any previous connection. The refresh token is encrypted
// at rest.
func (m *Manager) Connect(ctx context.Context, code string) error {
	token, err := m.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("auth: code exchange failed: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("auth: no refresh token in response")
	}

	encrypted, err := m.encryptor.Encrypt(ctx, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("auth: failed to encrypt refresh token: %w", err)
	}

	email, err := m.fetchAccountEmail(ctx, token)
	if err != nil {
		m.logger.Warn("could not resolve account email", "error", err)
	}

	// Preserve the provisioned base folder across re-connects.
	var baseFolderID string
	if existing, err := m.creds.Get(ctx); err == nil {
		baseFolderID = existing.BaseFolderID
	}

	cred := &model.DriveCredential{
		AccessToken:           token.AccessToken,
		EncryptedRefreshToken: encrypted,
		Expiry:                token.Expiry,
		AccountEmail:          email,
		BaseFolderID:          baseFolderID,
		UpdatedAt:             m.now(),
	}
	if err := m.creds.Save(ctx, cred); err != nil {
		return fmt.Errorf("auth: failed to save credential: %w", err)
	}
	m.logger.Info("drive account connected", "account", email)
	return nil
}

// Disconnect removes the credential record.
func (m *Manager) Disconnect(ctx context.Context) error {
	if err := m.creds.Delete(ctx); err != nil {
		return fmt.Errorf("auth: failed to delete credential: %w", err)
	}
	m.logger.Info("drive account disconnected")
	return nil
}

// Status reports whether a credential exists and which account owns it.
func (m *Manager) Status(ctx context.Context) (bool, string, error) {
	cred, err := m.creds.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, cred.AccountEmail, nil
}

// Token returns an access token whose expiry is strictly in the future.
// When the stored token is within refreshWindow of expiry it performs a
// refresh round-trip first; the new token is persisted only on success, so a
// failed refresh never corrupts the stored (possibly still valid) value.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.creds.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}

	if cred.Expiry.Sub(m.now()) >= refreshWindow {
		return &oauth2.Token{
			AccessToken: cred.AccessToken,
			TokenType:   "Bearer",
			Expiry:      cred.Expiry,
		}, nil
	}

	refreshToken, err := m.encryptor.Decrypt(ctx, cred.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decrypt refresh token: %w", err)
	}

	refreshed, err := m.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	cred.AccessToken = refreshed.AccessToken
	cred.Expiry = refreshed.Expiry
	if refreshed.RefreshToken != "" && refreshed.RefreshToken != refreshToken {
		// Google occasionally rotates refresh tokens.
		encrypted, err := m.encryptor.Encrypt(ctx, refreshed.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("auth: failed to encrypt refresh token: %w", err)
		}
		cred.EncryptedRefreshToken = encrypted
	}
	cred.UpdatedAt = m.now()
	if err := m.creds.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("auth: failed to persist refreshed token: %w", err)
	}

	m.logger.Debug("access token refreshed", "expiry", cred.Expiry)
	return refreshed, nil
}

// Client returns an authenticated HTTP client bound to a valid token.
func (m *Manager) Client(ctx context.Context) (*http.Client, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), nil
}

func (m *Manager) fetchAccountEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userinfoEndpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}
	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.Email, nil
}
