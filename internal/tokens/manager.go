// Package tokens maintains per-user OAuth credentials: loading them from
// the store, proactively refreshing them before expiry, and persisting
// refreshed tokens.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ozenc/takvim/internal/store"
)

// refreshThreshold is how close to expiry a credential may get before a
// proactive refresh is attempted.
const refreshThreshold = 5 * time.Minute

// refreshTimeout bounds a single token endpoint round trip.
const refreshTimeout = 10 * time.Second

// ErrNotConnected means no credential is stored for the user. Callers
// surface this as "reconnect required".
var ErrNotConnected = errors.New("tokens: not connected")

// CredentialStore is the slice of the store the manager needs.
type CredentialStore interface {
	Credential(ctx context.Context, userID string) (*store.Credential, error)
	SaveCredential(ctx context.Context, c *store.Credential) error
}

// Config holds the OAuth client settings for the refresh grant.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Manager owns credential freshness. It is safe for concurrent use as
// long as the underlying store is.
type Manager struct {
	store      CredentialStore
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	// now is the clock. Tests override it to pin expiry arithmetic.
	now func() time.Time
}

// NewManager creates a Manager. httpClient may be nil for the default.
func NewManager(st CredentialStore, cfg Config, httpClient *http.Client, logger *slog.Logger) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: refreshTimeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:      st,
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// ValidCredential returns a usable credential for the user, refreshing it
// first when expiry is less than refreshThreshold away.
//
// A failed refresh is deliberately non-fatal: the existing, possibly-stale
// credential is returned after a warning. The token may still have a few
// seconds of life, and if not, the downstream call surfaces a 401 which
// the caller maps to "reconnect required".
func (m *Manager) ValidCredential(ctx context.Context, userID string) (*store.Credential, error) {
	cred, err := m.store.Credential(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cred == nil {
		return nil, ErrNotConnected
	}

	if cred.Expiry.Sub(m.now()) >= refreshThreshold {
		return cred, nil
	}

	refreshed, err := m.refresh(ctx, cred)
	if err != nil {
		m.logger.Warn("token refresh failed, returning existing credential",
			slog.String("user_id", userID),
			slog.Time("expiry", cred.Expiry),
			slog.String("error", err.Error()),
		)

		return cred, nil
	}

	if err := m.store.SaveCredential(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("tokens: persisting refreshed credential: %w", err)
	}

	m.logger.Info("refreshed credential",
		slog.String("user_id", userID),
		slog.Time("new_expiry", refreshed.Expiry),
	)

	return refreshed, nil
}

// refreshResponse mirrors the token endpoint's refresh grant response.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// refresh exchanges the refresh token for a new access token. The returned
// credential keeps the old refresh token unless the provider rotated it.
func (m *Manager) refresh(ctx context.Context, cred *store.Credential) (*store.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", m.cfg.ClientID)

	if m.cfg.ClientSecret != "" {
		form.Set("client_secret", m.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("tokens: creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokens: refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tokens: refresh returned HTTP %d: %s", resp.StatusCode, body)
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("tokens: decoding refresh response: %w", err)
	}

	if rr.AccessToken == "" {
		return nil, errors.New("tokens: refresh response missing access_token")
	}

	out := &store.Credential{
		UserID:       cred.UserID,
		AccessToken:  rr.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       m.now().Add(time.Duration(rr.ExpiresIn) * time.Second),
	}

	if rr.RefreshToken != "" {
		out.RefreshToken = rr.RefreshToken
	}

	return out, nil
}

// Source binds a user id into a gcal.TokenSource. Each Token call runs the
// full freshness check, so long-lived clients keep working across expiry.
func (m *Manager) Source(userID string) *UserTokenSource {
	return &UserTokenSource{manager: m, userID: userID}
}

// UserTokenSource adapts Manager to the token interface the API client
// consumes.
type UserTokenSource struct {
	manager *Manager
	userID  string
}

// Token returns a bearer token for the bound user.
func (u *UserTokenSource) Token(ctx context.Context) (string, error) {
	cred, err := u.manager.ValidCredential(ctx, u.userID)
	if err != nil {
		return "", err
	}

	return cred.AccessToken, nil
}
