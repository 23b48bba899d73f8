// Package token wraps the OAuth provider round trips the switch engine needs:
// authorization-code exchange, refresh-token grants, and identity lookup.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// requestTimeout bounds every provider round trip. A timeout surfaces as the
// same failure kind as a provider rejection; callers do not distinguish.
const requestTimeout = 30 * time.Second

const userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// UnknownEmail is the sentinel identity returned when userinfo lookup fails.
// Identity lookup is best-effort and never blocks the switch path.
const UnknownEmail = "unknown@example.com"

// Credentials is the result of a code exchange or refresh.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Identity describes the Google account behind an access token.
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ExchangeError reports a failed authorization-code exchange.
type ExchangeError struct {
	err error
}

func (e *ExchangeError) Error() string { return "token exchange failed: " + e.err.Error() }
func (e *ExchangeError) Unwrap() error { return e.err }

// RefreshError reports a failed refresh-token grant. Permanent is set when the
// provider response indicates the grant is revoked rather than a transient
// failure, so the UI can prompt for re-login.
type RefreshError struct {
	err       error
	Permanent bool
}

func (e *RefreshError) Error() string { return "token refresh failed: " + e.err.Error() }
func (e *RefreshError) Unwrap() error { return e.err }

// Manager performs OAuth operations against one provider configuration.
type Manager struct {
	cfg        *oauth2.Config
	httpClient *http.Client

	// overridden in tests
	userinfoEndpoint string
}

// NewManager creates a manager for the given oauth2 config.
func NewManager(cfg *oauth2.Config) *Manager {
	return &Manager{
		cfg:              cfg,
		httpClient:       &http.Client{Timeout: requestTimeout},
		userinfoEndpoint: userinfoURL,
	}
}

// ExchangeCode performs a one-shot authorization-code exchange.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (Credentials, error) {
	ctx, cancel := m.providerContext(ctx)
	defer cancel()

	tok, err := m.cfg.Exchange(ctx, code)
	if err != nil {
		return Credentials{}, &ExchangeError{err: err}
	}
	if tok.AccessToken == "" {
		return Credentials{}, &ExchangeError{err: fmt.Errorf("provider returned no access token")}
	}
	return Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// Refresh exchanges a long-lived refresh token for a fresh access token.
// The stored refresh token is never regenerated here: a rotated token in the
// response is passed through for the caller to persist if it wants.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	ctx, cancel := m.providerContext(ctx)
	defer cancel()

	src := m.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Credentials{}, &RefreshError{err: err, Permanent: isPermanentRefreshError(err)}
	}
	if tok.AccessToken == "" {
		return Credentials{}, &RefreshError{err: fmt.Errorf("provider returned no access token")}
	}
	creds := Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       tok.Expiry,
	}
	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	}
	return creds, nil
}

// FetchIdentity resolves the email/name behind an access token. On any
// failure it returns the sentinel unknown identity instead of an error.
func (m *Manager) FetchIdentity(ctx context.Context, accessToken string) Identity {
	unknown := Identity{Email: UnknownEmail}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userinfoEndpoint, nil)
	if err != nil {
		return unknown
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return unknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unknown
	}
	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil || id.Email == "" {
		return unknown
	}
	return id
}

// providerContext bounds the call and pins the oauth2 transport to our
// timeout-configured client.
func (m *Manager) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient), cancel
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
