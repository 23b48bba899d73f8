package google

import (
	"log"
	"net/http"
	"net/url"

	"github.com/irishavmishra/antigravity-switch/internal/auth/token"
	"github.com/irishavmishra/antigravity-switch/internal/store"
)

// HandleCallback processes the OAuth callback from Google, exchanges the
// authorization code, and saves the resulting account. The browser lands
// back on the dashboard with the outcome in the query string.
func HandleCallback(accounts *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != GetStateToken() {
			redirectWithError(w, r, "invalid_state")
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			redirectWithError(w, r, "missing_code")
			return
		}

		tm := token.NewManager(OAuthConfig(redirectURLFor(r)))

		creds, err := tm.ExchangeCode(r.Context(), code)
		if err != nil {
			log.Printf("❌ OAuth exchange failed: %v", err)
			redirectWithError(w, r, "exchange_failed")
			return
		}
		if creds.RefreshToken == "" {
			// Happens when consent was granted previously without
			// ApprovalForce; the account would be unusable after an hour.
			redirectWithError(w, r, "no_refresh_token")
			return
		}

		identity := tm.FetchIdentity(r.Context(), creds.AccessToken)

		acct, err := accounts.Upsert(store.Account{
			Email:        identity.Email,
			Name:         identity.Name,
			Picture:      identity.Picture,
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			ExpiresAt:    creds.Expiry.UnixMilli(),
		})
		if err != nil {
			log.Printf("❌ Failed to save account: %v", err)
			redirectWithError(w, r, "save_failed")
			return
		}

		log.Printf("✅ Account added via OAuth: %s", acct.Email)
		http.Redirect(w, r, "/?success=account_added&email="+url.QueryEscape(acct.Email), http.StatusTemporaryRedirect)
	}
}

func redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(code), http.StatusTemporaryRedirect)
}
