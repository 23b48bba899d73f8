// Package server exposes the account switch engine over a local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irishavmishra/antigravity-switch/internal/auth/token"
	"github.com/irishavmishra/antigravity-switch/internal/discovery"
	"github.com/irishavmishra/antigravity-switch/internal/quota"
	"github.com/irishavmishra/antigravity-switch/internal/store"
	"github.com/irishavmishra/antigravity-switch/internal/switcher"
	"github.com/irishavmishra/antigravity-switch/internal/version"
)

// TokenValidator covers the two token-manager calls handlers make.
type TokenValidator interface {
	Refresh(ctx context.Context, refreshToken string) (token.Credentials, error)
	FetchIdentity(ctx context.Context, accessToken string) token.Identity
}

// Switcher performs an account switch.
type Switcher interface {
	Switch(ctx context.Context, id string) (switcher.Result, error)
}

// QuotaLister produces the per-account quota listing.
type QuotaLister interface {
	FetchAll(ctx context.Context) []quota.AccountQuota
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

// ListAccountsHandler returns every account with live quota telemetry.
func ListAccountsHandler(quotas QuotaLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"accounts": quotas.FetchAll(r.Context()),
		})
	}
}

// AddAccountRequest is the body for manual account registration.
type AddAccountRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RefreshToken string `json:"refreshToken"`
}

// AddAccountHandler registers an account from a raw refresh token. The token
// is validated against the provider before anything is stored; when no email
// is supplied the provider identity fills it in.
func AddAccountHandler(accounts *store.Store, tokens TokenValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "refreshToken is required")
			return
		}

		creds, err := tokens.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			log.Printf("❌ Refresh token validation failed: %v", err)
			writeError(w, http.StatusBadRequest, "Refresh token was rejected by Google")
			return
		}

		email := req.Email
		name := req.Name
		picture := ""
		if email == "" || name == "" {
			identity := tokens.FetchIdentity(r.Context(), creds.AccessToken)
			if email == "" {
				email = identity.Email
			}
			if name == "" {
				name = identity.Name
			}
			picture = identity.Picture
		}

		acct, err := accounts.Upsert(store.Account{
			Email:        email,
			Name:         name,
			Picture:      picture,
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			ExpiresAt:    creds.Expiry.UnixMilli(),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		log.Printf("✅ Account added: %s", acct.Email)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"account": acct,
		})
	}
}

// DeleteAccountHandler removes an account by id.
func DeleteAccountHandler(accounts *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		removed, err := accounts.Remove(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !removed {
			writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("🗑️ Account removed: %s", id)
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// ActiveAccountHandler reports which account currently owns the IDE identity.
func ActiveAccountHandler(accounts *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, ok := accounts.Active()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"account": nil,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"account": acct,
		})
	}
}

// SwitchAccountHandler drives the kill/patch/relaunch sequence.
func SwitchAccountHandler(orch Switcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := orch.Switch(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Account not found")
		case errors.Is(err, switcher.ErrSwitchInProgress):
			writeError(w, http.StatusConflict, "A switch is already in progress")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"email":   res.Email,
			})
		}
	}
}

// ExportAccountsHandler streams the account store as a downloadable file.
// Refresh tokens are included, so the file is as sensitive as the store
// itself.
func ExportAccountsHandler(accounts *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := accounts.Export()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="antigravity-accounts.json"`)
		w.Write(data)
	}
}

// ImportAccountsHandler merges an exported account list into the store.
func ImportAccountsHandler(accounts *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var imported []store.Account
		if err := json.NewDecoder(r.Body).Decode(&imported); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid format: expected an array of accounts")
			return
		}

		added, updated, err := accounts.Import(imported)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Printf("📥 Import complete: %d added, %d updated", added, updated)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"added":   added,
			"updated": updated,
		})
	}
}

// DiscoveryScanHandler scans local tool configs and returns masked results
func DiscoveryScanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := discovery.ScanAll()

		maskedCreds := make([]discovery.Credential, len(result.Credentials))
		for i, cred := range result.Credentials {
			maskedCreds[i] = discovery.MaskCredential(cred)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"credentials": maskedCreds,
			"errors":      result.Errors,
			"count":       len(result.Credentials),
		})
	}
}

// DiscoveryImportHandler re-scans local tool configs and merges every usable
// credential into the store. Credentials without an email are resolved via
// the provider before import.
func DiscoveryImportHandler(accounts *store.Store, tokens TokenValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := discovery.ScanAll()

		imported := make([]store.Account, 0, len(result.Credentials))
		skipped := 0
		for _, cred := range result.Credentials {
			email := cred.Email
			name := ""
			if email == "" {
				creds, err := tokens.Refresh(r.Context(), cred.RefreshToken)
				if err != nil {
					log.Printf("⚠️ Skipping %s credential, refresh failed: %v", cred.Source, err)
					skipped++
					continue
				}
				identity := tokens.FetchIdentity(r.Context(), creds.AccessToken)
				email = identity.Email
				name = identity.Name
			}
			imported = append(imported, store.Account{
				Email:        email,
				Name:         name,
				RefreshToken: cred.RefreshToken,
				AccessToken:  cred.AccessToken,
			})
		}

		added, updated, err := accounts.Import(imported)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Printf("📥 Discovery import: %d added, %d updated, %d skipped", added, updated, skipped)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"added":   added,
			"updated": updated,
			"skipped": skipped,
		})
	}
}

// VersionHandler reports build information.
func VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"version":   version.Version,
			"commit":    version.Commit,
			"buildTime": version.BuildTime,
		})
	}
}
