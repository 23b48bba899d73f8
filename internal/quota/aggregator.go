package quota

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/irishavmishra/antigravity-switch/internal/auth/token"
	"github.com/irishavmishra/antigravity-switch/internal/cloudcode"
	"github.com/irishavmishra/antigravity-switch/internal/store"
)

// TokenRefresher refreshes an account's access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (token.Credentials, error)
}

// Provider is the quota side of the cloudcode client.
type Provider interface {
	ResolveProjectID(ctx context.Context, accessToken string) string
	FetchModelQuotas(ctx context.Context, accessToken, projectID string) (map[string]cloudcode.ModelInfo, error)
}

// AccountQuota is one account's entry in the dashboard listing.
type AccountQuota struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Quota       Snapshot `json:"quota"`
	IsActive    bool     `json:"isActive"`
	LastChecked int64    `json:"lastChecked,omitempty"`
}

// Aggregator fetches quota telemetry for every stored account.
type Aggregator struct {
	accounts *store.Store
	tokens   TokenRefresher
	provider Provider
}

// NewAggregator wires the aggregator to its collaborators.
func NewAggregator(accounts *store.Store, tokens TokenRefresher, provider Provider) *Aggregator {
	return &Aggregator{accounts: accounts, tokens: tokens, provider: provider}
}

// FetchAll walks every stored account: refresh its token, resolve its
// project, fetch and normalize quotas. The token is always refreshed so the
// listing reflects current provider state (a revoked account shows its error
// immediately). One account's failure never aborts the batch; its entry
// carries the error and the loop moves on. Accounts whose refresh succeeded
// get their stored token, expiry, and lastChecked updated.
func (a *Aggregator) FetchAll(ctx context.Context) []AccountQuota {
	accounts := a.accounts.List()
	results := make([]AccountQuota, 0, len(accounts))

	for _, acct := range accounts {
		entry := AccountQuota{
			ID:       acct.ID,
			Email:    acct.Email,
			Name:     acct.DisplayName(),
			IsActive: acct.IsActive,
		}

		creds, err := a.tokens.Refresh(ctx, acct.RefreshToken)
		if err != nil {
			log.Printf("⚠️ Quota refresh failed for %s: %v", acct.Email, err)
			entry.Quota.Error = err.Error()
			results = append(results, entry)
			continue
		}

		now := time.Now().UnixMilli()
		if err := a.accounts.Update(acct.ID, func(s *store.Account) {
			s.AccessToken = creds.AccessToken
			s.ExpiresAt = creds.Expiry.UnixMilli()
			s.LastChecked = now
		}); err != nil {
			log.Printf("⚠️ Failed to persist refreshed token for %s: %v", acct.Email, err)
		}
		entry.LastChecked = now

		projectID := a.provider.ResolveProjectID(ctx, creds.AccessToken)
		models, err := a.provider.FetchModelQuotas(ctx, creds.AccessToken, projectID)
		switch {
		case errors.Is(err, cloudcode.ErrForbidden):
			entry.Quota.Error = "forbidden"
		case err != nil:
			entry.Quota.Error = err.Error()
		default:
			entry.Quota.Models = Normalize(models)
		}
		results = append(results, entry)
	}
	return results
}
