// Package switcher coordinates the end-to-end account switch: freshen the
// token, stop Antigravity, patch its state database, flip the active flag,
// and relaunch.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/irishavmishra/antigravity-switch/internal/auth/token"
	"github.com/irishavmishra/antigravity-switch/internal/process"
	"github.com/irishavmishra/antigravity-switch/internal/statedb"
	"github.com/irishavmishra/antigravity-switch/internal/store"
)

// ErrSwitchInProgress is returned when a switch is requested while another is
// mid-flight. Interleaving two kill/patch/relaunch sequences would corrupt
// the target's state, so the engine accepts one switch at a time.
var ErrSwitchInProgress = errors.New("another account switch is in progress")

const (
	// refreshSkew: tokens expiring within this window are refreshed before
	// the switch rather than handing Antigravity an about-to-die token.
	refreshSkew = 5 * time.Minute

	// sessionTTL is the expiry written into the credential blob.
	sessionTTL = time.Hour

	defaultKillSettle = time.Second
	defaultLockSettle = 200 * time.Millisecond
)

// TokenRefresher freshens an account's access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (token.Credentials, error)
}

// StateWriter is the state-database side of the switch.
type StateWriter interface {
	Apply(auth statedb.AuthStatus, accessToken, refreshToken string, expiry int64) error
	CleanSidecars()
}

// Result reports a completed switch.
type Result struct {
	Email string `json:"email"`
}

// Orchestrator runs switches strictly one at a time.
type Orchestrator struct {
	accounts *store.Store
	tokens   TokenRefresher
	state    StateWriter
	proc     process.Controller

	// Single-slot lock covering the whole kill/patch/relaunch sequence.
	slot *semaphore.Weighted

	// Settle delays let the OS release file handles after a hard kill;
	// overridden in tests.
	killSettle time.Duration
	lockSettle time.Duration
}

// New wires the orchestrator to its collaborators.
func New(accounts *store.Store, tokens TokenRefresher, state StateWriter, proc process.Controller) *Orchestrator {
	return &Orchestrator{
		accounts:   accounts,
		tokens:     tokens,
		state:      state,
		proc:       proc,
		slot:       semaphore.NewWeighted(1),
		killSettle: defaultKillSettle,
		lockSettle: defaultLockSettle,
	}
}

// Switch makes the given account the active identity inside Antigravity.
//
// Failures before the process kill leave Antigravity untouched. Once the kill
// has begun the switch is no longer cancellable; a failure from then on can
// leave Antigravity stopped, but the state database is only ever changed by
// one atomic transaction, so no half-patched state is observable.
func (o *Orchestrator) Switch(ctx context.Context, id string) (Result, error) {
	if !o.slot.TryAcquire(1) {
		return Result{}, ErrSwitchInProgress
	}
	defer o.slot.Release(1)

	acct, err := o.accounts.Find(id)
	if err != nil {
		return Result{}, err
	}

	creds := token.Credentials{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		Expiry:       time.UnixMilli(acct.ExpiresAt),
	}
	if acct.AccessToken == "" || time.Now().After(creds.Expiry.Add(-refreshSkew)) {
		creds, err = o.tokens.Refresh(ctx, acct.RefreshToken)
		if err != nil {
			return Result{}, err
		}
	}

	log.Printf("🔄 Switching active account to %s", acct.Email)
	o.proc.Kill()
	time.Sleep(o.killSettle)

	o.state.CleanSidecars()
	time.Sleep(o.lockSettle)

	auth := statedb.AuthStatus{
		Email:  acct.Email,
		APIKey: creds.AccessToken,
		Name:   acct.DisplayName(),
	}
	expiry := time.Now().Add(sessionTTL).Unix()
	if err := o.state.Apply(auth, creds.AccessToken, creds.RefreshToken, expiry); err != nil {
		return Result{}, fmt.Errorf("patch state database: %w", err)
	}

	if err := o.accounts.SetActive(id); err != nil {
		return Result{}, err
	}
	now := time.Now().UnixMilli()
	if err := o.accounts.Update(id, func(s *store.Account) {
		s.AccessToken = creds.AccessToken
		s.RefreshToken = creds.RefreshToken
		s.ExpiresAt = creds.Expiry.UnixMilli()
		s.LastSwitched = now
	}); err != nil {
		return Result{}, err
	}

	if err := o.proc.Relaunch(); err != nil {
		// The patch is committed and the account is active; the user just has
		// to start Antigravity by hand.
		return Result{Email: acct.Email}, fmt.Errorf("relaunch antigravity: %w", err)
	}

	log.Printf("✅ Now signed in as %s", acct.Email)
	return Result{Email: acct.Email}, nil
}
