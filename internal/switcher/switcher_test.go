package switcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/irishavmishra/antigravity-switch/internal/auth/token"
	"github.com/irishavmishra/antigravity-switch/internal/statedb"
	"github.com/irishavmishra/antigravity-switch/internal/store"
)

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(context.Context, string) (token.Credentials, error) {
	f.calls++
	if f.err != nil {
		return token.Credentials{}, f.err
	}
	return token.Credentials{
		AccessToken:  "fresh-at",
		RefreshToken: "fresh-rt",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

type fakeState struct {
	mu         sync.Mutex
	applyCalls int
	cleanCalls int
	applyErr   error
	lastAuth   statedb.AuthStatus
	block      chan struct{} // when set, Apply blocks until closed
}

func (f *fakeState) Apply(auth statedb.AuthStatus, _, _ string, _ int64) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	f.lastAuth = auth
	return f.applyErr
}

func (f *fakeState) CleanSidecars() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanCalls++
}

type fakeProc struct {
	mu          sync.Mutex
	killCalls   int
	launchCalls int
	relaunchErr error
}

func (f *fakeProc) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killCalls++
	return nil
}

func (f *fakeProc) Relaunch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launchCalls++
	return f.relaunchErr
}

func newTestOrchestrator(t *testing.T, tokens *fakeRefresher, state *fakeState, proc *fakeProc) (*Orchestrator, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "accounts.json"))
	o := New(st, tokens, state, proc)
	o.killSettle = 0
	o.lockSettle = 0
	return o, st
}

func TestSwitchUnknownAccountTouchesNothing(t *testing.T) {
	state := &fakeState{}
	proc := &fakeProc{}
	o, st := newTestOrchestrator(t, &fakeRefresher{}, state, proc)
	st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1"})

	_, err := o.Switch(context.Background(), "no-such-id")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if proc.killCalls != 0 || state.applyCalls != 0 || state.cleanCalls != 0 {
		t.Fatalf("no destructive action may run for an unknown id: kill=%d apply=%d clean=%d",
			proc.killCalls, state.applyCalls, state.cleanCalls)
	}
}

func TestSwitchRefreshFailureAbortsBeforeKill(t *testing.T) {
	state := &fakeState{}
	proc := &fakeProc{}
	tokens := &fakeRefresher{err: errors.New("invalid_grant")}
	o, st := newTestOrchestrator(t, tokens, state, proc)
	acct, _ := st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1"})

	_, err := o.Switch(context.Background(), acct.ID)
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if proc.killCalls != 0 || state.applyCalls != 0 {
		t.Fatal("refresh failure must abort before any destructive action")
	}
}

func TestSwitchHappyPath(t *testing.T) {
	state := &fakeState{}
	proc := &fakeProc{}
	tokens := &fakeRefresher{}
	o, st := newTestOrchestrator(t, tokens, state, proc)
	a, _ := st.Add(store.Account{Email: "a@x.com", Name: "Alice", RefreshToken: "rt-a"})
	b, _ := st.Add(store.Account{Email: "b@x.com", RefreshToken: "rt-b"})

	res, err := o.Switch(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if res.Email != "b@x.com" {
		t.Fatalf("result email = %q", res.Email)
	}
	if proc.killCalls != 1 || state.cleanCalls != 1 || state.applyCalls != 1 || proc.launchCalls != 1 {
		t.Fatalf("step counts: kill=%d clean=%d apply=%d launch=%d",
			proc.killCalls, state.cleanCalls, state.applyCalls, proc.launchCalls)
	}
	if state.lastAuth.Email != "b@x.com" || state.lastAuth.APIKey != "fresh-at" {
		t.Fatalf("auth written = %+v", state.lastAuth)
	}

	// Active flag flipped, exactly one active, tokens and lastSwitched persisted.
	after, _ := st.Find(b.ID)
	if !after.IsActive || after.AccessToken != "fresh-at" || after.LastSwitched == 0 {
		t.Fatalf("switched account not updated: %+v", after)
	}
	if prev, _ := st.Find(a.ID); prev.IsActive {
		t.Fatal("previous account still active")
	}
}

func TestSwitchSkipsRefreshForFreshToken(t *testing.T) {
	tokens := &fakeRefresher{}
	state := &fakeState{}
	o, st := newTestOrchestrator(t, tokens, state, &fakeProc{})
	acct, _ := st.Add(store.Account{
		Email:        "a@x.com",
		RefreshToken: "rt-1",
		AccessToken:  "cached-at",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	})

	if _, err := o.Switch(context.Background(), acct.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if tokens.calls != 0 {
		t.Fatalf("token still fresh, expected no refresh, got %d", tokens.calls)
	}
	if state.lastAuth.APIKey != "cached-at" {
		t.Fatalf("expected cached token to be injected, got %q", state.lastAuth.APIKey)
	}
}

func TestSwitchRefreshesNearExpiryToken(t *testing.T) {
	tokens := &fakeRefresher{}
	o, st := newTestOrchestrator(t, tokens, &fakeState{}, &fakeProc{})
	acct, _ := st.Add(store.Account{
		Email:        "a@x.com",
		RefreshToken: "rt-1",
		AccessToken:  "stale-at",
		ExpiresAt:    time.Now().Add(2 * time.Minute).UnixMilli(), // inside the 5-minute skew
	})

	if _, err := o.Switch(context.Background(), acct.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if tokens.calls != 1 {
		t.Fatalf("expected a refresh for a near-expiry token, got %d", tokens.calls)
	}
}

func TestSwitchStatePatchFailurePropagates(t *testing.T) {
	state := &fakeState{applyErr: errors.New("database locked")}
	proc := &fakeProc{}
	o, st := newTestOrchestrator(t, &fakeRefresher{}, state, proc)
	acct, _ := st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1"})

	_, err := o.Switch(context.Background(), acct.ID)
	if err == nil {
		t.Fatal("expected patch error")
	}
	if proc.launchCalls != 0 {
		t.Fatal("must not relaunch after a failed patch")
	}
	// Active flag untouched: Add made the single account active already, but
	// lastSwitched must not be recorded.
	after, _ := st.Find(acct.ID)
	if after.LastSwitched != 0 {
		t.Fatal("lastSwitched must not be set on failure")
	}
}

func TestSwitchRelaunchFailureStillReportsEmail(t *testing.T) {
	proc := &fakeProc{relaunchErr: errors.New("no executable")}
	o, st := newTestOrchestrator(t, &fakeRefresher{}, &fakeState{}, proc)
	acct, _ := st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1"})

	res, err := o.Switch(context.Background(), acct.ID)
	if err == nil {
		t.Fatal("relaunch failure must be reported")
	}
	if res.Email != "a@x.com" {
		t.Fatalf("patch already committed, result must carry the email: %+v", res)
	}
	if after, _ := st.Find(acct.ID); !after.IsActive {
		t.Fatal("account must stay active despite relaunch failure")
	}
}

func TestConcurrentSwitchRejected(t *testing.T) {
	block := make(chan struct{})
	state := &fakeState{block: block}
	o, st := newTestOrchestrator(t, &fakeRefresher{}, state, &fakeProc{})
	acct, _ := st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1"})

	done := make(chan error, 1)
	go func() {
		_, err := o.Switch(context.Background(), acct.ID)
		done <- err
	}()

	// Wait for the first switch to reach the blocking Apply.
	deadline := time.After(2 * time.Second)
	for {
		state.mu.Lock()
		started := state.cleanCalls > 0
		state.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first switch never started")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := o.Switch(context.Background(), acct.ID); !errors.Is(err, ErrSwitchInProgress) {
		t.Fatalf("expected ErrSwitchInProgress, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first switch: %v", err)
	}
}
