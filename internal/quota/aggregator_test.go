package quota

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/irishavmishra/antigravity-switch/internal/auth/token"
	"github.com/irishavmishra/antigravity-switch/internal/cloudcode"
	"github.com/irishavmishra/antigravity-switch/internal/store"
)

type fakeRefresher struct {
	failFor map[string]error
	calls   []string
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (token.Credentials, error) {
	f.calls = append(f.calls, refreshToken)
	if err, ok := f.failFor[refreshToken]; ok {
		return token.Credentials{}, err
	}
	return token.Credentials{
		AccessToken:  "at-for-" + refreshToken,
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

type fakeProvider struct {
	quotas    map[string]cloudcode.ModelInfo
	forbidden bool
}

func (f *fakeProvider) ResolveProjectID(context.Context, string) string { return "proj-1" }

func (f *fakeProvider) FetchModelQuotas(context.Context, string, string) (map[string]cloudcode.ModelInfo, error) {
	if f.forbidden {
		return nil, cloudcode.ErrForbidden
	}
	return f.quotas, nil
}

func newTestAggregator(t *testing.T, tokens TokenRefresher, provider Provider) (*Aggregator, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "accounts.json"))
	return NewAggregator(st, tokens, provider), st
}

func TestFetchAllIsolatesPerAccountFailures(t *testing.T) {
	tokens := &fakeRefresher{failFor: map[string]error{"rt-bad": errors.New("invalid_grant")}}
	provider := &fakeProvider{quotas: map[string]cloudcode.ModelInfo{
		"models/gemini-3-pro": {QuotaInfo: &cloudcode.QuotaInfo{RemainingFraction: frac(0.5)}},
	}}
	agg, st := newTestAggregator(t, tokens, provider)

	st.Add(store.Account{Email: "good@x.com", RefreshToken: "rt-good"})
	st.Add(store.Account{Email: "bad@x.com", RefreshToken: "rt-bad"})
	st.Add(store.Account{Email: "also-good@x.com", RefreshToken: "rt-good2"})

	results := agg.FetchAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("batch must not abort: got %d results", len(results))
	}
	if results[0].Quota.Error != "" || len(results[0].Quota.Models) != 1 {
		t.Fatalf("first account: %+v", results[0].Quota)
	}
	if results[1].Quota.Error == "" {
		t.Fatal("failing account must carry its error")
	}
	if results[2].Quota.Error != "" {
		t.Fatalf("account after the failure must still be processed: %+v", results[2].Quota)
	}
	if len(tokens.calls) != 3 {
		t.Fatalf("every account must be attempted, got %d refresh calls", len(tokens.calls))
	}
}

func TestFetchAllPersistsRefreshedTokens(t *testing.T) {
	tokens := &fakeRefresher{}
	agg, st := newTestAggregator(t, tokens, &fakeProvider{})

	acct, _ := st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1", AccessToken: "stale"})
	agg.FetchAll(context.Background())

	updated, err := st.Find(acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.AccessToken != "at-for-rt-1" {
		t.Fatalf("access token not persisted: %q", updated.AccessToken)
	}
	if updated.LastChecked == 0 || updated.ExpiresAt == 0 {
		t.Fatalf("timestamps not persisted: %+v", updated)
	}
}

func TestFetchAllLeavesTokenUntouchedOnRefreshFailure(t *testing.T) {
	tokens := &fakeRefresher{failFor: map[string]error{"rt-1": errors.New("boom")}}
	agg, st := newTestAggregator(t, tokens, &fakeProvider{})

	acct, _ := st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1", AccessToken: "cached"})
	agg.FetchAll(context.Background())

	after, err := st.Find(acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.AccessToken != "cached" {
		t.Fatalf("cached token must be left unmodified on failure, got %q", after.AccessToken)
	}
}

func TestFetchAllForbidden(t *testing.T) {
	agg, st := newTestAggregator(t, &fakeRefresher{}, &fakeProvider{forbidden: true})
	st.Add(store.Account{Email: "a@x.com", RefreshToken: "rt-1"})

	results := agg.FetchAll(context.Background())
	if results[0].Quota.Error != "forbidden" {
		t.Fatalf("expected forbidden error, got %+v", results[0].Quota)
	}
	if len(results[0].Quota.Models) != 0 {
		t.Fatal("forbidden accounts must not carry a model list")
	}
}
