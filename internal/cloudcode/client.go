// Package cloudcode talks to Google's internal Code Assist API, the quota
// provider behind Antigravity. Two endpoints are used: loadCodeAssist to
// resolve the per-account companion project id, and fetchAvailableModels for
// raw per-model quota entries.
package cloudcode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://cloudcode-pa.googleapis.com"

	// UserAgent mimics the Antigravity desktop client; the API rejects
	// unrecognized agents.
	UserAgent = "antigravity/1.11.3"

	// FallbackProjectID is the shared companion project used when an account
	// has no resolvable project of its own.
	FallbackProjectID = "bamboo-precept-lgxtn"

	requestTimeout = 30 * time.Second
)

// ErrForbidden is returned when the provider rejects the account outright
// (revoked access, unsupported region). Callers surface it per-account rather
// than failing the whole batch.
var ErrForbidden = errors.New("provider forbids quota access for this account")

// QuotaInfo is the raw per-model quota the provider reports.
// RemainingFraction is a pointer: the provider omits it for exhausted models,
// which counts as zero.
type QuotaInfo struct {
	RemainingFraction *float64 `json:"remainingFraction"`
	ResetTime         string   `json:"resetTime"`
}

// ModelInfo is one entry of the fetchAvailableModels response. Entries
// without quota info are skipped during normalization.
type ModelInfo struct {
	QuotaInfo *QuotaInfo `json:"quotaInfo"`
}

// Client is a bearer-authenticated JSON client for the cloudcode endpoints.
type Client struct {
	rc *resty.Client
}

// NewClient creates a client against the production endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom endpoint (tests).
func NewClientWithBaseURL(baseURL string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", UserAgent).
		SetHeader("Content-Type", "application/json")
	return &Client{rc: rc}
}

// ResolveProjectID resolves the account's companion project via
// loadCodeAssist. Resolution is best-effort: any error falls back to the
// shared project id, since quota fetches still work against it.
func (c *Client) ResolveProjectID(ctx context.Context, accessToken string) string {
	var out struct {
		CloudaicompanionProject string `json:"cloudaicompanionProject"`
		Config                  struct {
			ProjectID string `json:"projectId"`
		} `json:"codeAssistConfig"`
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]any{"metadata": map[string]string{"ideType": "ANTIGRAVITY"}}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/v1internal:loadCodeAssist")
	if err != nil {
		log.Printf("⚠️ loadCodeAssist failed, using fallback project: %v", err)
		return FallbackProjectID
	}
	if !resp.IsSuccess() {
		log.Printf("⚠️ loadCodeAssist returned %d, using fallback project", resp.StatusCode())
		return FallbackProjectID
	}
	if out.CloudaicompanionProject != "" {
		return out.CloudaicompanionProject
	}
	if out.Config.ProjectID != "" {
		return out.Config.ProjectID
	}
	return FallbackProjectID
}

// FetchModelQuotas returns the raw per-model quota entries for a project.
func (c *Client) FetchModelQuotas(ctx context.Context, accessToken, projectID string) (map[string]ModelInfo, error) {
	var out struct {
		Models map[string]ModelInfo `json:"models"`
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]string{"project": projectID}).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/v1internal:fetchAvailableModels")
	if err != nil {
		return nil, fmt.Errorf("fetchAvailableModels: %w", err)
	}
	if resp.StatusCode() == http.StatusForbidden {
		return nil, ErrForbidden
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetchAvailableModels returned %d", resp.StatusCode())
	}
	return out.Models, nil
}
