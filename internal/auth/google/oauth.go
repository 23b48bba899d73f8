package google

import (
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// OAuth credentials matching the Antigravity desktop client. Overridable via
// environment (.env is loaded at startup) for users with their own client.
const (
	DefaultClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	DefaultClientSecret = "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"
)

// Scopes requested when adding an account. cloud-platform is what the
// cloudcode quota endpoints authenticate against.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/cloud-platform",
}

// OAuthConfig returns the oauth2 config used for both the browser consent
// flow and refresh-token grants.
func OAuthConfig(redirectURL string) *oauth2.Config {
	clientID := firstEnv("GOOGLE_CLIENT_ID", "CLIENT_ID")
	if clientID == "" {
		clientID = DefaultClientID
	}

	clientSecret := firstEnv("GOOGLE_CLIENT_SECRET", "CLIENT_SECRET")
	if clientSecret == "" {
		clientSecret = DefaultClientSecret
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     googleOAuth.Endpoint,
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
