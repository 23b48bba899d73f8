package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/irishavmishra/antigravity-switch/internal/auth/google"
	"github.com/irishavmishra/antigravity-switch/internal/store"
)

// Deps bundles everything the router needs.
type Deps struct {
	Accounts *store.Store
	Tokens   TokenValidator
	Quotas   QuotaLister
	Switcher Switcher
}

// NewRouter assembles the HTTP surface: dashboard, OAuth flow, and the
// JSON API the dashboard talks to.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", DashboardHandler())

	// OAuth flow
	r.Get("/auth/login", google.HandleLogin)
	r.Get("/auth/callback", google.HandleCallback(d.Accounts))

	r.Route("/api", func(r chi.Router) {
		r.Get("/accounts", ListAccountsHandler(d.Quotas))
		r.Post("/accounts", AddAccountHandler(d.Accounts, d.Tokens))
		r.Delete("/accounts/{id}", DeleteAccountHandler(d.Accounts))
		r.Post("/accounts/{id}/switch", SwitchAccountHandler(d.Switcher))
		r.Get("/active", ActiveAccountHandler(d.Accounts))

		r.Get("/export", ExportAccountsHandler(d.Accounts))
		r.Post("/import", ImportAccountsHandler(d.Accounts))

		r.Get("/discovery/scan", DiscoveryScanHandler())
		r.Post("/discovery/import", DiscoveryImportHandler(d.Accounts, d.Tokens))

		r.Get("/version", VersionHandler())
	})

	return r
}
