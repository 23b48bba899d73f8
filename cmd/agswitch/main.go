package main

import (
	"log"
	"net/http"

	"github.com/irishavmishra/antigravity-switch/internal/auth/google"
	"github.com/irishavmishra/antigravity-switch/internal/auth/token"
	"github.com/irishavmishra/antigravity-switch/internal/cloudcode"
	"github.com/irishavmishra/antigravity-switch/internal/config"
	"github.com/irishavmishra/antigravity-switch/internal/process"
	"github.com/irishavmishra/antigravity-switch/internal/quota"
	"github.com/irishavmishra/antigravity-switch/internal/server"
	"github.com/irishavmishra/antigravity-switch/internal/statedb"
	"github.com/irishavmishra/antigravity-switch/internal/store"
	"github.com/irishavmishra/antigravity-switch/internal/switcher"
	"github.com/irishavmishra/antigravity-switch/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	accounts := store.New(cfg.AccountsPath())

	statePath := cfg.StateDBPath
	if statePath == "" {
		statePath, err = statedb.DefaultPath()
		if err != nil {
			log.Fatalf("Failed to locate Antigravity state database: %v", err)
		}
	}
	state := statedb.New(statePath)

	tokens := token.NewManager(google.OAuthConfig(cfg.RedirectURL()))
	provider := cloudcode.NewClient()

	aggregator := quota.NewAggregator(accounts, tokens, provider)
	orchestrator := switcher.New(accounts, tokens, state, process.NewController())

	router := server.NewRouter(server.Deps{
		Accounts: accounts,
		Tokens:   tokens,
		Quotas:   aggregator,
		Switcher: orchestrator,
	})

	log.Printf("🚀 Antigravity-Switch %s starting on http://%s", version.Version, cfg.Addr())
	log.Printf("📊 Dashboard: http://localhost:%d", cfg.Port)
	log.Printf("📂 Accounts: %s", cfg.AccountsPath())
	log.Printf("🗄️ State database: %s", statePath)

	if err := http.ListenAndServe(cfg.Addr(), router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
