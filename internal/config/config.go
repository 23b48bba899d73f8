// Package config assembles runtime settings from defaults, an optional YAML
// file in the data directory, and environment variables (a .env file next to
// the binary is honored, matching how the OAuth client secret is usually
// supplied).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 3847

	dataDirName = ".antigravity-manager"
)

// Config holds everything the engine needs to find its collaborators.
type Config struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	// StateDBPath overrides the conventional state.vscdb location, mainly
	// for portable Antigravity installs.
	StateDBPath string `yaml:"state_db_path"`
}

// Load builds the configuration. Precedence: env vars > config.yaml >
// built-in defaults.
func Load() (*Config, error) {
	// Best-effort; most installs have no .env.
	godotenv.Load()

	cfg := &Config{Host: defaultHost, Port: defaultPort}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	cfg.DataDir = filepath.Join(home, dataDirName)

	if err := cfg.applyFile(filepath.Join(cfg.DataDir, "config.yaml")); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if host := os.Getenv("HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Port = p
		}
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AccountsPath is the account store file.
func (c *Config) AccountsPath() string {
	return filepath.Join(c.DataDir, "accounts.json")
}

// RedirectURL is the OAuth callback URL registered with the provider. The
// consent flow runs in a local browser, so localhost is always correct
// regardless of the listen host.
func (c *Config) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d/auth/callback", c.Port)
}
