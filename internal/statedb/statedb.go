// Package statedb edits Antigravity's own persisted state: the ItemTable
// key-value store inside state.vscdb. It is only safe to use while
// Antigravity is not running; the switch orchestrator guarantees that.
package statedb

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/irishavmishra/antigravity-switch/internal/protopatch"
)

const (
	// credentialKey holds the base64 agent state blob whose field 6 is the
	// OAuth credential sub-message.
	credentialKey = "jetskiStateSync.agentManagerInitState"

	// authStatusKey holds a JSON object describing the signed-in identity.
	authStatusKey = "antigravityAuthStatus"
)

// cacheKeys hold per-identity state that must not survive a switch. Each is
// deleted together with every key sharing its dotted prefix.
var cacheKeys = []string{
	"google.geminicodeassist",
	"google.geminicodeassist.hasRunOnce",
	"geminiCodeAssist.chatThreads",
}

// AuthStatus is the identity object written under authStatusKey.
type AuthStatus struct {
	Email  string `json:"email"`
	APIKey string `json:"apiKey"`
	Name   string `json:"name"`
}

// DB wraps one state.vscdb file. The connection is opened per Apply call;
// holding it open would keep the file locked while Antigravity restarts.
type DB struct {
	path string
}

// New wraps the state database at the given path.
func New(path string) *DB {
	return &DB{path: path}
}

// Path returns the wrapped database path.
func (d *DB) Path() string {
	return d.path
}

// DefaultPath returns the conventional state.vscdb location for this OS.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Antigravity", "User", "globalStorage", "state.vscdb"), nil
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Antigravity", "User", "globalStorage", "state.vscdb"), nil
	default:
		return filepath.Join(home, ".config", "Antigravity", "User", "globalStorage", "state.vscdb"), nil
	}
}

// CleanSidecars removes stale WAL/shared-memory files next to the database.
// A previous hard kill can leave them behind holding the old journal; errors
// are ignored since the files usually don't exist.
func (d *DB) CleanSidecars() {
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(d.path + suffix)
	}
}

// Apply rewrites the session identity inside the state database in a single
// transaction: patch the credential blob, upsert the auth status object, and
// drop per-identity caches. All three commit together or not at all.
//
// A credential blob that fails to parse is logged and skipped; the remaining
// writes still commit, since a fresh auth status alone is enough for
// Antigravity to re-establish the session.
func (d *DB) Apply(auth AuthStatus, accessToken, refreshToken string, expiry int64) error {
	if _, err := os.Stat(d.path); err != nil {
		return fmt.Errorf("antigravity state database not found at %s (is Antigravity installed?)", d.path)
	}

	// The database may have been left read-only by the app; make it and its
	// sidecars writable before opening.
	os.Chmod(d.path, 0o644)
	for _, suffix := range []string{"-wal", "-shm", ".backup"} {
		os.Chmod(d.path+suffix, 0o644)
	}

	db, err := gorm.Open(sqlite.Open(d.path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer sqlDB.Close()

	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}

	authJSON, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("encode auth status: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var blob string
		if err := tx.Raw("SELECT value FROM ItemTable WHERE key = ?", credentialKey).Scan(&blob).Error; err != nil {
			return fmt.Errorf("read credential blob: %w", err)
		}
		if blob != "" {
			patched, err := protopatch.Patch(blob, accessToken, refreshToken, expiry)
			if err != nil {
				// Unparsable blob: leave it alone, the auth status rewrite
				// below still flips the visible identity.
				log.Printf("⚠️ Skipping credential blob rewrite: %v", err)
			} else if err := tx.Exec("UPDATE ItemTable SET value = ? WHERE key = ?", patched, credentialKey).Error; err != nil {
				return fmt.Errorf("write credential blob: %w", err)
			}
		}

		if err := tx.Exec("INSERT OR REPLACE INTO ItemTable (key, value) VALUES (?, ?)", authStatusKey, string(authJSON)).Error; err != nil {
			return fmt.Errorf("write auth status: %w", err)
		}

		for _, key := range cacheKeys {
			if err := tx.Exec("DELETE FROM ItemTable WHERE key = ? OR key LIKE ?", key, key+".%").Error; err != nil {
				return fmt.Errorf("clear cache key %s: %w", key, err)
			}
		}
		return nil
	})
}
