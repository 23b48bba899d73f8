// Package store persists the set of known accounts and which one is active.
//
// Persistence is deliberately simple: the whole account list lives in a single
// JSON file under the user's data directory, and every mutation loads the full
// set, changes it, and writes the full set back. There is no incremental
// format; the file on disk is always a complete, valid snapshot.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an account id does not exist in the store.
var ErrNotFound = errors.New("account not found")

// Account is a stored identity plus its OAuth credential bundle.
// Timestamps are unix milliseconds, matching what the dashboard consumes.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Picture      string `json:"picture,omitempty"`
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	IsActive     bool   `json:"isActive"`
	AddedAt      int64  `json:"addedAt,omitempty"`
	LastChecked  int64  `json:"lastChecked,omitempty"`
	LastSwitched int64  `json:"lastSwitched,omitempty"`
}

// DisplayName returns the account name, defaulting to the email local-part.
func (a Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if i := strings.IndexByte(a.Email, '@'); i > 0 {
		return a.Email[:i]
	}
	return a.Email
}

// Store is a file-backed account repository. All methods are safe for
// concurrent use from HTTP handlers.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store persisting to the given JSON file path.
func New(path string) *Store {
	return &Store{path: path}
}

// load reads the full account list. An absent or unreadable file counts as an
// empty store; only writes fail loudly.
func (s *Store) load() []Account {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil
	}
	return accounts
}

func (s *Store) save(accounts []Account) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	// The file holds refresh tokens, keep it private to the user.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	return nil
}

// List returns all stored accounts.
func (s *Store) List() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Find returns the account with the given id.
func (s *Store) Find(id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.load() {
		if a.ID == id {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

// FindByEmail returns the account with the given email, if any.
func (s *Store) FindByEmail(email string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.load() {
		if a.Email == email {
			return a, true
		}
	}
	return Account{}, false
}

// Add assigns a fresh id to the account and appends it. The first account ever
// added becomes the active one.
func (s *Store) Add(account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load()
	account.ID = uuid.New().String()
	account.IsActive = len(accounts) == 0
	if account.AddedAt == 0 {
		account.AddedAt = time.Now().UnixMilli()
	}
	accounts = append(accounts, account)
	if err := s.save(accounts); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Remove deletes the account with the given id, reporting whether it existed.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load()
	kept := accounts[:0]
	for _, a := range accounts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(accounts) {
		return false, nil
	}
	return true, s.save(kept)
}

// SetActive marks the given account active and clears the flag on every other
// account, so at most one account is ever active.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load()
	found := false
	for i := range accounts {
		accounts[i].IsActive = accounts[i].ID == id
		if accounts[i].ID == id {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return s.save(accounts)
}

// Active returns the currently active account, if any.
func (s *Store) Active() (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.load() {
		if a.IsActive {
			return a, true
		}
	}
	return Account{}, false
}

// Update applies fn to the stored account with the given id and persists the
// result. fn must not change the account id.
func (s *Store) Update(id string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load()
	for i := range accounts {
		if accounts[i].ID == id {
			fn(&accounts[i])
			return s.save(accounts)
		}
	}
	return ErrNotFound
}

// ReplaceAll overwrites the entire store with the given accounts.
func (s *Store) ReplaceAll(accounts []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(accounts)
}

// Upsert saves the account keyed by email: an existing account with the same
// email is overwritten in place (keeping its id), otherwise the account is
// added with a fresh id. Used by the OAuth callback.
func (s *Store) Upsert(account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load()
	for i := range accounts {
		if accounts[i].Email == account.Email {
			account.ID = accounts[i].ID
			account.IsActive = accounts[i].IsActive
			account.AddedAt = accounts[i].AddedAt
			accounts[i] = account
			return account, s.save(accounts)
		}
	}
	account.ID = uuid.New().String()
	account.IsActive = len(accounts) == 0
	if account.AddedAt == 0 {
		account.AddedAt = time.Now().UnixMilli()
	}
	accounts = append(accounts, account)
	return account, s.save(accounts)
}

// Import merges the given accounts into the store, matching by email.
// Existing accounts are overwritten field-by-field with the imported values
// (keeping their id); new accounts get a fresh id when theirs is missing or
// collides with a stored one. Entries without email or refresh token are
// skipped. Returns how many accounts were added and updated.
func (s *Store) Import(imported []Account) (added, updated int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.load()
	for _, imp := range imported {
		if imp.Email == "" || imp.RefreshToken == "" {
			continue
		}
		merged := false
		for i := range accounts {
			if accounts[i].Email == imp.Email {
				imp.ID = accounts[i].ID
				accounts[i] = imp
				updated++
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		if imp.ID == "" || idInUse(accounts, imp.ID) {
			imp.ID = uuid.New().String()
		}
		accounts = append(accounts, imp)
		added++
	}
	if err := s.save(accounts); err != nil {
		return 0, 0, err
	}
	return added, updated, nil
}

func idInUse(accounts []Account, id string) bool {
	for _, a := range accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Export writes the full account list as pretty-printed JSON, the same shape
// Import accepts.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := s.load()
	if accounts == nil {
		accounts = []Account{}
	}
	return json.MarshalIndent(accounts, "", "  ")
}
