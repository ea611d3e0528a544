// Package auth holds the static account table and the token manager for the
// HTTP boundary. Accounts are loaded once at startup and never change at
// runtime; there is no other access-control model.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"pidrive-backend/internal/fault"
)

// Account is one entry of the user table: a name (unique ignoring case), a
// bcrypt password hash, and the storage quota in gigabytes.
type Account struct {
	Name           string `json:"username"`
	PasswordHash   string `json:"password_hash"`
	StorageLimitGB int64  `json:"storage_limit_gb"`
}

// FolderName returns the canonical form of the name used for the user's
// directory on the remote side.
func (a *Account) FolderName() string {
	return strings.ToLower(a.Name)
}

// StorageLimitBytes converts the configured gigabyte quota to bytes.
func (a *Account) StorageLimitBytes() int64 {
	return a.StorageLimitGB * 1_000_000_000
}

// Table is the immutable account set keyed by lower-cased name.
type Table struct {
	accounts map[string]*Account
}

// LoadTable reads the accounts file (a JSON array of Account records) and
// validates it. Duplicate names (ignoring case) and non-positive quotas are
// configuration errors.
func LoadTable(filename string) (*Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	t := &Table{accounts: make(map[string]*Account, len(accounts))}
	for i := range accounts {
		a := &accounts[i]
		if a.Name == "" {
			return nil, fmt.Errorf("account %d has an empty username", i)
		}
		if a.PasswordHash == "" {
			return nil, fmt.Errorf("account %q has an empty password_hash", a.Name)
		}
		if a.StorageLimitGB <= 0 {
			return nil, fmt.Errorf("account %q has a non-positive storage_limit_gb", a.Name)
		}
		key := strings.ToLower(a.Name)
		if _, exists := t.accounts[key]; exists {
			return nil, fmt.Errorf("duplicate account name %q (names are case-insensitive)", a.Name)
		}
		t.accounts[key] = a
	}

	return t, nil
}

// NewTable builds a table from in-memory accounts. Used by tests and by
// embedders that manage their own configuration loading.
func NewTable(accounts []Account) (*Table, error) {
	t := &Table{accounts: make(map[string]*Account, len(accounts))}
	for i := range accounts {
		a := accounts[i]
		key := strings.ToLower(a.Name)
		if _, exists := t.accounts[key]; exists {
			return nil, fmt.Errorf("duplicate account name %q (names are case-insensitive)", a.Name)
		}
		t.accounts[key] = &a
	}
	return t, nil
}

// Lookup finds an account by name, ignoring case.
func (t *Table) Lookup(name string) (*Account, bool) {
	a, ok := t.accounts[strings.ToLower(name)]
	return a, ok
}

// Authenticate checks name and password against the table. Unknown names and
// wrong passwords report the same failure so callers cannot probe for valid
// usernames.
func (t *Table) Authenticate(name, password string) (*Account, error) {
	a, ok := t.Lookup(name)
	if !ok {
		return nil, fault.New(fault.CodeAuthentication, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, fault.New(fault.CodeAuthentication, "invalid credentials")
	}
	return a, nil
}

// Len reports the number of configured accounts.
func (t *Table) Len() int {
	return len(t.accounts)
}
