package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pidrive-backend/internal/fault"
)

func hashFor(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func writeAccountsFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadTable(t *testing.T) {
	hash := hashFor(t, "secret")
	path := writeAccountsFile(t, `[
		{"username": "Alice", "password_hash": "`+hash+`", "storage_limit_gb": 1},
		{"username": "bob", "password_hash": "`+hash+`", "storage_limit_gb": 5}
	]`)

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	a, ok := table.Lookup("ALICE")
	require.True(t, ok, "lookup must ignore case")
	assert.Equal(t, "Alice", a.Name)
	assert.Equal(t, "alice", a.FolderName())
	assert.Equal(t, int64(1_000_000_000), a.StorageLimitBytes())
}

func TestLoadTableRejectsBadConfig(t *testing.T) {
	hash := hashFor(t, "x")
	tests := []struct {
		name     string
		contents string
	}{
		{"duplicate ci name", `[
			{"username": "alice", "password_hash": "` + hash + `", "storage_limit_gb": 1},
			{"username": "ALICE", "password_hash": "` + hash + `", "storage_limit_gb": 1}
		]`},
		{"empty name", `[{"username": "", "password_hash": "` + hash + `", "storage_limit_gb": 1}]`},
		{"missing hash", `[{"username": "alice", "storage_limit_gb": 1}]`},
		{"zero quota", `[{"username": "alice", "password_hash": "` + hash + `", "storage_limit_gb": 0}]`},
		{"not json", `{"oops"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTable(writeAccountsFile(t, tt.contents))
			assert.Error(t, err)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	table, err := NewTable([]Account{
		{Name: "alice", PasswordHash: hashFor(t, "wonderland"), StorageLimitGB: 1},
	})
	require.NoError(t, err)

	a, err := table.Authenticate("Alice", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Name)

	_, err = table.Authenticate("alice", "queen-of-hearts")
	assert.True(t, fault.HasCode(err, fault.CodeAuthentication))

	_, err = table.Authenticate("nobody", "wonderland")
	assert.True(t, fault.HasCode(err, fault.CodeAuthentication))
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager([]byte("signing-secret"), []byte("0123456789abcdef0123456789abcdef"), "pidrive", time.Hour)

	token, err := m.Generate("alice", "wonderland")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	password, err := m.DecryptPassword(claims.EncryptedPassword)
	require.NoError(t, err)
	assert.Equal(t, "wonderland", password)
}

func TestJWTValidateRejectsTampering(t *testing.T) {
	m := NewJWTManager([]byte("signing-secret"), []byte("0123456789abcdef0123456789abcdef"), "pidrive", time.Hour)
	other := NewJWTManager([]byte("different-secret"), []byte("0123456789abcdef0123456789abcdef"), "pidrive", time.Hour)

	token, err := m.Generate("alice", "wonderland")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}
