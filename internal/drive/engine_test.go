package drive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pidrive-backend/internal/auth"
	"pidrive-backend/internal/config"
	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/models"
	"pidrive-backend/internal/remotefs"
	"pidrive-backend/internal/session"
)

const (
	testUser     = "alice"
	testPassword = "wonderland"
)

// testEngine wires the engine to a local backend in a temp dir. The
// returned root is the user's tree on disk, for seeding and checking
// state behind the engine's back.
func testEngine(t *testing.T) (*Engine, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	table, err := auth.NewTable([]auth.Account{
		{Name: testUser, PasswordHash: string(hash), StorageLimitGB: 1},
	})
	require.NoError(t, err)

	base := t.TempDir()
	dial := func() (remotefs.Client, error) {
		return remotefs.DialLocal(&config.LocalConfig{Root: base}, "pi-drive")
	}
	manager := session.NewManager(table, dial, time.Hour)
	t.Cleanup(manager.Close)

	engine := New(manager, NewBroadcaster())

	userRoot := filepath.Join(base, "pi-drive", testUser)
	require.NoError(t, os.MkdirAll(userRoot, 0o755))
	return engine, userRoot
}

func ctx() context.Context {
	return context.Background()
}

func entryNames(infos []models.EntryInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}

func TestListEntries(t *testing.T) {
	e, root := testEngine(t)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "photo.JPG"), []byte("img"), 0o644))

	infos, err := e.List(ctx(), testUser, testPassword, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "photo.JPG"}, entryNames(infos))

	byName := map[string]models.EntryInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.Equal(t, models.KindFolder, byName["docs"].Kind)
	assert.Empty(t, byName["docs"].FileType)
	assert.Equal(t, models.KindFile, byName["photo.JPG"].Kind)
	assert.Equal(t, "jpg", byName["photo.JPG"].FileType, "file type is the lowercase extension")
	assert.Equal(t, int64(3), byName["photo.JPG"].Size)
}

func TestListMissingPath(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.List(ctx(), testUser, testPassword, []string{"ghost"})
	assert.True(t, fault.HasCode(err, fault.CodeNotFound))
}

func TestListRejectsTraversal(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.List(ctx(), testUser, testPassword, []string{".."})
	assert.True(t, fault.HasCode(err, fault.CodePathEscape))

	_, err = e.List(ctx(), testUser, testPassword, []string{"docs", "..", "..", "bob"})
	assert.True(t, fault.HasCode(err, fault.CodePathEscape))
}

func TestListRejectsBadCredentials(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.List(ctx(), testUser, "queen-of-hearts", nil)
	assert.True(t, fault.HasCode(err, fault.CodeAuthentication))
}

func TestReadWriteFile(t *testing.T) {
	e, root := testEngine(t)

	content := []byte("# Shopping\n- milk\n- eggs\n")
	require.NoError(t, e.WriteFile(ctx(), testUser, testPassword, []string{"notes.md"}, content))

	got, err := e.ReadFile(ctx(), testUser, testPassword, []string{"notes.md"})
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Overwrite leaves no staging leftovers behind.
	require.NoError(t, e.WriteFile(ctx(), testUser, testPassword, []string{"notes.md"}, []byte("rewritten")))
	got, err = e.ReadFile(ctx(), testUser, testPassword, []string{"notes.md"})
	require.NoError(t, err)
	assert.Equal(t, "rewritten", string(got))

	leftovers, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, leftovers, 1)
}

func TestReadFileMissing(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.ReadFile(ctx(), testUser, testPassword, []string{"ghost.txt"})
	assert.True(t, fault.HasCode(err, fault.CodeNotFound))
}

func TestCreateFolder(t *testing.T) {
	e, _ := testEngine(t)

	require.NoError(t, e.CreateFolder(ctx(), testUser, testPassword, nil, "docs"))

	err := e.CreateFolder(ctx(), testUser, testPassword, nil, "docs")
	assert.True(t, fault.HasCode(err, fault.CodeNameConflict))

	infos, err := e.List(ctx(), testUser, testPassword, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, entryNames(infos), "conflict leaves exactly one docs entry")
}

func TestCreateFolderRejectsBadNames(t *testing.T) {
	e, _ := testEngine(t)

	for _, name := range []string{"", "a/b", "..", "a\\b"} {
		err := e.CreateFolder(ctx(), testUser, testPassword, nil, name)
		assert.True(t, fault.HasCode(err, fault.CodeInvalidName), "name %q", name)
	}
}

func TestRename(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("aaa"), 0o644))

	require.NoError(t, e.Rename(ctx(), testUser, testPassword, nil, "a.txt", "b.txt"))

	infos, err := e.List(ctx(), testUser, testPassword, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, entryNames(infos))
}

func TestRenameConflictLeavesBothFiles(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("bbb"), 0o644))

	err := e.Rename(ctx(), testUser, testPassword, nil, "a.txt", "b.txt")
	assert.True(t, fault.HasCode(err, fault.CodeNameConflict))

	a, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(root, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(a))
	assert.Equal(t, "bbb", string(b))
}

func TestRenameMissingSource(t *testing.T) {
	e, _ := testEngine(t)

	err := e.Rename(ctx(), testUser, testPassword, nil, "ghost.txt", "b.txt")
	assert.True(t, fault.HasCode(err, fault.CodeNotFound))
}

func TestDeletePartialFailure(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "two.txt"), []byte("2"), 0o644))

	results, err := e.Delete(ctx(), testUser, testPassword, nil, []string{"one.txt", "ghost.txt", "two.txt"})
	require.Error(t, err)

	var partial *fault.PartialError
	require.ErrorAs(t, err, &partial)
	assert.True(t, partial.Failed("ghost.txt"))
	assert.False(t, partial.Failed("one.txt"))

	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.True(t, results[2].OK)

	infos, listErr := e.List(ctx(), testUser, testPassword, nil)
	require.NoError(t, listErr)
	assert.Empty(t, entryNames(infos), "valid names are deleted despite the failure")
}

func TestDeleteFolderRecursive(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "archive"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "archive", "b.txt"), []byte("b"), 0o644))

	results, err := e.Delete(ctx(), testUser, testPassword, nil, []string{"docs"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)

	infos, err := e.List(ctx(), testUser, testPassword, nil)
	require.NoError(t, err)
	assert.Empty(t, entryNames(infos))
}

func TestStorageReportsUsage(t *testing.T) {
	e, root := testEngine(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.bin"), make([]byte, 1000), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "b.bin"), make([]byte, 500), 0o644))

	status, err := e.Storage(ctx(), testUser, testPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), status.UsedBytes, "nested files count toward usage")
	assert.Equal(t, int64(1_000_000_000), status.LimitBytes)
}
