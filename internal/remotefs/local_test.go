package remotefs

import (
	"io"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidrive-backend/internal/config"
)

func newLocal(t *testing.T) *LocalClient {
	t.Helper()
	c, err := DialLocal(&config.LocalConfig{Root: t.TempDir()}, "pi-drive")
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, c Client, p, contents string) {
	t.Helper()
	w, err := c.Create(p)
	require.NoError(t, err)
	_, err = io.WriteString(w, contents)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, c Client, p string) string {
	t.Helper()
	r, err := c.Open(p)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestLocalRoundTrip(t *testing.T) {
	c := newLocal(t)
	defer c.Close()

	dir := path.Join(c.Root(), "docs")
	require.NoError(t, c.Mkdir(dir))

	file := path.Join(dir, "note.txt")
	writeFile(t, c, file, "hello")
	assert.Equal(t, "hello", readFile(t, c, file))

	entry, err := c.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, "note.txt", entry.Name)
	assert.False(t, entry.Dir)
	assert.Equal(t, int64(5), entry.Size)

	entries, err := c.ReadDir(c.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Dir)
	assert.Equal(t, "docs", entries[0].Name)
}

func TestLocalStatMissing(t *testing.T) {
	c := newLocal(t)
	defer c.Close()

	_, err := c.Stat(path.Join(c.Root(), "ghost"))
	assert.True(t, IsNotExist(err))
}

func TestLocalRenameRefusesOverwrite(t *testing.T) {
	c := newLocal(t)
	defer c.Close()

	a := path.Join(c.Root(), "a.txt")
	b := path.Join(c.Root(), "b.txt")
	writeFile(t, c, a, "aaa")
	writeFile(t, c, b, "bbb")

	err := c.Rename(a, b)
	assert.True(t, IsExist(err))
	assert.Equal(t, "bbb", readFile(t, c, b), "target must be untouched")
}

func TestLocalReplaceOverwrites(t *testing.T) {
	c := newLocal(t)
	defer c.Close()

	tmp := path.Join(c.Root(), "note.txt.part")
	final := path.Join(c.Root(), "note.txt")
	writeFile(t, c, final, "old")
	writeFile(t, c, tmp, "new")

	require.NoError(t, c.Replace(tmp, final))
	assert.Equal(t, "new", readFile(t, c, final))
	_, err := c.Stat(tmp)
	assert.True(t, IsNotExist(err))
}

func TestLocalRemoveDirRequiresEmpty(t *testing.T) {
	c := newLocal(t)
	defer c.Close()

	dir := path.Join(c.Root(), "docs")
	require.NoError(t, c.Mkdir(dir))
	writeFile(t, c, path.Join(dir, "a.txt"), "x")

	assert.Error(t, c.RemoveDir(dir))
	require.NoError(t, c.Remove(path.Join(dir, "a.txt")))
	assert.NoError(t, c.RemoveDir(dir))
}
