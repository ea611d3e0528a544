package remotefs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"pidrive-backend/internal/config"
)

// LocalClient serves a directory on the local filesystem. It backs
// single-box deployments where the tree lives on an attached disk, and
// it is the backend the engine tests run against.
type LocalClient struct {
	root string
}

func DialLocal(cfg *config.LocalConfig, baseDir string) (*LocalClient, error) {
	root := filepath.Join(cfg.Root, baseDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local root %s: %w", root, err)
	}
	return &LocalClient{root: root}, nil
}

func (c *LocalClient) Root() string {
	return c.root
}

func (c *LocalClient) Stat(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	return entryFromInfo(info), nil
}

func (c *LocalClient) ReadDir(path string) ([]Entry, error) {
	members, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		info, err := m.Info()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entryFromInfo(info))
	}
	return entries, nil
}

func (c *LocalClient) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (c *LocalClient) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func (c *LocalClient) Mkdir(path string) error {
	return os.Mkdir(path, 0o755)
}

func (c *LocalClient) EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (c *LocalClient) Remove(path string) error {
	return os.Remove(path)
}

func (c *LocalClient) RemoveDir(path string) error {
	return os.Remove(path)
}

// Rename refuses to displace an existing target; os.Rename would
// silently overwrite files.
func (c *LocalClient) Rename(oldPath, newPath string) error {
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("rename %s: %w", newPath, fs.ErrExist)
	}
	return os.Rename(oldPath, newPath)
}

func (c *LocalClient) Replace(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (c *LocalClient) Close() error {
	return nil
}

func entryFromInfo(info os.FileInfo) Entry {
	e := Entry{
		Name:    info.Name(),
		Dir:     info.IsDir(),
		ModTime: info.ModTime(),
	}
	if !e.Dir {
		e.Size = info.Size()
	}
	return e
}
