package remotefs

import (
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"pidrive-backend/internal/config"
	"pidrive-backend/internal/logging"
)

// SFTPClient talks to the device over SSH. The tree lives under the
// device account's home directory unless base_dir is absolute.
type SFTPClient struct {
	conn *ssh.Client
	sftp *sftp.Client
	root string
}

func DialSFTP(cfg *config.SFTPConfig, baseDir string, timeout time.Duration) (*SFTPClient, error) {
	auth, err := sshAuthMethods(cfg)
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	conn, err := ssh.Dial("tcp", address, &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	client, err := sftp.NewClient(conn, sftp.UseConcurrentWrites(true))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open sftp subsystem: %w", err)
	}

	c := &SFTPClient{conn: conn, sftp: client}
	root, err := c.resolveRoot(baseDir)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.root = root

	logging.Info("sftp connected", zap.String("address", address), zap.String("root", root))
	return c, nil
}

func sshAuthMethods(cfg *config.SFTPConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("sftp requires a password or key_file")
	}
	return methods, nil
}

// resolveRoot anchors the base directory under the account home and
// creates it if absent. Home comes from the shell, not the protocol,
// so chrooted servers that report "/" still resolve correctly.
func (c *SFTPClient) resolveRoot(baseDir string) (string, error) {
	root := baseDir
	if !strings.HasPrefix(baseDir, "/") {
		home, err := c.discoverHome()
		if err != nil {
			return "", err
		}
		root = path.Join(home, baseDir)
	}
	if err := c.EnsureDir(root); err != nil {
		return "", fmt.Errorf("failed to create base directory %s: %w", root, err)
	}
	return root, nil
}

func (c *SFTPClient) discoverHome() (string, error) {
	session, err := c.conn.NewSession()
	if err == nil {
		defer session.Close()
		if out, err := session.Output("echo $HOME"); err == nil {
			if home := strings.TrimSpace(string(out)); home != "" {
				return home, nil
			}
		}
	}
	home, err := c.sftp.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return home, nil
}

func (c *SFTPClient) Root() string {
	return c.root
}

func (c *SFTPClient) Stat(p string) (Entry, error) {
	info, err := c.sftp.Stat(p)
	if err != nil {
		return Entry{}, err
	}
	return entryFromInfo(info), nil
}

func (c *SFTPClient) ReadDir(p string) ([]Entry, error) {
	infos, err := c.sftp.ReadDir(p)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(info))
	}
	return entries, nil
}

func (c *SFTPClient) Open(p string) (io.ReadCloser, error) {
	return c.sftp.Open(p)
}

func (c *SFTPClient) Create(p string) (io.WriteCloser, error) {
	return c.sftp.Create(p)
}

func (c *SFTPClient) Mkdir(p string) error {
	if err := c.sftp.Mkdir(p); err != nil {
		return err
	}
	return c.sftp.Chmod(p, 0o755)
}

func (c *SFTPClient) EnsureDir(p string) error {
	if _, err := c.sftp.Stat(p); err == nil {
		return nil
	}
	return c.Mkdir(p)
}

func (c *SFTPClient) Remove(p string) error {
	return c.sftp.Remove(p)
}

func (c *SFTPClient) RemoveDir(p string) error {
	return c.sftp.RemoveDirectory(p)
}

func (c *SFTPClient) Rename(oldPath, newPath string) error {
	return c.sftp.Rename(oldPath, newPath)
}

// Replace uses the posix-rename extension so the swap is atomic on
// servers that support it.
func (c *SFTPClient) Replace(oldPath, newPath string) error {
	return c.sftp.PosixRename(oldPath, newPath)
}

func (c *SFTPClient) Close() error {
	err := c.sftp.Close()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
