package remotefs

import (
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"

	"github.com/hirochachacha/go-smb2"
	"go.uber.org/zap"

	"pidrive-backend/internal/config"
	"pidrive-backend/internal/logging"
)

// SMBClient mounts a share on the device and works inside it with
// slash-separated paths relative to the share root.
type SMBClient struct {
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
	root    string
}

func DialSMB(cfg *config.SMBConfig, baseDir string) (*SMBClient, error) {
	address := net.JoinHostPort(cfg.Server, fmt.Sprintf("%d", cfg.Port))
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMB server %s: %w", address, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.Username,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		},
	}

	session, err := d.Dial(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SMB session: %w", err)
	}

	share, err := session.Mount(cfg.Share)
	if err != nil {
		session.Logoff()
		conn.Close()
		return nil, fmt.Errorf("failed to mount share %s: %w", cfg.Share, err)
	}

	c := &SMBClient{conn: conn, session: session, share: share, root: path.Clean(baseDir)}
	if err := c.EnsureDir(c.root); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create base directory %s: %w", c.root, err)
	}

	logging.Info("smb connected", zap.String("address", address), zap.String("share", cfg.Share))
	return c, nil
}

func (c *SMBClient) Root() string {
	return c.root
}

func (c *SMBClient) Stat(p string) (Entry, error) {
	info, err := c.share.Stat(p)
	if err != nil {
		return Entry{}, smbErr(err)
	}
	return entryFromInfo(info), nil
}

func (c *SMBClient) ReadDir(p string) ([]Entry, error) {
	infos, err := c.share.ReadDir(p)
	if err != nil {
		return nil, smbErr(err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(info))
	}
	return entries, nil
}

func (c *SMBClient) Open(p string) (io.ReadCloser, error) {
	f, err := c.share.Open(p)
	if err != nil {
		return nil, smbErr(err)
	}
	return f, nil
}

func (c *SMBClient) Create(p string) (io.WriteCloser, error) {
	f, err := c.share.Create(p)
	if err != nil {
		return nil, smbErr(err)
	}
	return f, nil
}

func (c *SMBClient) Mkdir(p string) error {
	return smbErr(c.share.Mkdir(p, 0o755))
}

// EnsureDir probes with Open before creating; some servers report
// spurious Mkdir failures on directories that already exist, so a
// failed Mkdir gets one more Open before giving up.
func (c *SMBClient) EnsureDir(p string) error {
	if f, err := c.share.Open(p); err == nil {
		f.Close()
		return nil
	}
	if err := c.share.Mkdir(p, 0o755); err != nil {
		if f, openErr := c.share.Open(p); openErr == nil {
			f.Close()
			return nil
		}
		return smbErr(err)
	}
	return nil
}

func (c *SMBClient) Remove(p string) error {
	return smbErr(c.share.Remove(p))
}

func (c *SMBClient) RemoveDir(p string) error {
	return smbErr(c.share.Remove(p))
}

func (c *SMBClient) Rename(oldPath, newPath string) error {
	return smbErr(c.share.Rename(oldPath, newPath))
}

// Replace clears the target first; SMB rename refuses to overwrite.
func (c *SMBClient) Replace(oldPath, newPath string) error {
	if err := c.share.Remove(newPath); err != nil && !os.IsNotExist(err) {
		return smbErr(err)
	}
	return smbErr(c.share.Rename(oldPath, newPath))
}

func (c *SMBClient) Close() error {
	err := c.share.Umount()
	if lerr := c.session.Logoff(); err == nil {
		err = lerr
	}
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// smbErr rewrites NT status classifications onto the fs sentinels the
// engine matches against.
func smbErr(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return &classifiedError{err: err, class: fs.ErrNotExist}
	case os.IsExist(err):
		return &classifiedError{err: err, class: fs.ErrExist}
	}
	return err
}
