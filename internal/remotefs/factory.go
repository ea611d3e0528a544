package remotefs

import (
	"fmt"

	"pidrive-backend/internal/config"
)

// Dial opens a connection for the backend named in the configuration.
// Each call returns an independent client; sessions do not share
// connections.
func Dial(cfg *config.Config) (Client, error) {
	switch cfg.Remote.Type {
	case "sftp":
		timeout, err := cfg.GetDialTimeout()
		if err != nil {
			return nil, fmt.Errorf("invalid dial_timeout: %w", err)
		}
		return DialSFTP(&cfg.SFTP, cfg.Remote.BaseDir, timeout)
	case "smb":
		return DialSMB(&cfg.SMB, cfg.Remote.BaseDir)
	case "s3":
		return DialS3(&cfg.S3, cfg.Remote.BaseDir)
	case "local":
		return DialLocal(&cfg.Local, cfg.Remote.BaseDir)
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Remote.Type)
	}
}
