package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Remote   RemoteConfig   `yaml:"remote"`
	SFTP     SFTPConfig     `yaml:"sftp"`
	SMB      SMBConfig      `yaml:"smb"`
	S3       S3Config       `yaml:"s3"`
	Local    LocalConfig    `yaml:"local"`
	Accounts AccountsConfig `yaml:"accounts"`
	JWT      JWTConfig      `yaml:"jwt"`
	Pool     PoolConfig     `yaml:"pool"`
	Upload   UploadConfig   `yaml:"upload"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host string    `yaml:"host"`
	Port string    `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RemoteConfig selects the backend holding the user trees and the base
// directory they live under. A relative base directory is resolved against
// the login home on backends that have one (sftp); on the others it is
// taken relative to the share or bucket root.
type RemoteConfig struct {
	Type    string `yaml:"type"`
	BaseDir string `yaml:"base_dir"`
}

type SFTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	KeyFile     string `yaml:"key_file"`
	DialTimeout string `yaml:"dial_timeout"`
}

type SMBConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Share    string `yaml:"share"`
	Domain   string `yaml:"domain"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LocalConfig struct {
	Root string `yaml:"root"`
}

type AccountsConfig struct {
	File string `yaml:"file"`
}

type JWTConfig struct {
	SecretKey     string `yaml:"secret_key"`
	EncryptionKey string `yaml:"encryption_key"`
	Issuer        string `yaml:"issuer"`
	Expiry        string `yaml:"expiry"`
}

type PoolConfig struct {
	SessionTTL string `yaml:"session_ttl"`
}

type UploadConfig struct {
	SpoolDir string `yaml:"spool_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Remote.Type == "" {
		c.Remote.Type = "sftp"
	}
	if c.Remote.BaseDir == "" {
		c.Remote.BaseDir = "pi-drive"
	}
	if c.SFTP.Port == 0 {
		c.SFTP.Port = 22
	}
	if c.SFTP.DialTimeout == "" {
		c.SFTP.DialTimeout = "10s"
	}
	if c.SMB.Port == 0 {
		c.SMB.Port = 445
	}
	if c.JWT.Expiry == "" {
		c.JWT.Expiry = "24h"
	}
	if c.Pool.SessionTTL == "" {
		c.Pool.SessionTTL = "10m"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server host is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Accounts.File == "" {
		return fmt.Errorf("accounts file is required")
	}

	if err := c.validateJWT(); err != nil {
		return err
	}

	return c.validateRemote()
}

func (c *Config) validateJWT() error {
	if c.JWT.SecretKey == "" || containsPlaceholder(c.JWT.SecretKey) {
		return fmt.Errorf("jwt secret_key must be set (no placeholders allowed)")
	}
	if c.JWT.EncryptionKey == "" || containsPlaceholder(c.JWT.EncryptionKey) {
		return fmt.Errorf("jwt encryption_key must be set (no placeholders allowed)")
	}
	if len(c.JWT.EncryptionKey) != 32 {
		return fmt.Errorf("jwt encryption_key must be exactly 32 bytes")
	}
	return nil
}

func (c *Config) validateRemote() error {
	switch c.Remote.Type {
	case "sftp":
		if c.SFTP.Host == "" {
			return fmt.Errorf("sftp host is required for sftp remote")
		}
		if c.SFTP.Username == "" {
			return fmt.Errorf("sftp username is required for sftp remote")
		}
		if c.SFTP.Password == "" && c.SFTP.KeyFile == "" {
			return fmt.Errorf("sftp password or key_file is required for sftp remote")
		}
	case "smb":
		if c.SMB.Server == "" {
			return fmt.Errorf("smb server is required for smb remote")
		}
		if c.SMB.Share == "" {
			return fmt.Errorf("smb share is required for smb remote")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required for s3 remote")
		}
		if containsPlaceholder(c.S3.AccessKey) || containsPlaceholder(c.S3.SecretKey) {
			return fmt.Errorf("s3 access_key and secret_key must be set (no placeholders)")
		}
	case "local":
		if c.Local.Root == "" {
			return fmt.Errorf("local root is required for local remote")
		}
	default:
		return fmt.Errorf("unknown remote type: %s", c.Remote.Type)
	}
	return nil
}

func containsPlaceholder(s string) bool {
	placeholders := []string{"CHANGE_ME", "YOUR_VALUE_HERE", "REQUIRED", "PLACEHOLDER", "CHANGEME"}
	for _, p := range placeholders {
		if len(s) > 0 && (s == p || len(s) > len(p) && containsSubstring(s, p)) {
			return true
		}
	}
	return false
}

func containsSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func (c *Config) GetJWTExpiry() (time.Duration, error) {
	return time.ParseDuration(c.JWT.Expiry)
}

func (c *Config) GetSessionTTL() (time.Duration, error) {
	return time.ParseDuration(c.Pool.SessionTTL)
}

func (c *Config) GetDialTimeout() (time.Duration, error) {
	return time.ParseDuration(c.SFTP.DialTimeout)
}
