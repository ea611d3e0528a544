package models

import (
	"path"
	"strings"
	"time"
)

// EntryKind distinguishes files from folders in listings.
type EntryKind string

const (
	KindFile   EntryKind = "file"
	KindFolder EntryKind = "folder"
)

// EntryInfo describes one directory entry inside a user's tree.
// FileType carries the lowercase extension without the dot ("pdf",
// "jpg"); it is empty for folders and for files without an extension.
type EntryInfo struct {
	Name     string    `json:"name"`
	Kind     EntryKind `json:"kind"`
	FileType string    `json:"file_type,omitempty"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// FileTypeOf derives the FileType field from an entry name.
func FileTypeOf(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StorageStatus reports quota consumption for one user.
type StorageStatus struct {
	UsedBytes  int64 `json:"used_bytes"`
	LimitBytes int64 `json:"limit_bytes"`
}

// JobStatus is the snapshot of a transfer job returned by the API and
// embedded in progress events.
type JobStatus struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	State            string `json:"state"`
	TotalBytes       int64  `json:"total_bytes"`
	TransferredBytes int64  `json:"transferred_bytes"`
	BundledBytes     int64  `json:"bundled_bytes,omitempty"`
	Error            string `json:"error,omitempty"`
}

// MutationResult reports the outcome of one name in a batch mutation.
type MutationResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
