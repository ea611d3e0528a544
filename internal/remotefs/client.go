// Package remotefs abstracts the remote tree a device exposes. Every
// backend presents the same client surface over slash-separated paths
// rooted at Root, so the engine above never branches on protocol.
//
// Backends normalize their missing-entry errors onto fs.ErrNotExist;
// callers classify with IsNotExist instead of inspecting protocol
// error types.
package remotefs

import (
	"errors"
	"io"
	"io/fs"
	"time"
)

// Entry is one directory member as reported by a backend.
type Entry struct {
	Name    string
	Dir     bool
	Size    int64
	ModTime time.Time
}

// Client is a live connection to one remote tree. Implementations are
// not safe for concurrent use; the session layer serializes access.
type Client interface {
	// Root returns the base directory all user trees live under.
	// The backend creates it during dial if it is absent.
	Root() string

	Stat(path string) (Entry, error)
	ReadDir(path string) ([]Entry, error)

	// Open streams an existing file for reading.
	Open(path string) (io.ReadCloser, error)
	// Create opens path for writing, truncating any existing content.
	Create(path string) (io.WriteCloser, error)

	Mkdir(path string) error
	// EnsureDir creates path if it does not already exist.
	EnsureDir(path string) error

	// Remove deletes a single file. RemoveDir deletes an empty
	// directory; callers walk children first.
	Remove(path string) error
	RemoveDir(path string) error

	// Rename moves an entry without overwriting. Replace moves a
	// file onto newPath, displacing any existing file there.
	Rename(oldPath, newPath string) error
	Replace(oldPath, newPath string) error

	Close() error
}

// IsNotExist reports whether err indicates a missing remote entry.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// IsExist reports whether err indicates an entry already present.
func IsExist(err error) bool {
	return errors.Is(err, fs.ErrExist)
}

// classifiedError attaches an fs sentinel to a backend error without
// masking the original message.
type classifiedError struct {
	err   error
	class error
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.err, e.class}
}
