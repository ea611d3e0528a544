// Package drive is the file-management engine behind the API: every
// operation a user can run against their tree goes through the Engine,
// which acquires the user's session, confines paths to their root, and
// reports transfer progress through a broadcaster.
package drive

import (
	"context"
	"io"
	"path"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/logging"
	"pidrive-backend/internal/models"
	"pidrive-backend/internal/remotefs"
	"pidrive-backend/internal/sandbox"
	"pidrive-backend/internal/session"
)

// copyChunk is the buffer size for streamed transfers.
const copyChunk = 32 * 1024

type Engine struct {
	sessions *session.Manager
	events   *Broadcaster

	jobsMu sync.RWMutex
	jobs   map[string]*Job
}

func New(sessions *session.Manager, events *Broadcaster) *Engine {
	return &Engine{
		sessions: sessions,
		events:   events,
		jobs:     make(map[string]*Job),
	}
}

// Events exposes the progress broadcaster for the presentation layer.
func (e *Engine) Events() *Broadcaster {
	return e.events
}

// List enumerates the immediate children of a folder in the user's
// tree. No ordering is imposed; display sort is the caller's concern.
func (e *Engine) List(ctx context.Context, username, password string, segments []string) ([]models.EntryInfo, error) {
	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	p, err := sandbox.Resolve(s.Root, segments)
	if err != nil {
		return nil, err
	}

	target, err := s.Client.Stat(p)
	if err != nil {
		return nil, classifyStat(err, segments)
	}
	if !target.Dir {
		return nil, fault.Newf(fault.CodeNotFound, "not a folder: %s", path.Join(segments...))
	}

	entries, err := s.Client.ReadDir(p)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConnection, "failed to list directory", err)
	}

	infos := make([]models.EntryInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, entryInfo(entry))
	}
	return infos, nil
}

// Storage reports quota consumption for the user.
func (e *Engine) Storage(ctx context.Context, username, password string) (models.StorageStatus, error) {
	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return models.StorageStatus{}, err
	}
	defer s.Release()

	used, err := usedBytes(s.Client, s.Root)
	if err != nil {
		return models.StorageStatus{}, err
	}
	return models.StorageStatus{
		UsedBytes:  used,
		LimitBytes: s.Account.StorageLimitBytes(),
	}, nil
}

// ReadFile returns the whole content of one file. Meant for small
// text files; there is no size ceiling here.
func (e *Engine) ReadFile(ctx context.Context, username, password string, segments []string) ([]byte, error) {
	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	p, err := sandbox.Resolve(s.Root, segments)
	if err != nil {
		return nil, err
	}

	entry, err := s.Client.Stat(p)
	if err != nil {
		return nil, classifyStat(err, segments)
	}
	if entry.Dir {
		return nil, fault.Newf(fault.CodeNotFound, "not a file: %s", path.Join(segments...))
	}

	r, err := s.Client.Open(p)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConnection, "failed to open file", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConnection, "failed to read file", err)
	}
	return data, nil
}

// WriteFile replaces the content of a file. The new bytes land in a
// temporary sibling first and are swapped in with an overwrite-rename,
// so readers see either the old content or the new, not a mix.
func (e *Engine) WriteFile(ctx context.Context, username, password string, segments []string, content []byte) error {
	if len(segments) == 0 {
		return fault.New(fault.CodeInvalidName, "missing file name")
	}

	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return err
	}
	defer s.Release()

	p, err := sandbox.Resolve(s.Root, segments)
	if err != nil {
		return err
	}

	tmp := p + ".part-" + shortID()
	w, err := s.Client.Create(tmp)
	if err != nil {
		return fault.Wrap(fault.CodeWrite, "failed to stage file content", err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		s.Client.Remove(tmp)
		return fault.Wrap(fault.CodeWrite, "failed to write file content", err)
	}
	if err := w.Close(); err != nil {
		s.Client.Remove(tmp)
		return fault.Wrap(fault.CodeWrite, "failed to finish file content", err)
	}
	if err := s.Client.Replace(tmp, p); err != nil {
		s.Client.Remove(tmp)
		return fault.Wrap(fault.CodeWrite, "failed to swap in file content", err)
	}

	logging.Debug("file written",
		zap.String("user", s.Account.FolderName()),
		zap.String("path", path.Join(segments...)),
		zap.Int("bytes", len(content)))
	return nil
}

// CreateFolder adds a folder under the parent path.
func (e *Engine) CreateFolder(ctx context.Context, username, password string, parent []string, name string) error {
	if err := sandbox.CheckName(name); err != nil {
		return err
	}

	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return err
	}
	defer s.Release()

	parentPath, err := sandbox.Resolve(s.Root, parent)
	if err != nil {
		return err
	}
	if err := statFolder(s.Client, parentPath, parent); err != nil {
		return err
	}

	target := path.Join(parentPath, name)
	if _, err := s.Client.Stat(target); err == nil {
		return fault.Newf(fault.CodeNameConflict, "entry already exists: %s", name)
	} else if !remotefs.IsNotExist(err) {
		return fault.Wrap(fault.CodeConnection, "failed to check target", err)
	}

	if err := s.Client.Mkdir(target); err != nil {
		return fault.Wrap(fault.CodeConnection, "failed to create folder", err)
	}
	return nil
}

// Rename moves an entry to a new name inside the same parent.
func (e *Engine) Rename(ctx context.Context, username, password string, parent []string, oldName, newName string) error {
	if err := sandbox.CheckName(oldName); err != nil {
		return err
	}
	if err := sandbox.CheckName(newName); err != nil {
		return err
	}

	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return err
	}
	defer s.Release()

	parentPath, err := sandbox.Resolve(s.Root, parent)
	if err != nil {
		return err
	}

	oldPath := path.Join(parentPath, oldName)
	if _, err := s.Client.Stat(oldPath); err != nil {
		if remotefs.IsNotExist(err) {
			return fault.Newf(fault.CodeNotFound, "no such entry: %s", oldName)
		}
		return fault.Wrap(fault.CodeConnection, "failed to check source", err)
	}

	newPath := path.Join(parentPath, newName)
	if _, err := s.Client.Stat(newPath); err == nil {
		return fault.Newf(fault.CodeNameConflict, "entry already exists: %s", newName)
	} else if !remotefs.IsNotExist(err) {
		return fault.Wrap(fault.CodeConnection, "failed to check target", err)
	}

	if err := s.Client.Rename(oldPath, newPath); err != nil {
		return fault.Wrap(fault.CodeConnection, "failed to rename entry", err)
	}
	return nil
}

// Delete removes the named entries under the parent path, folders
// recursively. Every name is attempted; the per-name outcomes are
// always returned, alongside a composite error when any name failed.
func (e *Engine) Delete(ctx context.Context, username, password string, parent []string, names []string) ([]models.MutationResult, error) {
	s, err := e.sessions.Acquire(ctx, username, password)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	parentPath, err := sandbox.Resolve(s.Root, parent)
	if err != nil {
		return nil, err
	}

	results := make([]models.MutationResult, 0, len(names))
	var failures []fault.NameFailure
	for _, name := range names {
		err := e.deleteOne(s.Client, parentPath, name)
		result := models.MutationResult{Name: name, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
			failures = append(failures, fault.NameFailure{Name: name, Err: err})
		}
		results = append(results, result)
	}

	if len(failures) > 0 {
		return results, &fault.PartialError{Op: "delete", Failures: failures}
	}
	return results, nil
}

func (e *Engine) deleteOne(client remotefs.Client, parentPath, name string) error {
	if err := sandbox.CheckName(name); err != nil {
		return err
	}

	target := path.Join(parentPath, name)
	entry, err := client.Stat(target)
	if err != nil {
		if remotefs.IsNotExist(err) {
			return fault.Newf(fault.CodeNotFound, "no such entry: %s", name)
		}
		return fault.Wrap(fault.CodeConnection, "failed to check entry", err)
	}

	if entry.Dir {
		return deleteTree(client, target)
	}
	if err := client.Remove(target); err != nil {
		return fault.Wrap(fault.CodeConnection, "failed to delete file", err)
	}
	return nil
}

// deleteTree removes a folder depth-first.
func deleteTree(client remotefs.Client, dir string) error {
	entries, err := client.ReadDir(dir)
	if err != nil {
		return fault.Wrap(fault.CodeConnection, "failed to list folder", err)
	}
	for _, entry := range entries {
		child := path.Join(dir, entry.Name)
		if entry.Dir {
			if err := deleteTree(client, child); err != nil {
				return err
			}
			continue
		}
		if err := client.Remove(child); err != nil {
			return fault.Wrap(fault.CodeConnection, "failed to delete file", err)
		}
	}
	if err := client.RemoveDir(dir); err != nil {
		return fault.Wrap(fault.CodeConnection, "failed to delete folder", err)
	}
	return nil
}

// statFolder verifies that p exists and is a folder.
func statFolder(client remotefs.Client, p string, segments []string) error {
	entry, err := client.Stat(p)
	if err != nil {
		return classifyStat(err, segments)
	}
	if !entry.Dir {
		return fault.Newf(fault.CodeNotFound, "not a folder: %s", path.Join(segments...))
	}
	return nil
}

func classifyStat(err error, segments []string) error {
	if remotefs.IsNotExist(err) {
		return fault.Newf(fault.CodeNotFound, "no such path: %s", path.Join(segments...))
	}
	return fault.Wrap(fault.CodeConnection, "failed to stat path", err)
}

func entryInfo(entry remotefs.Entry) models.EntryInfo {
	info := models.EntryInfo{
		Name:    entry.Name,
		Kind:    models.KindFile,
		Size:    entry.Size,
		ModTime: entry.ModTime,
	}
	if entry.Dir {
		info.Kind = models.KindFolder
	} else {
		info.FileType = models.FileTypeOf(entry.Name)
	}
	return info
}

// shortID tags temporary staging names so retries never collide.
func shortID() string {
	return uuid.NewString()[:8]
}
