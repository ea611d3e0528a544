// Package session owns the table of live user sessions. Each session
// pairs an authenticated account with its own remote connection and a
// mutex that serializes every operation run on the user's behalf.
package session

import (
	"context"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"pidrive-backend/internal/auth"
	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/logging"
	"pidrive-backend/internal/metrics"
	"pidrive-backend/internal/remotefs"
)

const janitorInterval = 1 * time.Minute

// Session is one user's live attachment to the remote tree. Callers
// receive it locked from Acquire and must Release it when the
// operation finishes; lastUsed and closed are guarded by mu.
type Session struct {
	Account *auth.Account
	Client  remotefs.Client
	Root    string

	mu       sync.Mutex
	lastUsed time.Time
	closed   bool
}

// Release marks the session idle and unlocks it.
func (s *Session) Release() {
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// DialFunc opens a fresh remote connection for a new session.
type DialFunc func() (remotefs.Client, error)

// Manager keys sessions by account folder name and expires idle ones
// in the background.
type Manager struct {
	accounts *auth.Table
	dial     DialFunc
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	stop     chan struct{}
	stopOnce sync.Once
}

func NewManager(accounts *auth.Table, dial DialFunc, ttl time.Duration) *Manager {
	m := &Manager{
		accounts: accounts,
		dial:     dial,
		ttl:      ttl,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}

	go m.janitor()

	return m
}

// Acquire verifies the credentials, then returns the user's session
// with its lock held, dialing a connection if none is live. The
// password is checked on every call, cached sessions included.
func (m *Manager) Acquire(ctx context.Context, username, password string) (*Session, error) {
	account, err := m.accounts.Authenticate(username, password)
	if err != nil {
		metrics.RecordAuthAttempt("rejected")
		return nil, err
	}
	metrics.RecordAuthAttempt("ok")

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m.mu.Lock()
		s, ok := m.sessions[account.FolderName()]
		if !ok {
			s, err = m.open(account)
			if err != nil {
				m.mu.Unlock()
				return nil, err
			}
			m.sessions[account.FolderName()] = s
			metrics.SetSessionsActive(len(m.sessions))
			// Lock before the table lock drops so the janitor
			// cannot expire a session that was never used.
			s.mu.Lock()
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		s.mu.Lock()
		if s.closed {
			// Expired between lookup and lock; take another pass.
			s.mu.Unlock()
			continue
		}
		s.lastUsed = time.Now()
		return s, nil
	}
}

// open dials and prepares the per-user root under the shared base.
// Called with m.mu held.
func (m *Manager) open(account *auth.Account) (*Session, error) {
	client, err := m.dial()
	if err != nil {
		return nil, fault.Wrap(fault.CodeConnection, "failed to reach remote storage", err)
	}

	root := path.Join(client.Root(), account.FolderName())
	if err := client.EnsureDir(root); err != nil {
		client.Close()
		return nil, fault.Wrap(fault.CodeConnection, "failed to prepare user directory", err)
	}

	metrics.RecordSessionOpened()
	logging.Info("session opened", zap.String("user", account.FolderName()), zap.String("root", root))

	return &Session{
		Account:  account,
		Client:   client,
		Root:     root,
		lastUsed: time.Now(),
	}, nil
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.expireIdle()
		case <-m.stop:
			return
		}
	}
}

// expireIdle closes sessions idle past the TTL. TryLock skips any
// session in the middle of an operation.
func (m *Manager) expireIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for name, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if now.Sub(s.lastUsed) > m.ttl {
			s.closed = true
			if err := s.Client.Close(); err != nil {
				logging.Warn("session close failed", zap.String("user", name), zap.Error(err))
			}
			delete(m.sessions, name)
			logging.Info("session expired", zap.String("user", name))
		}
		s.mu.Unlock()
	}
	metrics.SetSessionsActive(len(m.sessions))
}

// Close stops the janitor and tears down every session, waiting for
// in-flight operations to finish.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, s := range m.sessions {
		s.mu.Lock()
		s.closed = true
		if err := s.Client.Close(); err != nil {
			logging.Warn("session close failed", zap.String("user", name), zap.Error(err))
		}
		s.mu.Unlock()
		delete(m.sessions, name)
	}
	metrics.SetSessionsActive(0)
}
