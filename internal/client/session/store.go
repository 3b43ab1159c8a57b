// Package session is the client runtime's token store: the one place that
// knows whether this client is signed in, and that mirrors its session into
// the bridge server's cookies.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/authbridge/internal/logging"
	"github.com/dmitrijs2005/authbridge/internal/provider"
)

// Event is an auth state change.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventSignedOut      Event = "SIGNED_OUT"
)

const (
	DefaultPollAttempts = 20
	DefaultPollInterval = 250 * time.Millisecond
)

// Persistence is where the session survives restarts. LoadSession returns
// (nil, nil) when there is none.
type Persistence interface {
	LoadSession(ctx context.Context) (*provider.Session, error)
	SaveSession(ctx context.Context, s *provider.Session) error
	ClearSession(ctx context.Context) error
}

// CookieSyncer pushes tokens to the server's cookie-writing endpoint.
type CookieSyncer interface {
	SyncSession(ctx context.Context, accessToken, refreshToken string) error
}

type Options struct {
	PollAttempts int
	PollInterval time.Duration
	Now          func() time.Time
}

// Store holds the current session. Build it once per runtime; see Runtime.
type Store struct {
	persist Persistence
	syncer  CookieSyncer
	logger  logging.Logger

	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	current *provider.Session
	loaded  bool

	isSyncing atomic.Bool
}

func NewStore(p Persistence, s CookieSyncer, logger logging.Logger, opts Options) *Store {
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultPollAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Store{
		persist:      p,
		syncer:       s,
		logger:       logger,
		pollAttempts: opts.PollAttempts,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
	}
}

// GetOrCreateClientSession returns the current session if there is one and
// it has not expired, else nil. The persisted session is read on first use,
// and a live one is synced to the server once, since the server's cookies
// for it were lost with the previous process.
func (s *Store) GetOrCreateClientSession(ctx context.Context) *provider.Session {
	s.mu.Lock()
	restored := false
	if !s.loaded && s.persist != nil {
		sess, err := s.persist.LoadSession(ctx)
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn(ctx, "load session failed", "error", err)
			return nil
		}
		s.current = sess
		s.loaded = true
		restored = sess != nil
	}
	if s.current == nil || s.current.Expired(s.now()) {
		s.mu.Unlock()
		return nil
	}
	cp := *s.current
	s.mu.Unlock()

	if restored {
		s.SyncSessionCookies(ctx, &cp)
	}
	return &cp
}

// Current returns the held session even if it has expired, so a caller can
// still use its refresh token.
func (s *Store) Current(ctx context.Context) *provider.Session {
	s.GetOrCreateClientSession(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// HandleAuthEvent applies an auth state change. Sign-in and refresh store
// the new session and sync cookies; sign-out forgets it. Only persistence
// failures are returned.
func (s *Store) HandleAuthEvent(ctx context.Context, ev Event, sess *provider.Session) error {
	switch ev {
	case EventSignedIn, EventTokenRefreshed:
		if sess == nil || sess.AccessToken == "" {
			return fmt.Errorf("%s without a session", ev)
		}
		cp := *sess
		s.mu.Lock()
		s.current = &cp
		s.loaded = true
		s.mu.Unlock()

		if s.persist != nil {
			if err := s.persist.SaveSession(ctx, &cp); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
		}
		s.SyncSessionCookies(ctx, &cp)
		return nil

	case EventSignedOut:
		s.mu.Lock()
		s.current = nil
		s.loaded = true
		s.mu.Unlock()

		if s.persist != nil {
			if err := s.persist.ClearSession(ctx); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown auth event %q", ev)
}

// SyncSessionCookies sends sess to the server. A sync already in flight
// makes this call a no-op, and failures are logged and dropped; the next
// auth event syncs again. It reports whether a request went out and
// succeeded.
func (s *Store) SyncSessionCookies(ctx context.Context, sess *provider.Session) bool {
	if s.syncer == nil || sess == nil || sess.AccessToken == "" {
		return false
	}
	if !s.isSyncing.CompareAndSwap(false, true) {
		s.logger.Debug(ctx, "cookie sync already in flight")
		return false
	}
	defer s.isSyncing.Store(false)

	if err := s.syncer.SyncSession(ctx, sess.AccessToken, sess.RefreshToken); err != nil {
		s.logger.Warn(ctx, "cookie sync failed", "error", err)
		return false
	}
	return true
}

// WaitForSession polls GetOrCreateClientSession a bounded number of times.
// A nil result means "no session yet", not an error.
func (s *Store) WaitForSession(ctx context.Context) *provider.Session {
	for i := 0; i < s.pollAttempts; i++ {
		if sess := s.GetOrCreateClientSession(ctx); sess != nil {
			return sess
		}
		if i == s.pollAttempts-1 {
			break
		}
		t := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
	return nil
}
