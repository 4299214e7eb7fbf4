// Package session manages the client-side authentication lifecycle:
// holding the current token, persisting it across restarts, refreshing
// it before expiry, and broadcasting state changes to interested parts
// of the frontend.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stockroom/stockroom-core/internal/client/api"
)

// ErrNotAuthenticated is returned by Refresh when there is no live
// session to refresh.
var ErrNotAuthenticated = errors.New("not authenticated")

// DefaultRefreshThreshold is how close to expiry a token must be before
// ShouldRefresh reports true.
const DefaultRefreshThreshold = 15 * time.Minute

// Backend is the slice of the API client the session needs.
type Backend interface {
	Login(ctx context.Context, identifier, password string) (*api.TokenBundle, error)
	Refresh(ctx context.Context, token string) (*api.TokenBundle, error)
	Logout(ctx context.Context, token string) error
}

// Snapshot is the observable session state delivered to subscribers.
type Snapshot struct {
	Authenticated bool
	User          api.User
	ExpiresAt     time.Time
}

// Session owns the client-side authentication state.
//
// All methods are safe for concurrent use. Authentication status is
// always computed from the token's expiry, never cached: the moment the
// expiry passes, IsAuthenticated flips to false with no action needed.
type Session struct {
	backend   Backend
	store     Store
	threshold time.Duration

	mu         sync.Mutex
	state      *State
	generation uint64 // bumped on logout so in-flight refreshes are discarded
	subs       map[int]chan Snapshot
	nextSubID  int
	expiry     *time.Timer

	refreshGroup singleflight.Group
}

// Option configures a Session.
type Option func(*Session)

// WithRefreshThreshold overrides the proactive refresh window.
func WithRefreshThreshold(d time.Duration) Option {
	return func(s *Session) { s.threshold = d }
}

// New creates a session, restoring any persisted state from the store.
// A persisted token that has already expired is discarded.
func New(backend Backend, store Store, opts ...Option) (*Session, error) {
	s := &Session{
		backend:   backend,
		store:     store,
		threshold: DefaultRefreshThreshold,
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := store.Read()
	if err != nil {
		return nil, err
	}
	if state != nil {
		if time.Now().Before(state.ExpiresAt) {
			s.state = state
			s.scheduleExpiryLocked()
		} else {
			//nolint:errcheck // an expired session that fails to clear is harmless
			store.Clear()
		}
	}

	return s, nil
}

// Login authenticates and establishes a live session. The previous
// session state, if any, is replaced.
func (s *Session) Login(ctx context.Context, identifier, password string) (*api.User, error) {
	bundle, err := s.backend.Login(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.applyLocked(bundle)
	s.mu.Unlock()

	user := bundle.User
	return &user, nil
}

// Logout clears the local session and asks the server to revoke the
// token. Local state goes first: even when the server is unreachable,
// the client ends up logged out.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	token := ""
	if s.state != nil {
		token = s.state.Token
	}
	s.clearLocked()
	s.mu.Unlock()

	if token != "" {
		//nolint:errcheck // best-effort: the token expires on its own if revocation never lands
		s.backend.Logout(ctx, token)
	}
}

// ClearLocal drops the session state without contacting the server.
// Used when the server has already rejected the token.
func (s *Session) ClearLocal() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
}

// IsAuthenticated reports whether a non-expired token is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticatedLocked()
}

// Token returns the current token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticatedLocked() {
		return ""
	}
	return s.state.Token
}

// User returns the identity of the live session.
func (s *Session) User() (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticatedLocked() {
		return api.User{}, false
	}
	return s.state.User, true
}

// ShouldRefresh reports whether the token is inside the proactive
// refresh window: still valid, but close enough to expiry that a refresh
// should happen now.
func (s *Session) ShouldRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticatedLocked() {
		return false
	}
	return time.Until(s.state.ExpiresAt) <= s.threshold
}

// Refresh exchanges the current token for a fresh one.
//
// Concurrent callers are collapsed into a single server request. A
// refresh that completes after Logout is discarded: its result belongs
// to a session generation that no longer exists.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if !s.authenticatedLocked() {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	token := s.state.Token
	gen := s.generation
	s.mu.Unlock()

	_, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		bundle, err := s.backend.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			// Logged out while the refresh was in flight.
			return nil, ErrNotAuthenticated
		}
		s.applyLocked(bundle)
		return nil, nil
	})
	return err
}

// Subscribe registers for session state changes. The current snapshot
// is delivered immediately; later changes replace any undelivered value,
// so a slow subscriber always sees the latest state. The returned cancel
// function releases the subscription.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch

	ch <- s.snapshotLocked()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// applyLocked installs a fresh token bundle, persists it, reschedules
// the expiry notification, and notifies subscribers. Callers hold mu.
func (s *Session) applyLocked(bundle *api.TokenBundle) {
	s.state = &State{
		Token:     bundle.Token,
		User:      bundle.User,
		ExpiresAt: bundle.ExpiresAt,
	}

	//nolint:errcheck // persistence is best-effort: a failed write costs a re-login after restart
	s.store.Write(s.state)

	s.scheduleExpiryLocked()
	s.notifyLocked()
}

// clearLocked drops all session state. Callers hold mu.
func (s *Session) clearLocked() {
	s.state = nil
	s.generation++

	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}

	//nolint:errcheck // best-effort: stale persisted state is discarded on next load anyway
	s.store.Clear()

	s.notifyLocked()
}

func (s *Session) authenticatedLocked() bool {
	return s.state != nil && time.Now().Before(s.state.ExpiresAt)
}

func (s *Session) snapshotLocked() Snapshot {
	if !s.authenticatedLocked() {
		return Snapshot{}
	}
	return Snapshot{
		Authenticated: true,
		User:          s.state.User,
		ExpiresAt:     s.state.ExpiresAt,
	}
}

// scheduleExpiryLocked arranges for the session to be cleared at the
// moment the token expires: state and persisted keys are dropped and
// subscribers see logged-out without polling. Callers hold mu.
func (s *Session) scheduleExpiryLocked() {
	if s.expiry != nil {
		s.expiry.Stop()
	}
	if s.state == nil {
		return
	}

	s.expiry = time.AfterFunc(time.Until(s.state.ExpiresAt), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == nil || time.Now().Before(s.state.ExpiresAt) {
			// A newer login replaced the session before the timer fired.
			return
		}
		s.clearLocked()
	})
}

// notifyLocked pushes the latest snapshot to every subscriber, replacing
// any value they have not consumed yet. Callers hold mu.
func (s *Session) notifyLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
