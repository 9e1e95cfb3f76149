package union

import (
	"context"
	"sync"
	"time"
)

// SessionEvent names a session transition.
type SessionEvent string

const (
	SessionRestored       SessionEvent = "restored"
	SessionSignedIn       SessionEvent = "signed_in"
	SessionSignedOut      SessionEvent = "signed_out"
	SessionTokenRefreshed SessionEvent = "token_refreshed"
)

// SessionChange is delivered to OnSessionChange handlers.
type SessionChange struct {
	Event           SessionEvent
	Session         *Session
	Generation      uint64
	IdentityChanged bool
	// External is set when the transition was pushed by the provider
	// rather than caused by an action of this process.
	External bool
}

// SessionStoreOption customizes a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionStorage persists the session across restarts.
func WithSessionStorage(storage SessionStorage) SessionStoreOption {
	return func(s *SessionStore) {
		s.storage = storage
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

type sessionHandler struct {
	id uint64
	fn func(SessionChange)
}

// SessionStore is the single source of truth for who is signed in.
// Every change of identity bumps the session generation.
type SessionStore struct {
	provider IdentityProvider
	storage  SessionStorage
	logger   Logger
	now      func() time.Time

	mu          sync.RWMutex
	current     *Session
	generation  uint64
	ready       bool
	handlers    []sessionHandler
	nextHandler uint64
	stopNotify  func()
}

// NewSessionStore returns a store backed by provider.
func NewSessionStore(provider IdentityProvider, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		provider: provider,
		logger:   defLogger{name: "session"},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Init loads the persisted session once and marks the store ready. An
// expired session is refreshed through the provider, and dropped if that
// fails.
func (s *SessionStore) Init(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if ready {
		return nil
	}

	session, err := s.load(ctx)
	if err != nil {
		return err
	}

	if notifier, ok := s.provider.(SessionNotifier); ok {
		stop := notifier.OnSessionChange(func(next *Session) {
			event := SessionTokenRefreshed
			if next == nil {
				event = SessionSignedOut
			}
			s.apply(context.Background(), next, event, true)
		})
		s.mu.Lock()
		s.stopNotify = stop
		s.mu.Unlock()
	}

	if session != nil {
		s.apply(ctx, session, SessionRestored, false)
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) load(ctx context.Context) (*Session, error) {
	if s.storage == nil {
		return nil, nil
	}

	session, err := s.storage.Load(ctx)
	if err != nil {
		s.logger.Warn("session storage load failed", "error", err)
		return nil, nil
	}
	if session == nil || session.UserID == "" {
		return nil, nil
	}

	if session.ExpiresAt == nil || s.now().Before(*session.ExpiresAt) {
		return session, nil
	}

	if s.provider == nil || session.RefreshToken == "" {
		s.clearStorage(ctx)
		return nil, nil
	}

	refreshed, err := s.provider.Refresh(ctx, session)
	if err != nil {
		s.logger.Warn("session refresh failed, dropping stored session", "user_id", session.UserID, "error", err)
		s.clearStorage(ctx)
		return nil, nil
	}
	return refreshed, nil
}

// Ready reports whether Init completed.
func (s *SessionStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// GetCurrentSession returns a copy of the current session, or nil.
func (s *SessionStore) GetCurrentSession() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Generation returns the current session generation.
func (s *SessionStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Current returns the session together with its generation.
func (s *SessionStore) Current() (*Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone(), s.generation
}

// OnSessionChange registers handler for session transitions. The returned
// disposer deregisters it and is safe to call more than once.
func (s *SessionStore) OnSessionChange(handler func(SessionChange)) (dispose func()) {
	if handler == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextHandler++
	id := s.nextHandler
	s.handlers = append(s.handlers, sessionHandler{id: id, fn: handler})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, h := range s.handlers {
				if h.id == id {
					s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// RefreshToken exchanges the refresh token of the current session.
func (s *SessionStore) RefreshToken(ctx context.Context) error {
	current := s.GetCurrentSession()
	if current == nil {
		return ErrNoSession
	}
	refreshed, err := s.provider.Refresh(ctx, current)
	if err != nil {
		return AsAuthError(err, "refresh")
	}
	s.apply(ctx, refreshed, SessionTokenRefreshed, false)
	return nil
}

// Teardown stops provider notifications and drops every handler.
func (s *SessionStore) Teardown() {
	s.mu.Lock()
	stop := s.stopNotify
	s.stopNotify = nil
	s.handlers = nil
	s.ready = false
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// apply installs next as the current session. It reports false when next
// equals the current session, in which case no handler fires.
func (s *SessionStore) apply(ctx context.Context, next *Session, event SessionEvent, external bool) (SessionChange, bool) {
	next = next.Clone()

	s.mu.Lock()
	if s.current.Equal(next) {
		change := SessionChange{Event: event, Session: s.current.Clone(), Generation: s.generation, External: external}
		s.mu.Unlock()
		return change, false
	}

	identityChanged := !s.current.SameIdentity(next)
	if identityChanged {
		s.generation++
	}
	if next == nil {
		event = SessionSignedOut
	} else if !identityChanged && event == SessionSignedIn {
		event = SessionTokenRefreshed
	}
	s.current = next

	change := SessionChange{
		Event:           event,
		Session:         next.Clone(),
		Generation:      s.generation,
		IdentityChanged: identityChanged,
		External:        external,
	}
	handlers := s.snapshotHandlers()
	s.mu.Unlock()

	s.persist(ctx, next)

	for _, h := range handlers {
		h.fn(change)
	}
	return change, true
}

func (s *SessionStore) clear(ctx context.Context) (*Session, SessionChange) {
	previous := s.GetCurrentSession()
	change, _ := s.apply(ctx, nil, SessionSignedOut, false)
	return previous, change
}

func (s *SessionStore) snapshotHandlers() []sessionHandler {
	out := make([]sessionHandler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

func (s *SessionStore) persist(ctx context.Context, session *Session) {
	if s.storage == nil {
		return
	}
	if session == nil {
		s.clearStorage(ctx)
		return
	}
	if err := s.storage.Save(ctx, session); err != nil {
		s.logger.Warn("session storage save failed", "user_id", session.UserID, "error", err)
	}
}

func (s *SessionStore) clearStorage(ctx context.Context) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Clear(ctx); err != nil {
		s.logger.Warn("session storage clear failed", "error", err)
	}
}
