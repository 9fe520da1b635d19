package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// entry pairs a session with its exclusive-section lock. The lock is reference
// counted so idle entries can be evicted without racing an acquirer.
type entry struct {
	mu      sync.Mutex
	refs    int
	session *Session
}

// Store holds one Session per chat identity. Operations for different chat IDs
// never block each other; operations for the same chat ID are strictly
// serialized through WithLock.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry

	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// StoreOption customises the store.
type StoreOption func(*Store)

// WithTTL enables eviction of sessions untouched for longer than ttl. Evicted
// chats start over from a fresh idle session on next contact.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithStoreLogger configures the logger used for eviction events.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) { s.now = clock }
}

// NewStore constructs an in-memory session store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:     make(map[int64]*entry),
		now:         time.Now,
		janitorStop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// acquire fetches or creates the entry for chatID and pins it against eviction.
// Callers must lock entry.mu and call release when done.
func (s *Store) acquire(chatID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		e = &entry{session: NewSession()}
		s.entries[chatID] = e
	}
	e.refs++
	return e
}

func (s *Store) release(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		return
	}
	e.refs--
}

// WithLock runs fn inside the exclusive section for chatID, creating a fresh
// idle session if the chat has none. The session pointer is only valid for the
// duration of the call.
func (s *Store) WithLock(ctx context.Context, chatID int64, fn func(sess *Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.acquire(chatID)
	defer s.release(chatID)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.UpdatedAt = s.now()
	return fn(e.session)
}

// Get returns a copy of the current session for chatID, creating a fresh idle
// session if absent.
func (s *Store) Get(chatID int64) *Session {
	var snapshot *Session
	_ = s.WithLock(context.Background(), chatID, func(sess *Session) error {
		snapshot = sess.Clone()
		return nil
	})
	return snapshot
}

// Set replaces the stored session for chatID.
func (s *Store) Set(chatID int64, sess *Session) {
	if sess == nil {
		return
	}
	_ = s.WithLock(context.Background(), chatID, func(current *Session) error {
		*current = *sess.Clone()
		return nil
	})
}

// Reset returns the session to idle, clearing the in-progress transaction plan
// while preserving the wallet link and the cached market list.
func (s *Store) Reset(chatID int64) {
	_ = s.WithLock(context.Background(), chatID, func(sess *Session) error {
		sess.State = StateIdle
		sess.ClearPending()
		return nil
	})
}

// StartJanitor begins periodic eviction of expired sessions. It is a no-op when
// no TTL is configured. The janitor stops when ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	s.janitorOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-s.janitorStop:
					return
				case <-ticker.C:
					s.evictExpired()
				}
			}
		}()
	})
}

// Close stops the janitor if one is running.
func (s *Store) Close() {
	select {
	case <-s.janitorStop:
	default:
		close(s.janitorStop)
	}
}

func (s *Store) evictExpired() {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, e := range s.entries {
		if e.refs > 0 {
			continue
		}
		if e.session.UpdatedAt.IsZero() || e.session.UpdatedAt.After(cutoff) {
			continue
		}
		delete(s.entries, chatID)
		s.logger.Debug("evicted expired session", "chat_id", chatID)
	}
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
