package auth

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// MaxRefreshTokens caps the number of live refresh tokens (devices) per user.
// On overflow the oldest entries are evicted first.
const MaxRefreshTokens = 5

// RefreshStore maintains the bounded per-user refresh-token collection on top
// of the user store. Every mutation prunes expired entries eagerly and runs
// under a per-user lock so the collection invariants hold across concurrent
// logins and refreshes from the same account.
type RefreshStore struct {
	users UserStore
	now   func() time.Time
	locks [64]sync.Mutex
}

// RefreshStoreOption configures a RefreshStore.
type RefreshStoreOption func(*RefreshStore)

// WithRefreshClock overrides the time source (useful for tests).
func WithRefreshClock(fn func() time.Time) RefreshStoreOption {
	return func(s *RefreshStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewRefreshStore constructs a RefreshStore.
func NewRefreshStore(users UserStore, opts ...RefreshStoreOption) *RefreshStore {
	s := &RefreshStore{users: users, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add prunes expired entries, appends the new token and evicts beyond the cap,
// then persists the collection in a single write.
func (s *RefreshStore) Add(ctx context.Context, userID, token string, expiresAt time.Time) error {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	tokens, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	now := s.now()
	tokens = pruneExpired(tokens, now)
	tokens = append(tokens, RefreshToken{Token: token, ExpiresAt: expiresAt, CreatedAt: now})
	if len(tokens) > MaxRefreshTokens {
		tokens = tokens[len(tokens)-MaxRefreshTokens:]
	}
	return s.users.SetRefreshTokens(ctx, userID, tokens)
}

// Remove deletes every entry carrying the given token (cardinality 0 or 1)
// and prunes expired entries while it is at it.
func (s *RefreshStore) Remove(ctx context.Context, userID, token string) error {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	tokens, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	now := s.now()
	kept := make([]RefreshToken, 0, len(tokens))
	for _, t := range pruneExpired(tokens, now) {
		if t.Token == token {
			continue
		}
		kept = append(kept, t)
	}
	return s.users.SetRefreshTokens(ctx, userID, kept)
}

// IsValid reports whether an unexpired entry with this token exists. It never
// mutates the collection.
func (s *RefreshStore) IsValid(ctx context.Context, userID, token string) (bool, error) {
	tokens, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	now := s.now()
	for _, t := range tokens {
		if t.Token == token && t.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// Clear removes every entry unconditionally (logout everywhere).
func (s *RefreshStore) Clear(ctx context.Context, userID string) error {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.users.SetRefreshTokens(ctx, userID, nil)
}

func (s *RefreshStore) load(ctx context.Context, userID string) ([]RefreshToken, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.RefreshTokens, nil
}

// lockFor returns the stripe lock for a user id. Striping keeps the lock set
// bounded regardless of how many users exist.
func (s *RefreshStore) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

func pruneExpired(tokens []RefreshToken, now time.Time) []RefreshToken {
	kept := make([]RefreshToken, 0, len(tokens))
	for _, t := range tokens {
		if t.ExpiresAt.After(now) {
			kept = append(kept, t)
		}
	}
	return kept
}
