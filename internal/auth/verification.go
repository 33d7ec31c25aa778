package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

const (
	// DefaultVerificationTTL bounds how long an email-verification token
	// stays redeemable.
	DefaultVerificationTTL = 24 * time.Hour
	// DefaultResetTTL bounds how long a password-reset token stays redeemable.
	DefaultResetTTL = time.Hour

	slotTokenBytes = 32
)

// VerificationManager issues and redeems the single-slot email-verification
// token. Issuing overwrites any previous token; consuming clears the slot so
// a token can never verify twice.
type VerificationManager struct {
	users UserStore
	ttl   time.Duration
	now   func() time.Time
}

// VerificationOption configures a VerificationManager.
type VerificationOption func(*VerificationManager)

// WithVerificationTTL overrides the token lifetime.
func WithVerificationTTL(ttl time.Duration) VerificationOption {
	return func(m *VerificationManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithVerificationClock overrides the time source (useful for tests).
func WithVerificationClock(fn func() time.Time) VerificationOption {
	return func(m *VerificationManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewVerificationManager constructs a VerificationManager.
func NewVerificationManager(users UserStore, opts ...VerificationOption) *VerificationManager {
	m := &VerificationManager{users: users, ttl: DefaultVerificationTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue generates a fresh token for the user, overwriting any prior slot, and
// persists it.
func (m *VerificationManager) Issue(ctx context.Context, userID string) (string, error) {
	token, err := generateSlotToken()
	if err != nil {
		return "", err
	}
	slot := TokenSlot{Token: token, ExpiresAt: m.now().Add(m.ttl)}
	if err := m.users.SetVerification(ctx, userID, slot); err != nil {
		return "", err
	}
	return token, nil
}

// Verify reports whether the user exists, holds exactly this token and the
// token has not expired. Lookup is by user id plus token match, never by
// token alone.
func (m *VerificationManager) Verify(ctx context.Context, userID, token string) (bool, error) {
	user, err := m.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return slotMatches(user.Verification, token, m.now()), nil
}

// Consume marks the email verified and clears the slot. After Consume the
// token can never verify again.
func (m *VerificationManager) Consume(ctx context.Context, userID string) error {
	return m.users.ConsumeVerification(ctx, userID)
}

// ResetManager issues and redeems the single-slot password-reset token with
// the same slot discipline as email verification: persisted, checked against
// the stored value, single use.
type ResetManager struct {
	users UserStore
	ttl   time.Duration
	now   func() time.Time
}

// ResetOption configures a ResetManager.
type ResetOption func(*ResetManager)

// WithResetTTL overrides the token lifetime.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(m *ResetManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithResetClock overrides the time source (useful for tests).
func WithResetClock(fn func() time.Time) ResetOption {
	return func(m *ResetManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewResetManager constructs a ResetManager.
func NewResetManager(users UserStore, opts ...ResetOption) *ResetManager {
	m := &ResetManager{users: users, ttl: DefaultResetTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue generates a fresh reset token, overwriting any prior slot.
func (m *ResetManager) Issue(ctx context.Context, userID string) (string, error) {
	token, err := generateSlotToken()
	if err != nil {
		return "", err
	}
	slot := TokenSlot{Token: token, ExpiresAt: m.now().Add(m.ttl)}
	if err := m.users.SetPasswordReset(ctx, userID, slot); err != nil {
		return "", err
	}
	return token, nil
}

// Verify reports whether the user holds exactly this unexpired reset token.
func (m *ResetManager) Verify(ctx context.Context, userID, token string) (bool, error) {
	user, err := m.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return slotMatches(user.PasswordReset, token, m.now()), nil
}

// Consume installs the new password hash and clears the slot in one write.
func (m *ResetManager) Consume(ctx context.Context, userID, passwordHash string) error {
	return m.users.ConsumePasswordReset(ctx, userID, passwordHash)
}

func generateSlotToken() (string, error) {
	buf := make([]byte, slotTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func slotMatches(slot TokenSlot, token string, now time.Time) bool {
	if slot.Empty() || token == "" {
		return false
	}
	if len(slot.Token) != len(token) {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(slot.Token), []byte(token)) != 1 {
		return false
	}
	return slot.ExpiresAt.After(now)
}
