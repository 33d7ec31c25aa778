package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Mailer delivers verification and password-reset emails. Sends are
// fire-and-forget from the service's perspective: a failed send is logged and
// never rolls back the token issuance that triggered it.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token, userID string) error
	SendPasswordResetEmail(ctx context.Context, to, token, userID string) error
}

// TokenPair is an access/refresh credential pair with expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Service implements the credential lifecycle: registration, login, refresh
// rotation, revocation and the email verification and password-reset flows.
type Service struct {
	store   Store
	codec   *Codec
	refresh *RefreshStore
	verify  *VerificationManager
	reset   *ResetManager
	mailer  Mailer
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMailer wires outbound email delivery.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
}

// WithLogger overrides the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the credential service.
func NewService(store Store, codec *Codec, refresh *RefreshStore, verify *VerificationManager, reset *ResetManager, opts ...ServiceOption) (*Service, error) {
	if store == nil || codec == nil || refresh == nil || verify == nil || reset == nil {
		return nil, errors.New("auth: store, codec and token managers are required")
	}
	s := &Service{
		store:   store,
		codec:   codec,
		refresh: refresh,
		verify:  verify,
		reset:   reset,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an unverified account with the default role, issues a
// verification token, sends the verification email and returns a fresh token
// pair.
func (s *Service) Register(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return TokenPair{}, nil, fmt.Errorf("%w: user already exists", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return TokenPair{}, nil, err
	}

	defaultRole, err := s.store.Roles(ctx).FindByName(ctx, RoleUser)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, errors.New("auth: default role not seeded")
		}
		return TokenPair{}, nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user := &User{
		Email:        email,
		PasswordHash: hash,
		Role:         ResolvedRole(defaultRole),
	}
	if err := users.Create(ctx, user); err != nil {
		return TokenPair{}, nil, err
	}

	if token, err := s.verify.Issue(ctx, user.ID); err != nil {
		s.logger.Error("issue verification token", slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		s.sendVerification(ctx, user, token)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Login authenticates credentials and issues a token pair. Unknown email and
// wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh rotates a refresh token: the presented token must verify and be
// live in the store; it is removed and a new pair issued. After Refresh the
// old token is no longer valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}
	live, err := s.refresh.IsValid(ctx, user.ID, refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !live {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if err := s.refresh.Remove(ctx, user.ID, refreshToken); err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Logout revokes the presented refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return ErrInvalidToken
	}
	return s.refresh.Remove(ctx, claims.Subject, refreshToken)
}

// LogoutAll revokes every refresh token for the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.refresh.Clear(ctx, userID)
}

// Authenticate validates an access token and loads the user with the role
// relation resolved. A valid token whose subject no longer exists fails with
// ErrNotFound; the gate maps that to 404.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	claims, err := s.codec.Verify(accessToken, TokenAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return s.store.Users(ctx).Find(ctx, claims.Subject)
}

// VerifyEmail redeems a verification token. Invalid, expired and already
// consumed tokens fail uniformly.
func (s *Service) VerifyEmail(ctx context.Context, userID, token string) error {
	ok, err := s.verify.Verify(ctx, userID, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}
	return s.verify.Consume(ctx, userID)
}

// ResendVerification reissues the verification token and resends the email.
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return fmt.Errorf("%w: email already verified", ErrInvalidInput)
	}
	token, err := s.verify.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	s.sendVerification(ctx, user, token)
	return nil
}

// ForgotPassword issues a persisted reset token and emails it.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := s.reset.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}
	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, token, user.ID); err != nil {
		s.logger.Error("send password reset email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// ResetPassword redeems a reset token, installs the new password and revokes
// all refresh tokens so stolen sessions do not survive the reset.
func (s *Service) ResetPassword(ctx context.Context, userID, token, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	ok, err := s.reset.Verify(ctx, userID, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.reset.Consume(ctx, userID, hash); err != nil {
		return err
	}
	return s.refresh.Clear(ctx, userID)
}

// issuePair mints an access/refresh pair and records the refresh token in the
// bounded store. The server-side refresh expiry is computed here and stored
// alongside the token rather than trusted from the signature alone.
func (s *Service) issuePair(ctx context.Context, user *User) (TokenPair, error) {
	access, accessExp, err := s.codec.Issue(user, TokenAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.codec.Issue(user, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	refreshExp := s.now().Add(s.codec.RefreshTTL())
	if err := s.refresh.Add(ctx, user.ID, refresh, refreshExp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) sendVerification(ctx context.Context, user *User, token string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendVerificationEmail(ctx, user.Email, token, user.ID); err != nil {
		s.logger.Error("send verification email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
