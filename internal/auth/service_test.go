package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type captureMailer struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
}

func (m *captureMailer) SendVerificationEmail(ctx context.Context, to, token, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, token)
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(ctx context.Context, to, token, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, token)
	return nil
}

func newServiceFixture(t *testing.T) (*Service, *InMemoryStore, *captureMailer) {
	t.Helper()
	store := NewInMemoryStore()
	store.mustSeedRole(RoleUser)
	codec, err := NewCodec("access-secret", "refresh-secret")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	ctx := context.Background()
	users := store.Users(ctx)
	mail := &captureMailer{}
	svc, err := NewService(store, codec,
		NewRefreshStore(users),
		NewVerificationManager(users),
		NewResetManager(users),
		WithMailer(mail),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, mail
}

func TestRegisterIssuesPairAndVerificationEmail(t *testing.T) {
	svc, store, mail := newServiceFixture(t)
	ctx := context.Background()

	pair, user, err := svc.Register(ctx, " A@X.com ", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "a@x.com" {
		t.Fatalf("email = %q, want normalized a@x.com", user.Email)
	}
	if user.IsEmailVerified {
		t.Fatal("new user must start unverified")
	}
	if role, ok := user.Role.Resolved(); !ok || role.Name != RoleUser {
		t.Fatalf("role = %+v, want default %q", user.Role, RoleUser)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if len(mail.verifications) != 1 {
		t.Fatalf("verification emails sent = %d, want 1", len(mail.verifications))
	}

	stored := tokensOf(t, store, user.ID)
	if len(stored) != 1 || stored[0].Token != pair.RefreshToken {
		t.Fatalf("refresh store = %+v, want the issued token", stored)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@x.com", "hunter2secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, "a@x.com", "otherpassword"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate register err = %v, want ErrConflict", err)
	}
}

func TestLoginMasksFailureCause(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@x.com", "hunter2secret"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, _, unknownErr := svc.Login(ctx, "nobody@x.com", "hunter2secret")
	_, _, badPassErr := svc.Login(ctx, "a@x.com", "wrongpassword")
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(badPassErr, ErrInvalidCredentials) {
		t.Fatalf("login failures differ: %v vs %v", unknownErr, badPassErr)
	}

	if _, _, err := svc.Login(ctx, "a@x.com", "hunter2secret"); err != nil {
		t.Fatalf("valid login: %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	ctx := context.Background()

	pair, _, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	next, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh did not rotate the token")
	}

	// The old token is dead after rotation.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("stale refresh err = %v, want ErrInvalidToken", err)
	}
	// The new one works.
	if _, _, err := svc.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("fresh refresh: %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	ctx := context.Background()

	pair, _, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token refreshed: err = %v", err)
	}
}

func TestLogoutRevokesSingleToken(t *testing.T) {
	svc, store, _ := newServiceFixture(t)
	ctx := context.Background()

	pair, user, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, _, err := svc.Login(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	stored := tokensOf(t, store, user.ID)
	if len(stored) != 1 || stored[0].Token != second.RefreshToken {
		t.Fatalf("tokens after logout = %+v, want only the second session", stored)
	}
}

func TestLogoutAll(t *testing.T) {
	svc, store, _ := newServiceFixture(t)
	ctx := context.Background()

	_, user, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@x.com", "hunter2secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.LogoutAll(ctx, user.ID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if stored := tokensOf(t, store, user.ID); len(stored) != 0 {
		t.Fatalf("tokens after LogoutAll = %+v, want none", stored)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	ctx := context.Background()

	pair, user, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("principal = %q, want %q", got.ID, user.ID)
	}
	if _, ok := got.Role.Resolved(); !ok {
		t.Fatal("principal role not resolved")
	}

	if _, err := svc.Authenticate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token authenticated: err = %v", err)
	}

	// Valid token whose subject is gone surfaces ErrNotFound, not
	// ErrInvalidToken; the HTTP gate turns that into a 404.
	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted subject err = %v, want ErrNotFound", err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	svc, _, mail := newServiceFixture(t)
	ctx := context.Background()

	_, user, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token := mail.verifications[0]

	if err := svc.VerifyEmail(ctx, user.ID, "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong token err = %v, want ErrInvalidToken", err)
	}
	if err := svc.VerifyEmail(ctx, user.ID, token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	got, err := svc.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !got.IsEmailVerified {
		t.Fatal("user not verified")
	}
	if err := svc.VerifyEmail(ctx, user.ID, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second VerifyEmail err = %v, want ErrInvalidToken", err)
	}
}

func TestResendVerification(t *testing.T) {
	svc, _, mail := newServiceFixture(t)
	ctx := context.Background()

	_, user, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.ResendVerification(ctx, user.ID); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	if len(mail.verifications) != 2 {
		t.Fatalf("emails = %d, want 2", len(mail.verifications))
	}

	if err := svc.VerifyEmail(ctx, user.ID, mail.verifications[1]); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if err := svc.ResendVerification(ctx, user.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("resend after verified err = %v, want ErrInvalidInput", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, store, mail := newServiceFixture(t)
	ctx := context.Background()

	pair, user, err := svc.Register(ctx, "a@x.com", "hunter2secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "nobody@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("forgot for unknown email err = %v, want ErrNotFound", err)
	}
	if err := svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(mail.resets) != 1 {
		t.Fatalf("reset emails = %d, want 1", len(mail.resets))
	}
	token := mail.resets[0]

	if err := svc.ResetPassword(ctx, user.ID, "wrong", "newpassword1"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong reset token err = %v, want ErrInvalidToken", err)
	}
	if err := svc.ResetPassword(ctx, user.ID, token, "newpassword1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// All sessions are revoked and the new password works.
	if stored := tokensOf(t, store, user.ID); len(stored) != 0 {
		t.Fatalf("refresh tokens after reset = %+v, want none", stored)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old refresh after reset err = %v, want ErrInvalidToken", err)
	}
	if _, _, err := svc.Login(ctx, "a@x.com", "hunter2secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: err = %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@x.com", "newpassword1"); err != nil {
		t.Fatalf("new password login: %v", err)
	}
}
