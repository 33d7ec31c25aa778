package auth

import (
	"context"
	"testing"
	"time"
)

func seedUser(t *testing.T, store *InMemoryStore) *User {
	t.Helper()
	role := store.mustSeedRole("user")
	user := &User{Email: "v@x.com", Role: RoleID(role.ID)}
	if err := store.Users(context.Background()).Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestVerificationIssueVerifyConsume(t *testing.T) {
	store := NewInMemoryStore()
	user := seedUser(t, store)
	ctx := context.Background()
	m := NewVerificationManager(store.Users(ctx))

	token, err := m.Issue(ctx, user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(token) != 64 { // 32 random bytes, hex encoded
		t.Fatalf("token length = %d, want 64", len(token))
	}

	ok, err := m.Verify(ctx, user.ID, token)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true", ok, err)
	}
	if err := m.Consume(ctx, user.ID); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	got, err := store.Users(ctx).Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !got.IsEmailVerified {
		t.Fatal("user not marked verified after Consume")
	}

	// Single use: the consumed token never verifies again.
	ok, err = m.Verify(ctx, user.ID, token)
	if err != nil || ok {
		t.Fatalf("Verify after Consume = %v, %v; want false", ok, err)
	}
}

func TestVerificationWrongToken(t *testing.T) {
	store := NewInMemoryStore()
	user := seedUser(t, store)
	ctx := context.Background()
	m := NewVerificationManager(store.Users(ctx))

	if _, err := m.Issue(ctx, user.ID); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	ok, err := m.Verify(ctx, user.ID, "0000000000000000000000000000000000000000000000000000000000000000")
	if err != nil || ok {
		t.Fatalf("Verify with wrong token = %v, %v; want false", ok, err)
	}
	ok, err = m.Verify(ctx, user.ID, "")
	if err != nil || ok {
		t.Fatalf("Verify with empty token = %v, %v; want false", ok, err)
	}
}

func TestVerificationExpiredToken(t *testing.T) {
	store := NewInMemoryStore()
	user := seedUser(t, store)
	ctx := context.Background()
	now := time.Now()
	m := NewVerificationManager(store.Users(ctx),
		WithVerificationTTL(time.Hour),
		WithVerificationClock(func() time.Time { return now }),
	)

	token, err := m.Issue(ctx, user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	now = now.Add(2 * time.Hour)
	ok, err := m.Verify(ctx, user.ID, token)
	if err != nil || ok {
		t.Fatalf("Verify on expired = %v, %v; want false", ok, err)
	}
}

func TestVerificationReissueOverwrites(t *testing.T) {
	store := NewInMemoryStore()
	user := seedUser(t, store)
	ctx := context.Background()
	m := NewVerificationManager(store.Users(ctx))

	first, err := m.Issue(ctx, user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := m.Issue(ctx, user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if first == second {
		t.Fatal("reissued token identical to first")
	}

	ok, _ := m.Verify(ctx, user.ID, first)
	if ok {
		t.Fatal("stale token still verifies after reissue")
	}
	ok, _ = m.Verify(ctx, user.ID, second)
	if !ok {
		t.Fatal("fresh token does not verify")
	}
}

func TestVerificationUnknownUser(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	m := NewVerificationManager(store.Users(ctx))

	ok, err := m.Verify(ctx, "missing", "whatever")
	if err != nil {
		t.Fatalf("Verify unknown user: %v", err)
	}
	if ok {
		t.Fatal("unknown user verified")
	}
}

func TestResetManagerFlow(t *testing.T) {
	store := NewInMemoryStore()
	user := seedUser(t, store)
	ctx := context.Background()
	m := NewResetManager(store.Users(ctx))

	token, err := m.Issue(ctx, user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	ok, err := m.Verify(ctx, user.ID, token)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true", ok, err)
	}
	if err := m.Consume(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	got, err := store.Users(ctx).Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Fatalf("password hash = %q, want new-hash", got.PasswordHash)
	}
	ok, _ = m.Verify(ctx, user.ID, token)
	if ok {
		t.Fatal("reset token still verifies after Consume")
	}
}
