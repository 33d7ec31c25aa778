package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newRefreshFixture(t *testing.T) (*RefreshStore, *InMemoryStore, *User, *time.Time) {
	t.Helper()
	store := NewInMemoryStore()
	role := store.mustSeedRole("user")
	user := &User{Email: "a@x.com", Role: RoleID(role.ID)}
	if err := store.Users(context.Background()).Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	now := time.Now()
	rs := NewRefreshStore(store.Users(context.Background()), WithRefreshClock(func() time.Time { return now }))
	return rs, store, user, &now
}

func tokensOf(t *testing.T, store *InMemoryStore, userID string) []RefreshToken {
	t.Helper()
	user, err := store.Users(context.Background()).Find(context.Background(), userID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	return user.RefreshTokens
}

func TestRefreshStoreBoundedFIFO(t *testing.T) {
	rs, store, user, now := newRefreshFixture(t)
	ctx := context.Background()
	exp := now.Add(time.Hour)

	for i := 0; i < MaxRefreshTokens+2; i++ {
		if err := rs.Add(ctx, user.ID, fmt.Sprintf("tok-%d", i), exp); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}

	got := tokensOf(t, store, user.ID)
	if len(got) != MaxRefreshTokens {
		t.Fatalf("stored %d tokens, want %d", len(got), MaxRefreshTokens)
	}
	// Oldest two evicted, order preserved oldest-first.
	for i, tok := range got {
		want := fmt.Sprintf("tok-%d", i+2)
		if tok.Token != want {
			t.Fatalf("slot %d = %q, want %q", i, tok.Token, want)
		}
	}
}

func TestRefreshStorePrunesExpiredOnAdd(t *testing.T) {
	rs, store, user, now := newRefreshFixture(t)
	ctx := context.Background()

	if err := rs.Add(ctx, user.ID, "stale", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	*now = now.Add(2 * time.Minute)
	if err := rs.Add(ctx, user.ID, "fresh", now.Add(time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := tokensOf(t, store, user.ID)
	if len(got) != 1 || got[0].Token != "fresh" {
		t.Fatalf("tokens = %+v, want only fresh", got)
	}
}

func TestRefreshStoreAddRemoveIsValid(t *testing.T) {
	rs, _, user, now := newRefreshFixture(t)
	ctx := context.Background()
	exp := now.Add(time.Hour)

	if err := rs.Add(ctx, user.ID, "tok", exp); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := rs.IsValid(ctx, user.ID, "tok")
	if err != nil || !ok {
		t.Fatalf("IsValid after Add = %v, %v; want true", ok, err)
	}

	if err := rs.Remove(ctx, user.ID, "tok"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ok, err = rs.IsValid(ctx, user.ID, "tok")
	if err != nil || ok {
		t.Fatalf("IsValid after Remove = %v, %v; want false", ok, err)
	}
}

func TestRefreshStoreIsValidExpired(t *testing.T) {
	rs, _, user, now := newRefreshFixture(t)
	ctx := context.Background()

	if err := rs.Add(ctx, user.ID, "tok", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	*now = now.Add(2 * time.Minute)
	ok, err := rs.IsValid(ctx, user.ID, "tok")
	if err != nil || ok {
		t.Fatalf("IsValid on expired = %v, %v; want false", ok, err)
	}
}

func TestRefreshStoreClear(t *testing.T) {
	rs, store, user, now := newRefreshFixture(t)
	ctx := context.Background()
	exp := now.Add(time.Hour)

	for i := 0; i < 3; i++ {
		if err := rs.Add(ctx, user.ID, fmt.Sprintf("tok-%d", i), exp); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := rs.Clear(ctx, user.ID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := tokensOf(t, store, user.ID); len(got) != 0 {
		t.Fatalf("tokens after Clear = %+v, want none", got)
	}
}

func TestRefreshStoreConcurrentAdds(t *testing.T) {
	rs, store, user, now := newRefreshFixture(t)
	ctx := context.Background()
	exp := now.Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = rs.Add(ctx, user.ID, fmt.Sprintf("tok-%d", i), exp)
		}(i)
	}
	wg.Wait()

	if got := tokensOf(t, store, user.ID); len(got) > MaxRefreshTokens {
		t.Fatalf("stored %d tokens after concurrent adds, cap is %d", len(got), MaxRefreshTokens)
	}
}
