package auth

import (
	"context"
	"fmt"
	"strings"
)

// ProfileUpdate carries the fields a user (or an admin) may change. Password
// is plaintext here and hashed before it reaches storage.
type ProfileUpdate struct {
	Email    *string
	Password *string
	RoleID   *string
}

// ListUsers returns all users with roles resolved.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

// GetUser loads one user with the role resolved.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Find(ctx, id)
}

// UpdateUser applies a partial update. Role changes require the target role
// to exist.
func (s *Service) UpdateUser(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	stored := UserUpdate{}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		stored.Email = &email
	}
	if upd.Password != nil {
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		stored.PasswordHash = &hash
	}
	if upd.RoleID != nil {
		roleID := strings.TrimSpace(*upd.RoleID)
		if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
			return nil, err
		}
		stored.RoleID = &roleID
	}
	return s.store.Users(ctx).Update(ctx, id, stored)
}

// DeleteUser removes a user permanently.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Delete(ctx, id)
}
