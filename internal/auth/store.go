package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	RolePermissions(ctx context.Context) RolePermissionStore
}

// UserStore manages users. Find and FindByEmail return the user with the
// role relation resolved and the refresh-token collection loaded.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	Delete(ctx context.Context, id string) error

	// SetRefreshTokens replaces the user's refresh-token collection in a
	// single write. Callers own the read-modify-write discipline.
	SetRefreshTokens(ctx context.Context, userID string, tokens []RefreshToken) error

	SetVerification(ctx context.Context, userID string, slot TokenSlot) error
	// ConsumeVerification marks the email verified and clears the slot in one
	// statement.
	ConsumeVerification(ctx context.Context, userID string) error

	SetPasswordReset(ctx context.Context, userID string, slot TokenSlot) error
	// ConsumePasswordReset installs the new password hash and clears the
	// reset slot in one statement.
	ConsumePasswordReset(ctx context.Context, userID, passwordHash string) error
}

// UserUpdate carries partial user mutations. Nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	PasswordHash *string
	RoleID       *string
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error)
	Delete(ctx context.Context, id string) error
}

// RoleUpdate carries partial role mutations.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error)
	Delete(ctx context.Context, id string) error
	// Ensure creates any of the given permissions that do not exist yet,
	// matching by name.
	Ensure(ctx context.Context, perms []Permission) error
}

// PermissionUpdate carries partial permission mutations.
type PermissionUpdate struct {
	Name        *string
	Action      *string
	Resource    *string
	Description *string
}

// RolePermissionStore manages the many-to-many role/permission relation.
type RolePermissionStore interface {
	// Assign links the pair, failing with ErrConflict when already linked.
	Assign(ctx context.Context, roleID, permissionID string) (RolePermission, error)
	// Remove unlinks the pair, failing with ErrNotFound when absent.
	Remove(ctx context.Context, roleID, permissionID string) error
	// Exists reports whether exactly this pair is linked.
	Exists(ctx context.Context, roleID, permissionID string) (bool, error)
	// ListByRole returns the permissions linked to a role.
	ListByRole(ctx context.Context, roleID string) ([]*Permission, error)
}
