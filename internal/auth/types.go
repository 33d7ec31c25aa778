package auth

import (
	"encoding/json"
	"time"
)

// Actions a permission may describe. Authorization matches by permission name
// only; action and resource are descriptive.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
)

// ValidActions enumerates the accepted permission actions.
var ValidActions = []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage}

// User is an authenticatable principal. Exactly one role per user.
type User struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	PasswordHash    string  `json:"-"`
	Role            RoleRef `json:"role"`
	IsEmailVerified bool    `json:"is_email_verified"`
	// Verification holds the single-slot email-verification token; the zero
	// value means no verification is pending.
	Verification TokenSlot `json:"-"`
	// PasswordReset holds the single-slot password-reset token.
	PasswordReset TokenSlot `json:"-"`
	// RefreshTokens is ordered oldest-first, at most MaxRefreshTokens entries.
	RefreshTokens []RefreshToken `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// RoleRef is a two-variant reference to a user's role: a bare id, or a fully
// resolved Role. Callers that only need the id never force a load.
type RoleRef struct {
	id   string
	role *Role
}

// RoleID constructs an unresolved reference.
func RoleID(id string) RoleRef {
	return RoleRef{id: id}
}

// ResolvedRole constructs a reference carrying the full role.
func ResolvedRole(role *Role) RoleRef {
	if role == nil {
		return RoleRef{}
	}
	return RoleRef{id: role.ID, role: role}
}

// ID returns the role id regardless of variant.
func (r RoleRef) ID() string {
	if r.role != nil {
		return r.role.ID
	}
	return r.id
}

// Resolved returns the role when this reference carries one.
func (r RoleRef) Resolved() (*Role, bool) {
	if r.role == nil {
		return nil, false
	}
	return r.role, true
}

// IsZero reports whether the reference points at nothing.
func (r RoleRef) IsZero() bool {
	return r.id == "" && r.role == nil
}

// MarshalJSON renders the resolved role as an object and an unresolved
// reference as the bare id string.
func (r RoleRef) MarshalJSON() ([]byte, error) {
	if r.role != nil {
		return json.Marshal(r.role)
	}
	return json.Marshal(r.id)
}

// TokenSlot is a single-use, time-bounded token stored alongside a user.
// The zero value means the slot is empty.
type TokenSlot struct {
	Token     string
	ExpiresAt time.Time
}

// Empty reports whether no token is stored.
func (s TokenSlot) Empty() bool {
	return s.Token == ""
}

// Role groups permissions. Names are unique and stored lowercased.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a named atomic capability. Authorization checks look
// permissions up by Name, never by id.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FullPermission renders the display form "action_resource".
func (p Permission) FullPermission() string {
	return p.Action + "_" + p.Resource
}

// RolePermission links a role to a permission. The pair is unique.
type RolePermission struct {
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshToken is one live refresh credential for a user (one per device).
type RefreshToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
