package auth

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// InMemoryStore keeps the whole aggregate graph in process memory. It backs
// package tests and local development without PostgreSQL; the pg package is
// the production implementation.
type InMemoryStore struct {
	mu    sync.Mutex
	seq   int
	users map[string]*User
	roles map[string]*Role
	perms map[string]*Permission
	links map[string]time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users: make(map[string]*User),
		roles: make(map[string]*Role),
		perms: make(map[string]*Permission),
		links: make(map[string]time.Time),
	}
}

func (m *InMemoryStore) nextID(prefix string) string {
	m.seq++
	return prefix + strconv.Itoa(m.seq)
}

func linkKey(roleID, permID string) string { return roleID + "|" + permID }

func (m *InMemoryStore) Users(ctx context.Context) UserStore         { return (*memUserStore)(m) }
func (m *InMemoryStore) Roles(ctx context.Context) RoleStore         { return (*memRoleStore)(m) }
func (m *InMemoryStore) Permissions(ctx context.Context) PermissionStore {
	return (*memPermissionStore)(m)
}
func (m *InMemoryStore) RolePermissions(ctx context.Context) RolePermissionStore {
	return (*memRolePermissionStore)(m)
}

func (m *InMemoryStore) cloneUser(u *User) *User {
	cp := *u
	cp.RefreshTokens = append([]RefreshToken(nil), u.RefreshTokens...)
	if role, ok := m.roles[u.Role.ID()]; ok {
		roleCopy := *role
		cp.Role = ResolvedRole(&roleCopy)
	}
	return &cp
}

type memUserStore InMemoryStore

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: duplicate email", ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = m.nextID("user")
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(ctx context.Context, id string) (*User, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return m.cloneUser(u), nil
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return m.cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
}

func (s *memUserStore) List(ctx context.Context) ([]*User, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, m.cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memUserStore) Update(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.RoleID != nil {
		u.Role = RoleID(*upd.RoleID)
	}
	u.UpdatedAt = time.Now()
	return m.cloneUser(u), nil
}

func (s *memUserStore) Delete(ctx context.Context, id string) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	delete(m.users, id)
	return nil
}

func (s *memUserStore) SetRefreshTokens(ctx context.Context, userID string, tokens []RefreshToken) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.RefreshTokens = append([]RefreshToken(nil), tokens...)
	return nil
}

func (s *memUserStore) SetVerification(ctx context.Context, userID string, slot TokenSlot) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.Verification = slot
	return nil
}

func (s *memUserStore) ConsumeVerification(ctx context.Context, userID string) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.IsEmailVerified = true
	u.Verification = TokenSlot{}
	return nil
}

func (s *memUserStore) SetPasswordReset(ctx context.Context, userID string, slot TokenSlot) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.PasswordReset = slot
	return nil
}

func (s *memUserStore) ConsumePasswordReset(ctx context.Context, userID, passwordHash string) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.PasswordHash = passwordHash
	u.PasswordReset = TokenSlot{}
	return nil
}

type memRoleStore InMemoryStore

func (s *memRoleStore) Create(ctx context.Context, role *Role) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return fmt.Errorf("%w: duplicate role name", ErrConflict)
		}
	}
	if role.ID == "" {
		role.ID = m.nextID("role")
	}
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (s *memRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	cp := *role
	return &cp, nil
}

func (s *memRoleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: role %s", ErrNotFound, name)
}

func (s *memRoleStore) List(ctx context.Context) ([]*Role, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Role, 0, len(m.roles))
	for _, role := range m.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memRoleStore) Update(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		for otherID, other := range m.roles {
			if otherID != id && other.Name == *upd.Name {
				return nil, fmt.Errorf("%w: duplicate role name", ErrConflict)
			}
		}
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	role.UpdatedAt = time.Now()
	cp := *role
	return &cp, nil
}

func (s *memRoleStore) Delete(ctx context.Context, id string) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	for _, u := range m.users {
		if u.Role.ID() == id {
			return fmt.Errorf("%w: role in use", ErrConflict)
		}
	}
	for key := range m.links {
		if strings.HasPrefix(key, id+"|") {
			return fmt.Errorf("%w: role has permission links", ErrConflict)
		}
	}
	delete(m.roles, id)
	return nil
}

type memPermissionStore InMemoryStore

func (s *memPermissionStore) Create(ctx context.Context, perm *Permission) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.perms {
		if existing.Name == perm.Name {
			return fmt.Errorf("%w: duplicate permission name", ErrConflict)
		}
	}
	if perm.ID == "" {
		perm.ID = m.nextID("perm")
	}
	perm.CreatedAt = time.Now()
	perm.UpdatedAt = perm.CreatedAt
	cp := *perm
	m.perms[perm.ID] = &cp
	return nil
}

func (s *memPermissionStore) Find(ctx context.Context, id string) (*Permission, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	perm, ok := m.perms[id]
	if !ok {
		return nil, fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	cp := *perm
	return &cp, nil
}

func (s *memPermissionStore) FindByName(ctx context.Context, name string) (*Permission, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, perm := range m.perms {
		if perm.Name == name {
			cp := *perm
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: permission %s", ErrNotFound, name)
}

func (s *memPermissionStore) List(ctx context.Context) ([]*Permission, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Permission, 0, len(m.perms))
	for _, perm := range m.perms {
		cp := *perm
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memPermissionStore) Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	perm, ok := m.perms[id]
	if !ok {
		return nil, fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	if upd.Name != nil {
		for otherID, other := range m.perms {
			if otherID != id && other.Name == *upd.Name {
				return nil, fmt.Errorf("%w: duplicate permission name", ErrConflict)
			}
		}
		perm.Name = *upd.Name
	}
	if upd.Action != nil {
		perm.Action = *upd.Action
	}
	if upd.Resource != nil {
		perm.Resource = *upd.Resource
	}
	if upd.Description != nil {
		perm.Description = *upd.Description
	}
	perm.UpdatedAt = time.Now()
	cp := *perm
	return &cp, nil
}

func (s *memPermissionStore) Delete(ctx context.Context, id string) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[id]; !ok {
		return fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	for key := range m.links {
		if strings.HasSuffix(key, "|"+id) {
			return fmt.Errorf("%w: permission has role links", ErrConflict)
		}
	}
	delete(m.perms, id)
	return nil
}

func (s *memPermissionStore) Ensure(ctx context.Context, perms []Permission) error {
	m := (*InMemoryStore)(s)
	for i := range perms {
		perm := perms[i]
		if _, err := s.FindByName(ctx, perm.Name); err == nil {
			continue
		}
		m.mu.Lock()
		perm.ID = m.nextID("perm")
		cp := perm
		m.perms[perm.ID] = &cp
		m.mu.Unlock()
	}
	return nil
}

type memRolePermissionStore InMemoryStore

func (s *memRolePermissionStore) Assign(ctx context.Context, roleID, permissionID string) (RolePermission, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey(roleID, permissionID)
	if _, ok := m.links[key]; ok {
		return RolePermission{}, fmt.Errorf("%w: pair already linked", ErrConflict)
	}
	now := time.Now()
	m.links[key] = now
	return RolePermission{RoleID: roleID, PermissionID: permissionID, CreatedAt: now}, nil
}

func (s *memRolePermissionStore) Remove(ctx context.Context, roleID, permissionID string) error {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey(roleID, permissionID)
	if _, ok := m.links[key]; !ok {
		return fmt.Errorf("%w: pair not linked", ErrNotFound)
	}
	delete(m.links, key)
	return nil
}

func (s *memRolePermissionStore) Exists(ctx context.Context, roleID, permissionID string) (bool, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[linkKey(roleID, permissionID)]
	return ok, nil
}

func (s *memRolePermissionStore) ListByRole(ctx context.Context, roleID string) ([]*Permission, error) {
	m := (*InMemoryStore)(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Permission
	for key := range m.links {
		if !strings.HasPrefix(key, roleID+"|") {
			continue
		}
		permID := strings.TrimPrefix(key, roleID+"|")
		if perm, ok := m.perms[permID]; ok {
			cp := *perm
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
