package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// RBACService manages roles, permissions and their many-to-many relation, and
// resolves permission checks for the authorization gate.
type RBACService struct {
	store Store
}

// NewRBACService constructs an RBACService.
func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("auth: rbac store is required")
	}
	return &RBACService{store: store}, nil
}

// HasPermission resolves whether the role grants the named permission.
// A permission name that was never seeded fails with ErrPermissionUndefined —
// a misconfiguration, not a denial. Resolution is a point lookup on the
// role/permission pair; there is no inheritance and no wildcard matching.
func (s *RBACService) HasPermission(ctx context.Context, roleID, permissionName string) (bool, error) {
	roleID = strings.TrimSpace(roleID)
	permissionName = strings.TrimSpace(permissionName)
	if roleID == "" || permissionName == "" {
		return false, fmt.Errorf("%w: role id and permission name are required", ErrInvalidInput)
	}
	perm, err := s.store.Permissions(ctx).FindByName(ctx, permissionName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrPermissionUndefined, permissionName)
		}
		return false, err
	}
	return s.store.RolePermissions(ctx).Exists(ctx, roleID, perm.ID)
}

// CreateRole creates a role. Names are unique and stored lowercased.
func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns all roles.
func (s *RBACService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// UpdateRole applies a partial role update.
func (s *RBACService) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.ToLower(strings.TrimSpace(*upd.Name))
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.Roles(ctx).Update(ctx, id, upd)
}

// DeleteRole removes a role. Deletion is restricted while users reference the
// role or permission links remain; the store surfaces that as ErrConflict.
func (s *RBACService) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Delete(ctx, id)
}

// CreatePermission creates a permission with a unique name.
func (s *RBACService) CreatePermission(ctx context.Context, name, action, resource, description string) (*Permission, error) {
	name = strings.TrimSpace(name)
	action = strings.ToLower(strings.TrimSpace(action))
	resource = strings.TrimSpace(resource)
	description = strings.TrimSpace(description)
	if name == "" || resource == "" || description == "" {
		return nil, fmt.Errorf("%w: name, resource and description are required", ErrInvalidInput)
	}
	if !slices.Contains(ValidActions, action) {
		return nil, fmt.Errorf("%w: unsupported action %s", ErrInvalidInput, action)
	}
	perm := &Permission{Name: name, Action: action, Resource: resource, Description: description}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// ListPermissions returns the full permission catalog.
func (s *RBACService) ListPermissions(ctx context.Context) ([]*Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

// UpdatePermission applies a partial permission update.
func (s *RBACService) UpdatePermission(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Action != nil {
		action := strings.ToLower(strings.TrimSpace(*upd.Action))
		if !slices.Contains(ValidActions, action) {
			return nil, fmt.Errorf("%w: unsupported action %s", ErrInvalidInput, action)
		}
		upd.Action = &action
	}
	return s.store.Permissions(ctx).Update(ctx, id, upd)
}

// DeletePermission removes a permission; restricted while role links remain.
func (s *RBACService) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return s.store.Permissions(ctx).Delete(ctx, id)
}

// AssignPermission links a permission to a role. Assigning an already-linked
// pair fails with ErrConflict and leaves the link count at one.
func (s *RBACService) AssignPermission(ctx context.Context, roleID, permissionID string) (RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return RolePermission{}, fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return RolePermission{}, err
	}
	if _, err := s.store.Permissions(ctx).Find(ctx, permissionID); err != nil {
		return RolePermission{}, err
	}
	return s.store.RolePermissions(ctx).Assign(ctx, roleID, permissionID)
}

// RemovePermission unlinks a pair; removing an absent link fails with
// ErrNotFound.
func (s *RBACService) RemovePermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	return s.store.RolePermissions(ctx).Remove(ctx, roleID, permissionID)
}

// AssignRoleToUser points a user at a different role.
func (s *RBACService) AssignRoleToUser(ctx context.Context, userID, roleID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.Users(ctx).Update(ctx, userID, UserUpdate{RoleID: &roleID})
}

// EnsureBuiltins seeds the predefined permission catalog.
func (s *RBACService) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions)
}
