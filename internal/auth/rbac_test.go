package auth

import (
	"context"
	"errors"
	"testing"
)

func newRBACFixture(t *testing.T) (*RBACService, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	svc, err := NewRBACService(store)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	return svc, store
}

func TestHasPermissionGrantedAndDenied(t *testing.T) {
	svc, store := newRBACFixture(t)
	ctx := context.Background()

	admin := store.mustSeedRole("admin")
	user := store.mustSeedRole("user")
	perm := store.mustSeedPermission(PermManageUsers, ActionManage, "users")
	store.mustLink(admin.ID, perm.ID)

	ok, err := svc.HasPermission(ctx, admin.ID, PermManageUsers)
	if err != nil || !ok {
		t.Fatalf("admin HasPermission = %v, %v; want true", ok, err)
	}
	ok, err = svc.HasPermission(ctx, user.ID, PermManageUsers)
	if err != nil || ok {
		t.Fatalf("user HasPermission = %v, %v; want false", ok, err)
	}
}

func TestHasPermissionUndefinedIsDistinct(t *testing.T) {
	svc, store := newRBACFixture(t)
	ctx := context.Background()
	role := store.mustSeedRole("admin")

	_, err := svc.HasPermission(ctx, role.ID, "never_seeded")
	if !errors.Is(err, ErrPermissionUndefined) {
		t.Fatalf("err = %v, want ErrPermissionUndefined", err)
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatal("undefined permission must not read as a denial")
	}
}

func TestCreateRoleLowercasesName(t *testing.T) {
	svc, _ := newRBACFixture(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "  AdMiN  ", "desc")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.Name != "admin" {
		t.Fatalf("name = %q, want admin", role.Name)
	}

	if _, err := svc.CreateRole(ctx, "ADMIN", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate role err = %v, want ErrConflict", err)
	}
}

func TestUpdateRejectsDuplicateName(t *testing.T) {
	svc, _ := newRBACFixture(t)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, "admin", ""); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	support, err := svc.CreateRole(ctx, "support", "")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	name := "admin"
	if _, err := svc.UpdateRole(ctx, support.ID, RoleUpdate{Name: &name}); !errors.Is(err, ErrConflict) {
		t.Fatalf("rename onto taken role name err = %v, want ErrConflict", err)
	}

	if _, err := svc.CreatePermission(ctx, "view_users", ActionRead, "users", "d"); err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	edit, err := svc.CreatePermission(ctx, "edit_users", ActionUpdate, "users", "d")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	permName := "view_users"
	if _, err := svc.UpdatePermission(ctx, edit.ID, PermissionUpdate{Name: &permName}); !errors.Is(err, ErrConflict) {
		t.Fatalf("rename onto taken permission name err = %v, want ErrConflict", err)
	}
}

func TestCreatePermissionValidatesAction(t *testing.T) {
	svc, _ := newRBACFixture(t)
	ctx := context.Background()

	if _, err := svc.CreatePermission(ctx, "fly_users", "fly", "users", "d"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad action err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.CreatePermission(ctx, "view_users", ActionRead, "users", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing description err = %v, want ErrInvalidInput", err)
	}

	perm, err := svc.CreatePermission(ctx, "view_users", "READ", "users", "View users")
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if perm.Action != ActionRead {
		t.Fatalf("action = %q, want read", perm.Action)
	}
	if perm.FullPermission() != "read_users" {
		t.Fatalf("FullPermission = %q", perm.FullPermission())
	}
}

func TestAssignPermissionDuplicate(t *testing.T) {
	svc, store := newRBACFixture(t)
	ctx := context.Background()
	role := store.mustSeedRole("admin")
	perm := store.mustSeedPermission(PermManageUsers, ActionManage, "users")

	if _, err := svc.AssignPermission(ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("first Assign: %v", err)
	}
	if _, err := svc.AssignPermission(ctx, role.ID, perm.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("second Assign err = %v, want ErrConflict", err)
	}

	perms, err := store.RolePermissions(ctx).ListByRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("ListByRole: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("link count = %d, want 1", len(perms))
	}
}

func TestAssignPermissionUnknownTargets(t *testing.T) {
	svc, store := newRBACFixture(t)
	ctx := context.Background()
	role := store.mustSeedRole("admin")
	perm := store.mustSeedPermission(PermManageUsers, ActionManage, "users")

	if _, err := svc.AssignPermission(ctx, "missing", perm.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown role err = %v, want ErrNotFound", err)
	}
	if _, err := svc.AssignPermission(ctx, role.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown permission err = %v, want ErrNotFound", err)
	}
}

func TestRemovePermissionAbsent(t *testing.T) {
	svc, store := newRBACFixture(t)
	ctx := context.Background()
	role := store.mustSeedRole("admin")
	perm := store.mustSeedPermission(PermManageUsers, ActionManage, "users")

	if err := svc.RemovePermission(ctx, role.ID, perm.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove absent link err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRoleRestricted(t *testing.T) {
	svc, store := newRBACFixture(t)
	ctx := context.Background()
	role := store.mustSeedRole("admin")
	perm := store.mustSeedPermission(PermManageUsers, ActionManage, "users")
	store.mustLink(role.ID, perm.ID)

	if err := svc.DeleteRole(ctx, role.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete linked role err = %v, want ErrConflict", err)
	}
}

func TestAssignRoleToUser(t *testing.T) {
	svc, store := newRBACFixture(t)
	ctx := context.Background()
	userRole := store.mustSeedRole("user")
	adminRole := store.mustSeedRole("admin")
	u := &User{Email: "a@x.com", Role: RoleID(userRole.ID)}
	if err := store.Users(ctx).Create(ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	updated, err := svc.AssignRoleToUser(ctx, u.ID, adminRole.ID)
	if err != nil {
		t.Fatalf("AssignRoleToUser: %v", err)
	}
	if updated.Role.ID() != adminRole.ID {
		t.Fatalf("role = %q, want %q", updated.Role.ID(), adminRole.ID)
	}

	if _, err := svc.AssignRoleToUser(ctx, u.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown role err = %v, want ErrNotFound", err)
	}
}

func TestEnsureBuiltinsIdempotent(t *testing.T) {
	svc, _ := newRBACFixture(t)
	ctx := context.Background()

	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins (second): %v", err)
	}
	perms, err := svc.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	if len(perms) != len(BuiltinPermissions) {
		t.Fatalf("catalog size = %d, want %d", len(perms), len(BuiltinPermissions))
	}
}
