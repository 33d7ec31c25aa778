package pg

import (
	"context"
	"database/sql"
	"time"

	"keygate.io/internal/auth"
)

type rolePermissionStore struct {
	db *sql.DB
}

var _ auth.RolePermissionStore = (*rolePermissionStore)(nil)

func (s *rolePermissionStore) Assign(ctx context.Context, roleID, permissionID string) (auth.RolePermission, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id, created_at)
		values ($1, $2, $3)
	`, roleID, permissionID, now)
	if err != nil {
		return auth.RolePermission{}, mapWriteError(err)
	}
	return auth.RolePermission{RoleID: roleID, PermissionID: permissionID, CreatedAt: now}, nil
}

func (s *rolePermissionStore) Remove(ctx context.Context, roleID, permissionID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from role_permissions where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *rolePermissionStore) Exists(ctx context.Context, roleID, permissionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from role_permissions where role_id = $1 and permission_id = $2
		)
	`, roleID, permissionID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *rolePermissionStore) ListByRole(ctx context.Context, roleID string) ([]*auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.action, p.resource, p.description, p.created_at, p.updated_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []*auth.Permission
	for rows.Next() {
		var perm auth.Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Action, &perm.Resource, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, &perm)
	}
	return perms, rows.Err()
}
