package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"keygate.io/internal/auth"
	"keygate.io/internal/ids"
)

type permissionStore struct {
	db *sql.DB
}

var _ auth.PermissionStore = (*permissionStore)(nil)

func (s *permissionStore) Create(ctx context.Context, perm *auth.Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	now := time.Now().UTC()
	perm.CreatedAt = now
	perm.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into permissions (id, name, action, resource, description, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, perm.ID, perm.Name, perm.Action, perm.Resource, perm.Description, perm.CreatedAt, perm.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *permissionStore) Find(ctx context.Context, id string) (*auth.Permission, error) {
	return s.findBy(ctx, "id = $1", id)
}

func (s *permissionStore) FindByName(ctx context.Context, name string) (*auth.Permission, error) {
	return s.findBy(ctx, "name = $1", name)
}

func (s *permissionStore) findBy(ctx context.Context, where string, arg any) (*auth.Permission, error) {
	var perm auth.Permission
	err := s.db.QueryRowContext(ctx, `
		select id, name, action, resource, description, created_at, updated_at
		from permissions
		where `+where, arg).
		Scan(&perm.ID, &perm.Name, &perm.Action, &perm.Resource, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (s *permissionStore) List(ctx context.Context) ([]*auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, action, resource, description, created_at, updated_at
		from permissions
		order by name
	`)
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

func (s *permissionStore) Update(ctx context.Context, id string, upd auth.PermissionUpdate) (*auth.Permission, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	for col, val := range map[string]*string{
		"name":        upd.Name,
		"action":      upd.Action,
		"resource":    upd.Resource,
		"description": upd.Description,
	} {
		if val == nil {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, *val)
		idx++
	}
	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = now()")
		query := fmt.Sprintf("update permissions set %s where id = $%d", strings.Join(setClauses, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, mapWriteError(err)
		}
		if aff, err := res.RowsAffected(); err == nil && aff == 0 {
			return nil, auth.ErrNotFound
		}
	}
	return s.Find(ctx, id)
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return mapDeleteError(err)
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

// Ensure inserts catalog entries that do not exist yet, matching by name.
func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, perm := range perms {
		_, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name, action, resource, description, created_at, updated_at)
			values ($1, $2, $3, $4, $5, now(), now())
			on conflict (name) do nothing
		`, ids.New(), perm.Name, perm.Action, perm.Resource, perm.Description)
		if err != nil {
			return err
		}
	}
	return nil
}
