package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"keygate.io/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements auth.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to PostgreSQL with pooled defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing connection (used by tests with sqlmock).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(ctx context.Context) auth.UserStore { return &userStore{db: s.db} }
func (s *Store) Roles(ctx context.Context) auth.RoleStore { return &roleStore{db: s.db} }
func (s *Store) Permissions(ctx context.Context) auth.PermissionStore {
	return &permissionStore{db: s.db}
}
func (s *Store) RolePermissions(ctx context.Context) auth.RolePermissionStore {
	return &rolePermissionStore{db: s.db}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapWriteError translates constraint violations into the auth error
// taxonomy: duplicate keys are conflicts, missing foreign rows behave like
// not-found.
func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

// mapDeleteError translates a foreign-key violation on delete into a
// conflict: rows referenced elsewhere are deletion-restricted.
func mapDeleteError(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrConflict
	}
	return err
}
