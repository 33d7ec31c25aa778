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

type userStore struct {
	db *sql.DB
}

var _ auth.UserStore = (*userStore)(nil)

const userColumns = `u.id, u.email, u.password_hash, u.is_email_verified,
		u.verification_token, u.verification_expires_at,
		u.reset_token, u.reset_expires_at,
		u.created_at, u.updated_at,
		r.id, r.name, r.description, r.created_at, r.updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, role_id, is_email_verified, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.PasswordHash, u.Role.ID(), u.IsEmailVerified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findBy(ctx, "u.id = $1", id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findBy(ctx, "u.email = $1", email)
}

func (s *userStore) findBy(ctx context.Context, where string, arg any) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		join roles r on r.id = u.role_id
		where `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	tokens, err := s.refreshTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.RefreshTokens = tokens
	return user, nil
}

func (s *userStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users u
		join roles r on r.id = u.role_id
		order by u.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.PasswordHash != nil {
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.PasswordHash)
		idx++
	}
	if upd.RoleID != nil {
		setClauses = append(setClauses, fmt.Sprintf("role_id = $%d", idx))
		args = append(args, *upd.RoleID)
		idx++
	}
	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = now()")
		query := fmt.Sprintf("update users set %s where id = $%d", strings.Join(setClauses, ", "), idx)
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

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
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

// SetRefreshTokens replaces the user's collection in one transaction so a
// concurrent reader never observes a partial write.
func (s *userStore) SetRefreshTokens(ctx context.Context, userID string, tokens []auth.RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from refresh_tokens where user_id = $1`, userID); err != nil {
		return err
	}
	for _, t := range tokens {
		if _, err := tx.ExecContext(ctx, `
			insert into refresh_tokens (user_id, token, expires_at, created_at)
			values ($1, $2, $3, $4)
		`, userID, t.Token, t.ExpiresAt.UTC(), t.CreatedAt.UTC()); err != nil {
			return mapWriteError(err)
		}
	}
	return tx.Commit()
}

func (s *userStore) SetVerification(ctx context.Context, userID string, slot auth.TokenSlot) error {
	return s.setSlot(ctx, userID, "verification_token", "verification_expires_at", slot)
}

func (s *userStore) ConsumeVerification(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set is_email_verified = true,
		    verification_token = null,
		    verification_expires_at = null,
		    updated_at = now()
		where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetPasswordReset(ctx context.Context, userID string, slot auth.TokenSlot) error {
	return s.setSlot(ctx, userID, "reset_token", "reset_expires_at", slot)
}

func (s *userStore) ConsumePasswordReset(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2,
		    reset_token = null,
		    reset_expires_at = null,
		    updated_at = now()
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) setSlot(ctx context.Context, userID, tokenCol, expiryCol string, slot auth.TokenSlot) error {
	var (
		token  sql.NullString
		expiry sql.NullTime
	)
	if !slot.Empty() {
		token = sql.NullString{String: slot.Token, Valid: true}
		expiry = sql.NullTime{Time: slot.ExpiresAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		update users set %s = $2, %s = $3, updated_at = now() where id = $1
	`, tokenCol, expiryCol), userID, token, expiry)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) refreshTokens(ctx context.Context, userID string) ([]auth.RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		select token, expires_at, created_at
		from refresh_tokens
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []auth.RefreshToken
	for rows.Next() {
		var t auth.RefreshToken
		if err := rows.Scan(&t.Token, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func requireRow(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                 auth.User
		role              auth.Role
		verifyToken       sql.NullString
		verifyExpiresAt   sql.NullTime
		resetToken        sql.NullString
		resetExpiresAt    sql.NullTime
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsEmailVerified,
		&verifyToken, &verifyExpiresAt,
		&resetToken, &resetExpiresAt,
		&u.CreatedAt, &u.UpdatedAt,
		&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if verifyToken.Valid {
		u.Verification = auth.TokenSlot{Token: verifyToken.String, ExpiresAt: verifyExpiresAt.Time}
	}
	if resetToken.Valid {
		u.PasswordReset = auth.TokenSlot{Token: resetToken.String, ExpiresAt: resetExpiresAt.Time}
	}
	u.Role = auth.ResolvedRole(&role)
	return &u, nil
}
