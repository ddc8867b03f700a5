package admin

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"membership/internal/apperr"
)

// Repository persists admin accounts in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const adminColumns = `id, full_name, email, password_hash, role, status, last_login, created_at, updated_at`

func scanAdmin(row interface{ Scan(dest ...any) error }) (Admin, error) {
	var a Admin
	err := row.Scan(&a.ID, &a.FullName, &a.Email, &a.PasswordHash, &a.Role, &a.Status,
		&a.LastLogin, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Create inserts a new admin.
func (r *Repository) Create(ctx context.Context, a Admin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admins (id, full_name, email, password_hash, role, status)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.FullName, a.Email, a.PasswordHash, a.Role, a.Status)
	return err
}

// GetByEmail returns an admin by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Admin, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE email = $1`, email)
	a, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, apperr.NotFound("admin not found")
	}
	return a, err
}

// GetByID returns an admin by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (Admin, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE id = $1`, id)
	a, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, apperr.NotFound("admin not found")
	}
	return a, err
}

// List returns all admins, newest first.
func (r *Repository) List(ctx context.Context) ([]Admin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+adminColumns+` FROM admins ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Count returns the number of admin accounts.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}

// Update persists profile, role, and status edits.
func (r *Repository) Update(ctx context.Context, a Admin) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE admins SET full_name = $2, email = $3, role = $4, status = $5, updated_at = NOW()
		WHERE id = $1
	`, a.ID, a.FullName, a.Email, a.Role, a.Status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("admin not found")
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *Repository) UpdatePassword(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE admins SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	return err
}

// SetResetToken stores a hashed password-reset token and its expiry.
func (r *Repository) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE admins SET password_reset_token = $2, password_reset_expires = $3, updated_at = NOW()
		WHERE id = $1
	`, id, tokenHash, expires)
	return err
}

// GetByResetToken returns the admin holding an unexpired reset token hash.
func (r *Repository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (Admin, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+adminColumns+` FROM admins
		WHERE password_reset_token = $1 AND password_reset_expires > $2
	`, tokenHash, now)
	a, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, apperr.NotFound("admin not found")
	}
	return a, err
}

// ResetPassword replaces the stored hash and clears the reset token.
func (r *Repository) ResetPassword(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE admins SET password_hash = $2, password_reset_token = NULL,
			password_reset_expires = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, hash)
	return err
}

// SetLastLogin stamps a successful login.
func (r *Repository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE admins SET last_login = $2 WHERE id = $1`, id, at)
	return err
}

// Delete removes an admin account.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("admin not found")
	}
	return nil
}
