package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"membership/internal/apperr"
	"membership/internal/store"
)

// Repository persists members in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const memberColumns = `id, member_id, full_name, gender, phone, email, date_of_birth,
	department, membership_type, date_joined, issued_card, is_present, qr_code_url,
	status, last_check_in, last_check_out, created_at, updated_at`

func scanMember(row interface{ Scan(dest ...any) error }) (Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.MemberID, &m.FullName, &m.Gender, &m.Phone, &m.Email,
		&m.DateOfBirth, &m.Department, &m.MembershipType, &m.DateJoined, &m.IssuedCard,
		&m.IsPresent, &m.QRCodeURL, &m.Status, &m.LastCheckIn, &m.LastCheckOut,
		&m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// Create inserts a new member row.
func (r *Repository) Create(ctx context.Context, m Member) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (id, member_id, full_name, gender, phone, email, date_of_birth,
			department, membership_type, date_joined, issued_card, is_present, qr_code_url, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, m.ID, m.MemberID, m.FullName, m.Gender, m.Phone, m.Email, m.DateOfBirth,
		m.Department, m.MembershipType, m.DateJoined, m.IssuedCard, m.IsPresent,
		m.QRCodeURL, m.Status)
	return err
}

// GetByMemberID returns a member by its human-readable ID.
func (r *Repository) GetByMemberID(ctx context.Context, memberID string) (Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE member_id = $1`, memberID)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, apperr.NotFound("member not found")
	}
	return m, err
}

// GetByID returns a member by its internal reference.
func (r *Repository) GetByID(ctx context.Context, id string) (Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, apperr.NotFound("member not found")
	}
	return m, err
}

// MaxMemberID returns the lexicographically greatest member ID, or "" when no
// member exists yet. The registration sequence is derived from it.
func (r *Repository) MaxMemberID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT member_id FROM members ORDER BY member_id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// EmailOrPhoneExists reports whether any member already uses the email or phone.
func (r *Repository) EmailOrPhoneExists(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE email = $1 OR phone = $2)`,
		email, phone).Scan(&exists)
	return exists, err
}

// List returns a filtered page of members ordered newest-first, plus the total count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Member, int, error) {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := ""
	args := []any{}
	add := func(clause, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, len(args))
	}
	add("status = $%d", f.Status)
	add("department = $%d", f.Department)
	add("membership_type = $%d", f.MembershipType)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + memberColumns + ` FROM members` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	members, err := r.queryMembers(ctx, query, args...)
	return members, total, err
}

// Search matches members by name, email, or member ID substring plus exact filters.
func (r *Repository) Search(ctx context.Context, f SearchFilter) ([]Member, error) {
	where := ""
	args := []any{}
	and := func(clause string, vals ...any) {
		args = append(args, vals...)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += clause
	}
	if f.Query != "" {
		and(fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d OR member_id ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1), "%"+f.Query+"%")
	}
	if f.Status != "" {
		and(fmt.Sprintf("status = $%d", len(args)+1), f.Status)
	}
	if f.MembershipType != "" {
		and(fmt.Sprintf("membership_type = $%d", len(args)+1), f.MembershipType)
	}
	return r.queryMembers(ctx, `SELECT `+memberColumns+` FROM members`+where+` ORDER BY member_id`, args...)
}

// ListAll returns every member, ordered by member ID.
func (r *Repository) ListAll(ctx context.Context) ([]Member, error) {
	return r.queryMembers(ctx, `SELECT `+memberColumns+` FROM members ORDER BY member_id`)
}

// Present returns members currently flagged present.
func (r *Repository) Present(ctx context.Context) ([]Member, error) {
	return r.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM members WHERE is_present = TRUE ORDER BY last_check_in DESC`)
}

// ListWithoutCards returns members that have not been issued a card.
func (r *Repository) ListWithoutCards(ctx context.Context) ([]Member, error) {
	return r.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM members WHERE issued_card = FALSE ORDER BY member_id`)
}

// UpdateFields applies a partial update and returns the new row.
// Keys are column names; values are already validated by the service.
func (r *Repository) UpdateFields(ctx context.Context, memberID string, fields map[string]any) (Member, error) {
	if len(fields) == 0 {
		return r.GetByMemberID(ctx, memberID)
	}
	set := "updated_at = NOW()"
	args := []any{}
	// Deterministic order keeps the statement stable across calls.
	for _, col := range []string{"full_name", "gender", "phone", "email", "date_of_birth",
		"department", "membership_type", "status", "issued_card"} {
		val, ok := fields[col]
		if !ok {
			continue
		}
		args = append(args, val)
		set += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	args = append(args, memberID)

	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE members SET %s WHERE member_id = $%d RETURNING `+memberColumns, set, len(args)),
		args...)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, apperr.NotFound("member not found")
	}
	return m, err
}

// SetPresence flips the presence flag and last check-in/out stamps as part of a
// caller-controlled transaction.
func (r *Repository) SetPresence(ctx context.Context, q store.Querier, id string, present bool, lastCheckIn, lastCheckOut *time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE members
		SET is_present = $2,
		    last_check_in = COALESCE($3, last_check_in),
		    last_check_out = COALESCE($4, last_check_out),
		    updated_at = NOW()
		WHERE id = $1
	`, id, present, lastCheckIn, lastCheckOut)
	return err
}

// DeleteTx removes a member row inside a caller-controlled transaction.
func (r *Repository) DeleteTx(ctx context.Context, q store.Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("member not found")
	}
	return nil
}

// SetCardIssued marks a member's card as issued (or revoked).
func (r *Repository) SetCardIssued(ctx context.Context, id string, issued bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET issued_card = $2, updated_at = NOW() WHERE id = $1`, id, issued)
	return err
}

// MarkCardsIssued flags every listed member as carded in one statement.
func (r *Repository) MarkCardsIssued(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET issued_card = TRUE, updated_at = NOW() WHERE id = ANY($1)`, ids)
	return err
}

// Stats computes registry counts grouped by membership type.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	s := Stats{MembershipTypes: map[string]int{}}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE is_present)
		FROM members
	`).Scan(&s.Total, &s.Active, &s.Present)
	if err != nil {
		return Stats{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT membership_type, COUNT(*) FROM members GROUP BY membership_type`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return Stats{}, err
		}
		s.MembershipTypes[typ] = count
	}
	return s, rows.Err()
}

func (r *Repository) queryMembers(ctx context.Context, query string, args ...any) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
