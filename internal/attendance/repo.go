package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"membership/internal/apperr"
	"membership/internal/store"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, member_id, check_in, check_out, duration, status,
	check_in_lat, check_in_lng, check_out_lat, check_out_lng, notes, created_at, updated_at`

func scanRecord(row interface{ Scan(dest ...any) error }) (Record, error) {
	var rec Record
	var inLat, inLng, outLat, outLng sql.NullFloat64
	err := row.Scan(&rec.ID, &rec.MemberRef, &rec.CheckIn, &rec.CheckOut, &rec.Duration,
		&rec.Status, &inLat, &inLng, &outLat, &outLng, &rec.Notes, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	if inLat.Valid && inLng.Valid {
		rec.CheckInLocation = &GeoPoint{Lat: inLat.Float64, Lng: inLng.Float64}
	}
	if outLat.Valid && outLng.Valid {
		rec.CheckOutLocation = &GeoPoint{Lat: outLat.Float64, Lng: outLng.Float64}
	}
	return rec, nil
}

func latLng(p *GeoPoint) (any, any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lng
}

// OpenTx inserts a new checked-in record as part of a caller-controlled transaction.
func (r *Repository) OpenTx(ctx context.Context, q store.Querier, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = StatusCheckedIn
	rec.Duration = 0
	lat, lng := latLng(rec.CheckInLocation)
	row := q.QueryRowContext(ctx, `
		INSERT INTO attendances (id, member_id, check_in, status, duration, check_in_lat, check_in_lng, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, rec.ID, rec.MemberRef, rec.CheckIn, rec.Status, rec.Duration, lat, lng, rec.Notes)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, fmt.Errorf("insert attendance: %w", err)
	}
	return rec, nil
}

// CloseTx closes an open record at the given instant inside a caller-controlled
// transaction. Fails with InvalidState when the record is already closed.
func (r *Repository) CloseTx(ctx context.Context, q store.Querier, recordID string, at time.Time, loc *GeoPoint) (Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendances WHERE id = $1 FOR UPDATE`, recordID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.NotFound("attendance record not found")
	}
	if err != nil {
		return Record{}, err
	}

	closed, err := rec.CloseAt(at, loc)
	if err != nil {
		return Record{}, err
	}

	lat, lng := latLng(closed.CheckOutLocation)
	_, err = q.ExecContext(ctx, `
		UPDATE attendances
		SET check_out = $2, duration = $3, status = $4, check_out_lat = $5, check_out_lng = $6, updated_at = NOW()
		WHERE id = $1
	`, closed.ID, closed.CheckOut, closed.Duration, closed.Status, lat, lng)
	if err != nil {
		return Record{}, fmt.Errorf("close attendance: %w", err)
	}
	return closed, nil
}

// FindOpenFor returns the member's open record. By invariant at most one exists;
// the newest is taken if the invariant was ever breached.
func (r *Repository) FindOpenFor(ctx context.Context, memberRef string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendances
		WHERE member_id = $1 AND status = $2
		ORDER BY check_in DESC LIMIT 1
	`, memberRef, StatusCheckedIn)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.NotFound("no active attendance record found")
	}
	return rec, err
}

// GetByID returns a single record.
func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendances WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperr.NotFound("attendance record not found")
	}
	return rec, err
}

// GetByIDWithMember returns a record joined with member identity.
func (r *Repository) GetByIDWithMember(ctx context.Context, id string) (WithMember, error) {
	rows, err := r.queryWithMember(ctx, `WHERE a.id = $1`, id)
	if err != nil {
		return WithMember{}, err
	}
	if len(rows) == 0 {
		return WithMember{}, apperr.NotFound("attendance record not found")
	}
	return rows[0], nil
}

// List returns a filtered page ordered by check-in descending, plus the total.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]WithMember, int, error) {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	where := ""
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where = fmt.Sprintf("WHERE a.status = $%d", len(args))
	}
	if f.MemberRef != "" {
		args = append(args, f.MemberRef)
		if where == "" {
			where = fmt.Sprintf("WHERE a.member_id = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND a.member_id = $%d", len(args))
		}
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendances a `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	paged := fmt.Sprintf("%s ORDER BY a.check_in DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	rows, err := r.queryWithMember(ctx, paged, args...)
	return rows, total, err
}

// ListBetween returns records with check-in inside [start, end], member joined,
// newest first.
func (r *Repository) ListBetween(ctx context.Context, start, end time.Time) ([]WithMember, error) {
	return r.queryWithMember(ctx,
		`WHERE a.check_in >= $1 AND a.check_in <= $2 ORDER BY a.check_in DESC`, start, end)
}

// All returns the full ledger, member joined, oldest first.
func (r *Repository) All(ctx context.Context) ([]WithMember, error) {
	return r.queryWithMember(ctx, `ORDER BY a.check_in ASC`)
}

// NewestCheckIn returns the most recent check-in timestamp in the whole ledger,
// or nil when the ledger is empty. Reports anchor their windows on it.
func (r *Repository) NewestCheckIn(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT check_in FROM attendances ORDER BY check_in DESC LIMIT 1`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountSince counts records with check-in at or after the given instant.
func (r *Repository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendances WHERE check_in >= $1`, since).Scan(&n)
	return n, err
}

// CountOpen counts currently open records.
func (r *Repository) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendances WHERE status = $1`, StatusCheckedIn).Scan(&n)
	return n, err
}

// AvgCompletedDuration averages the duration of checked-out records, optionally
// restricted to check-ins at or after since. Returns 0 for an empty set.
func (r *Repository) AvgCompletedDuration(ctx context.Context, since *time.Time) (float64, error) {
	var avg sql.NullFloat64
	var err error
	if since != nil {
		err = r.db.QueryRowContext(ctx, `
			SELECT AVG(duration) FROM attendances WHERE status = $1 AND check_in >= $2
		`, StatusCheckedOut, *since).Scan(&avg)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT AVG(duration) FROM attendances WHERE status = $1`, StatusCheckedOut).Scan(&avg)
	}
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

// LastTimesFor returns the member's newest check-in and check-out stamps, either
// of which may be nil. Used by the reconciliation pass.
func (r *Repository) LastTimesFor(ctx context.Context, memberRef string) (lastIn, lastOut *time.Time, err error) {
	var in, out sql.NullTime
	err = r.db.QueryRowContext(ctx, `
		SELECT MAX(check_in), MAX(check_out) FROM attendances WHERE member_id = $1
	`, memberRef).Scan(&in, &out)
	if err != nil {
		return nil, nil, err
	}
	if in.Valid {
		lastIn = &in.Time
	}
	if out.Valid {
		lastOut = &out.Time
	}
	return lastIn, lastOut, nil
}

// DeleteByMemberTx removes every record for a member inside a caller-controlled
// transaction, returning the number removed. Idempotent: zero rows is not an error.
func (r *Repository) DeleteByMemberTx(ctx context.Context, q store.Querier, memberRef string) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM attendances WHERE member_id = $1`, memberRef)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) queryWithMember(ctx context.Context, tail string, args ...any) ([]WithMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.member_id, a.check_in, a.check_out, a.duration, a.status,
		       a.check_in_lat, a.check_in_lng, a.check_out_lat, a.check_out_lng,
		       a.notes, a.created_at, a.updated_at,
		       m.member_id, m.full_name, m.email, m.department
		FROM attendances a
		JOIN members m ON m.id = a.member_id `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []WithMember
	for rows.Next() {
		var w WithMember
		var inLat, inLng, outLat, outLng sql.NullFloat64
		if err := rows.Scan(&w.ID, &w.MemberRef, &w.CheckIn, &w.CheckOut, &w.Duration,
			&w.Status, &inLat, &inLng, &outLat, &outLng, &w.Notes, &w.CreatedAt, &w.UpdatedAt,
			&w.MemberID, &w.FullName, &w.Email, &w.Department); err != nil {
			return nil, err
		}
		if inLat.Valid && inLng.Valid {
			w.CheckInLocation = &GeoPoint{Lat: inLat.Float64, Lng: inLng.Float64}
		}
		if outLat.Valid && outLng.Valid {
			w.CheckOutLocation = &GeoPoint{Lat: outLat.Float64, Lng: outLng.Float64}
		}
		res = append(res, w)
	}
	return res, rows.Err()
}
