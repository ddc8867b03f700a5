// Package attendance owns the check-in/check-out ledger. Records are created on
// check-in, mutated exactly once on check-out, and removed only when a member
// deletion cascades.
package attendance

import (
	"math"
	"time"

	"membership/internal/apperr"
)

// Record status values.
const (
	StatusCheckedIn  = "checked-in"
	StatusCheckedOut = "checked-out"
)

// GeoPoint is an optional check-in/out location.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Record is one check-in/check-out session for a member.
type Record struct {
	ID               string     `json:"id"`
	MemberRef        string     `json:"member"`
	CheckIn          time.Time  `json:"checkIn"`
	CheckOut         *time.Time `json:"checkOut,omitempty"`
	Duration         int        `json:"duration"`
	Status           string     `json:"status"`
	CheckInLocation  *GeoPoint  `json:"checkInLocation,omitempty"`
	CheckOutLocation *GeoPoint  `json:"checkOutLocation,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// WithMember is a ledger row joined with the member's identity, used by reports
// and exports.
type WithMember struct {
	Record
	MemberID   string `json:"memberId"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// DurationMinutes derives the session length: round((out-in)/60000) in the
// original's millisecond terms.
func DurationMinutes(in, out time.Time) int {
	return int(math.Round(out.Sub(in).Minutes()))
}

// CloseAt returns a copy of the record closed at the given instant, with the
// duration recomputed. Fails when the record is already checked out.
func (r Record) CloseAt(at time.Time, loc *GeoPoint) (Record, error) {
	if r.Status == StatusCheckedOut || r.CheckOut != nil {
		return Record{}, apperr.InvalidState("attendance record is already closed")
	}
	out := at
	r.CheckOut = &out
	r.CheckOutLocation = loc
	r.Duration = DurationMinutes(r.CheckIn, out)
	r.Status = StatusCheckedOut
	return r, nil
}

// ListFilter narrows and pages a ledger listing.
type ListFilter struct {
	Status    string
	MemberRef string
	Page      int
	Limit     int
}
