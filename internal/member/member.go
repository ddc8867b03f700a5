// Package member owns member identity, profile, and the denormalized presence flag.
package member

import (
	"time"
)

// Status values a member account can hold.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Allowed enum values, mirroring the persisted vocabulary.
var (
	Genders         = []string{"male", "female", "other"}
	Departments     = []string{"ERA OPENLABS", "ERA Softwares", "ERA Manufacturing", "ERA Education", "None"}
	MembershipTypes = []string{"Student", "Staff", "Executive", "Guest", "Managing Lead"}
	Statuses        = []string{StatusActive, StatusInactive, StatusSuspended}
)

// Member is a registered individual tracked by the system.
//
// IsPresent is a denormalized cache of "an open attendance record exists for this
// member"; the attendance ledger is the source of truth and the presence
// coordinator keeps the two aligned.
type Member struct {
	ID             string     `json:"id"`
	MemberID       string     `json:"memberId"`
	FullName       string     `json:"fullName"`
	Gender         string     `json:"gender"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email"`
	DateOfBirth    time.Time  `json:"dateOfBirth"`
	Age            int        `json:"age"`
	Department     string     `json:"department"`
	MembershipType string     `json:"membershipType"`
	DateJoined     time.Time  `json:"dateJoined"`
	IssuedCard     bool       `json:"issuedCard"`
	IsPresent      bool       `json:"isPresent"`
	QRCodeURL      string     `json:"qrCodeUrl"`
	Status         string     `json:"status"`
	LastCheckIn    *time.Time `json:"lastCheckIn,omitempty"`
	LastCheckOut   *time.Time `json:"lastCheckOut,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// AgeAt returns the member's age in whole years at the given instant.
// Derived at read time, never stored.
func (m Member) AgeAt(at time.Time) int {
	age := int(at.Sub(m.DateOfBirth).Hours() / 24 / 365.25)
	if age < 0 {
		return 0
	}
	return age
}

// Stats summarizes the registry for dashboards.
type Stats struct {
	Total           int            `json:"total"`
	Active          int            `json:"active"`
	Present         int            `json:"present"`
	MembershipTypes map[string]int `json:"membershipTypes"`
}

// ListFilter narrows and pages a member listing.
type ListFilter struct {
	Status         string
	Department     string
	MembershipType string
	Page           int
	Limit          int
}

// SearchFilter matches members by free text and/or exact enum values.
type SearchFilter struct {
	Query          string
	Status         string
	MembershipType string
}
