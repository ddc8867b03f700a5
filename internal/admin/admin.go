// Package admin manages the accounts behind the authorization boundary: admins
// log in with email+password and act as admin or superadmin. The core services
// trust the identity this package authenticates.
package admin

import "time"

// Admin is a privileged operator account.
type Admin struct {
	ID           string     `json:"id"`
	FullName     string     `json:"fullName"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
