package users

import "time"

// ManagedUser is the account projection for the admin area, including the
// role names resolved at read time.
type ManagedUser struct {
	ID          int64
	Username    string
	Email       string
	IsActive    bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Roles       []string
}

// CreateInput carries the new-account form fields.
type CreateInput struct {
	Username string
	Email    string
	Password string
	RoleIDs  []int64
}
