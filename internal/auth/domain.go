package auth

import "time"

// User represents a portal user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	Internal     bool
	Finance      bool
	SuperAdmin   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token is an opaque bearer credential minted at login.
type Token struct {
	Value     string
	ExpiresAt time.Time
}
