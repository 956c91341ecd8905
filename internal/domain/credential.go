package domain

import "time"

// Credential is the login secret of a user as kept by the credential provider.
type Credential struct {
	Username     string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
