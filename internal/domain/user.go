package domain

import "time"

// User represents a registered bank customer.
//
// Password is only populated on the way in (registration); stores never
// persist it and services return users with it cleared.
type User struct {
	Username  string
	Password  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
