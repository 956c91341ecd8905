package service

import "errors"

var (
	// ErrUserNotFound is returned for operations on an unknown (or, where noted, inactive) username.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountNotFound is returned when no account is paired with the username.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUserAlreadyExists is returned when attempting to register with an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrAccountAlreadyExists is returned when a second account is created for a username.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrInvalidAmount is returned for non-positive amounts or amounts with more than two fractional digits.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSameAccount is returned when sender and receiver of a transfer coincide.
	ErrSameAccount = errors.New("cannot transfer to the same account")
	// ErrUserInactive is returned when a deactivated user tries to log in.
	ErrUserInactive = errors.New("user is deactivated")
	// ErrInvalidUsername and ErrInvalidPassword report registration input problems.
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
