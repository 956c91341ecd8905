package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"tiny-bank/internal/auth"
	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

const (
	UsernameMaxLength = 256
	PasswordMinLength = 4
)

// StatementArchiver archives a user's statement in the background.
type StatementArchiver interface {
	Enqueue(ctx context.Context, username string) (*domain.StatementExport, error)
}

// UserService describes user lifecycle operations.
type UserService interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
	UserExists(ctx context.Context, username string) (bool, error)
	DeactivateUser(ctx context.Context, username string) error
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

type userService struct {
	users       repository.UserRepository
	ledger      LedgerService
	credentials auth.Provider
	archiver    StatementArchiver
	logger      *logrus.Logger
}

// NewUserService wires registration and deactivation. archiver may be nil,
// in which case deactivated users are not archived.
func NewUserService(users repository.UserRepository, ledger LedgerService, credentials auth.Provider, archiver StatementArchiver, logger *logrus.Logger) UserService {
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		users:       users,
		ledger:      ledger,
		credentials: credentials,
		archiver:    archiver,
		logger:      logger,
	}
}

// CreateUser persists the user, provisions its credentials and opens a
// zero-balance account, in that order. If a later step fails the earlier ones
// are undone, so a user never exists without its account.
func (s *userService) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidUsername)
	}
	username := strings.TrimSpace(user.Username)
	password := user.Password

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidUsername)
	}
	if utf8.RuneCountInString(username) > UsernameMaxLength {
		return nil, fmt.Errorf("%w: username must be at most %d characters", ErrInvalidUsername, UsernameMaxLength)
	}
	if utf8.RuneCountInString(password) < PasswordMinLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidPassword, PasswordMinLength)
	}

	logger := s.logger.WithField("username", username)

	created := &domain.User{
		Username: username,
		Active:   true,
	}
	if err := s.users.Create(ctx, created); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.credentials.Provision(ctx, username, password); err != nil {
		s.rollbackUser(ctx, logger, username, false)
		return nil, fmt.Errorf("provision credentials: %w", err)
	}

	if err := s.ledger.CreateAccount(ctx, username); err != nil {
		s.rollbackUser(ctx, logger, username, true)
		return nil, fmt.Errorf("create account: %w", err)
	}

	logger.Info("user registered")
	return sanitizeUser(created), nil
}

func (s *userService) rollbackUser(ctx context.Context, logger *logrus.Entry, username string, revokeCredentials bool) {
	if revokeCredentials {
		if err := s.credentials.Revoke(ctx, username); err != nil {
			logger.Errorf("rollback credentials: %v", err)
		}
	}
	if err := s.users.Delete(ctx, username); err != nil {
		logger.Errorf("rollback user record: %v", err)
		return
	}
	logger.Warn("registration rolled back")
}

func (s *userService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

// UserExists reports whether the username is registered and still active.
func (s *userService) UserExists(ctx context.Context, username string) (bool, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Active, nil
}

// DeactivateUser marks the user inactive, deactivates the account and
// disables the credentials. Every step is idempotent, so a failed call can be
// retried. Deactivation is terminal.
func (s *userService) DeactivateUser(ctx context.Context, username string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return err
	}
	wasActive := user.Active
	logger := s.logger.WithField("username", username)

	if err := s.users.SetActive(ctx, username, false); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if err := s.ledger.Deactivate(ctx, username); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if err := s.credentials.Disable(ctx, username); err != nil {
		return fmt.Errorf("disable credentials: %w", err)
	}

	if wasActive && s.archiver != nil {
		if export, err := s.archiver.Enqueue(ctx, username); err != nil {
			logger.Warnf("archive statement: %v", err)
		} else {
			logger.WithField("export_id", export.ID).Info("statement archive scheduled")
		}
	}

	logger.Info("user deactivated")
	return nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.credentials.Verify(ctx, username, password); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return nil, ErrInvalidCredentials
		case errors.Is(err, auth.ErrCredentialsDisabled):
			return nil, ErrUserInactive
		}
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	return sanitizeUser(user), nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		Username:  user.Username,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
