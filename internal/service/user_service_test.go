package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tiny-bank/internal/auth"
	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
	"tiny-bank/internal/repository/memory"
)

type fakeArchiver struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (a *fakeArchiver) Enqueue(_ context.Context, username string) (*domain.StatementExport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.enqueued = append(a.enqueued, username)
	return &domain.StatementExport{ID: "exp-" + username, Username: username, Status: domain.ExportStatusPending}, nil
}

type userFixture struct {
	users    UserService
	userRepo repository.UserRepository
	ledger   LedgerService
	creds    auth.Provider
	archiver *fakeArchiver
}

func newUserFixture(t *testing.T) userFixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	f := userFixture{
		userRepo: memory.NewUserRepository(),
		creds:    auth.NewCredentialStore(memory.NewCredentialRepository(), bcrypt.MinCost),
		archiver: &fakeArchiver{},
	}
	f.ledger = NewLedgerService(memory.NewAccountRepository(), memory.NewTransactionRepository(), logger)
	f.users = NewUserService(f.userRepo, f.ledger, f.creds, f.archiver, logger)
	return f
}

func TestUserService_CreateUser(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)

	user, err := f.users.CreateUser(ctx, &domain.User{Username: "  alice ", Password: "pass"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.Active)
	assert.Empty(t, user.Password)

	balance, err := f.ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	exists, err := f.users.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, f.creds.Verify(ctx, "alice", "pass"))
}

func TestUserService_CreateUserDuplicateKeepsFirst(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	_, err := f.users.CreateUser(ctx, &domain.User{Username: "alice", Password: "first"})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Deposit(ctx, "alice", dec("9.99")))

	_, err = f.users.CreateUser(ctx, &domain.User{Username: "alice", Password: "second"})
	require.ErrorIs(t, err, ErrUserAlreadyExists)

	require.NoError(t, f.creds.Verify(ctx, "alice", "first"))
	balance, err := f.ledger.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("9.99")))
}

func TestUserService_CreateUserValidation(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)

	_, err := f.users.CreateUser(ctx, &domain.User{Username: "   ", Password: "pass"})
	require.ErrorIs(t, err, ErrInvalidUsername)
	_, err = f.users.CreateUser(ctx, &domain.User{Username: strings.Repeat("a", UsernameMaxLength+1), Password: "pass"})
	require.ErrorIs(t, err, ErrInvalidUsername)
	_, err = f.users.CreateUser(ctx, &domain.User{Username: "bob", Password: "abc"})
	require.ErrorIs(t, err, ErrInvalidPassword)
	_, err = f.users.CreateUser(ctx, nil)
	require.ErrorIs(t, err, ErrInvalidUsername)

	_, err = f.users.CreateUser(ctx, &domain.User{Username: strings.Repeat("a", UsernameMaxLength), Password: "pass"})
	require.NoError(t, err)
}

type failingLedger struct {
	LedgerService
}

func (failingLedger) CreateAccount(context.Context, string) error {
	return errors.New("accounts unavailable")
}

func TestUserService_CreateUserRollsBackWhenAccountFails(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	logger, hook := logtest.NewNullLogger()
	users := NewUserService(f.userRepo, failingLedger{f.ledger}, f.creds, nil, logger)

	_, err := users.CreateUser(ctx, &domain.User{Username: "alice", Password: "pass"})
	require.Error(t, err)

	_, err = f.userRepo.GetByUsername(ctx, "alice")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, f.creds.Verify(ctx, "alice", "pass"), auth.ErrInvalidCredentials)
	assert.Equal(t, "registration rolled back", hook.LastEntry().Message)

	// the name is free again
	_, err = f.users.CreateUser(ctx, &domain.User{Username: "alice", Password: "pass"})
	require.NoError(t, err)
}

func TestUserService_GetUser(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	_, err := f.users.GetUser(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)

	exists, err := f.users.UserExists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserService_DeactivateUser(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	_, err := f.users.CreateUser(ctx, &domain.User{Username: "alice", Password: "pass"})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Deposit(ctx, "alice", dec("3.50")))

	require.NoError(t, f.users.DeactivateUser(ctx, "alice"))

	user, err := f.users.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, user.Active)

	exists, err := f.users.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	account, err := f.ledger.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, account.Active)
	assert.True(t, account.Balance.Equal(dec("3.50")))

	require.ErrorIs(t, f.creds.Verify(ctx, "alice", "pass"), auth.ErrCredentialsDisabled)
	_, err = f.users.Authenticate(ctx, "alice", "pass")
	require.ErrorIs(t, err, ErrUserInactive)

	assert.Equal(t, []string{"alice"}, f.archiver.enqueued)

	// idempotent, and no second archive
	require.NoError(t, f.users.DeactivateUser(ctx, "alice"))
	assert.Len(t, f.archiver.enqueued, 1)

	require.ErrorIs(t, f.users.DeactivateUser(ctx, "ghost"), ErrUserNotFound)
}

func TestUserService_DeactivateSurvivesArchiveFailure(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	f.archiver.err = errors.New("bucket missing")
	_, err := f.users.CreateUser(ctx, &domain.User{Username: "alice", Password: "pass"})
	require.NoError(t, err)

	require.NoError(t, f.users.DeactivateUser(ctx, "alice"))
	exists, err := f.users.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserService_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture(t)
	_, err := f.users.CreateUser(ctx, &domain.User{Username: "alice", Password: "pass"})
	require.NoError(t, err)

	user, err := f.users.Authenticate(ctx, "alice", "pass")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = f.users.Authenticate(ctx, "alice", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.users.Authenticate(ctx, "ghost", "pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.users.Authenticate(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
