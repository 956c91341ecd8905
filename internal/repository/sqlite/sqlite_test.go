package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUserRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	require.NoError(t, repo.Create(ctx, &domain.User{Username: "alice", Active: true}))
	err := repo.Create(ctx, &domain.User{Username: "alice", Active: true})
	require.ErrorIs(t, err, repository.ErrAlreadyExists)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, got.Active)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, repo.SetActive(ctx, "alice", false))
	got, err = repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = repo.GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, repo.SetActive(ctx, "bob", false), repository.ErrNotFound)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	require.NoError(t, repo.Delete(ctx, "alice"))
	require.ErrorIs(t, repo.Delete(ctx, "alice"), repository.ErrNotFound)
}

func TestAccountRepository_KeepsExactDecimals(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	require.NoError(t, repo.Create(ctx, &domain.Account{Username: "alice", Balance: decimal.Zero, Active: true}))
	require.ErrorIs(t, repo.Create(ctx, &domain.Account{Username: "alice", Balance: decimal.Zero}), repository.ErrAlreadyExists)

	acc, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	acc.Balance = decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	require.NoError(t, repo.Put(ctx, acc))

	acc, err = repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("0.3")), "got %s", acc.Balance)

	require.ErrorIs(t, repo.Put(ctx, &domain.Account{Username: "ghost", Balance: decimal.Zero}), repository.ErrNotFound)

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func TestTransactionRepository_PreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	empty, err := repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	entries := []domain.Transaction{
		{ID: "t-1", Username: "alice", Amount: decimal.RequireFromString("100.00"), Type: domain.TransactionTypeDeposit},
		{ID: "t-2", Username: "alice", Amount: decimal.RequireFromString("30.00"), Type: domain.TransactionTypeWithdraw, Counterparty: "bob"},
		{ID: "t-3", Username: "bob", Amount: decimal.RequireFromString("30.00"), Type: domain.TransactionTypeDeposit, Counterparty: "alice"},
	}
	for i := range entries {
		require.NoError(t, repo.Append(ctx, &entries[i]))
	}
	require.ErrorIs(t, repo.Append(ctx, &entries[0]), repository.ErrAlreadyExists)

	got, err := repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t-1", got[0].ID)
	assert.Equal(t, domain.TransactionTypeWithdraw, got[1].Type)
	assert.Equal(t, "bob", got[1].Counterparty)
	assert.Equal(t, "30.00", got[1].Amount.StringFixed(2))
}

func TestCredentialRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(openTestDB(t))
	require.NoError(t, repo.Init(ctx))

	require.NoError(t, repo.Create(ctx, &domain.Credential{Username: "alice", PasswordHash: "hash"}))
	require.ErrorIs(t, repo.Create(ctx, &domain.Credential{Username: "alice", PasswordHash: "x"}), repository.ErrAlreadyExists)
	require.NoError(t, repo.SetDisabled(ctx, "alice", true))

	cred, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash", cred.PasswordHash)
	assert.True(t, cred.Disabled)

	require.NoError(t, repo.Delete(ctx, "alice"))
	_, err = repo.Get(ctx, "alice")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccountRepository_WrapsDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE accounts`).WillReturnError(errors.New("disk I/O error"))

	repo := NewAccountRepository(db)
	err = repo.Put(context.Background(), &domain.Account{Username: "alice", Balance: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update account")
	assert.NotErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_RejectsCorruptBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"username", "balance", "active", "created_at", "updated_at"}).
		AddRow("alice", "not-a-number", true, time.Now(), time.Now())
	mock.ExpectQuery(`SELECT username, balance`).WithArgs("alice").WillReturnRows(rows)

	_, err = NewAccountRepository(db).Get(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse balance")
}

func TestUserRepository_MapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.username"))

	err = NewUserRepository(db).Create(context.Background(), &domain.User{Username: "alice"})
	require.ErrorIs(t, err, repository.ErrAlreadyExists)
}
