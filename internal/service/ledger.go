package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

// LedgerService enforces the balance invariants of user accounts and records
// every balance change in the owner's transaction log.
//
// Each username is a serialization domain: mutations of one account never
// interleave, while different accounts proceed in parallel.
type LedgerService interface {
	CreateAccount(ctx context.Context, username string) error
	GetAccount(ctx context.Context, username string) (*domain.Account, error)
	GetBalance(ctx context.Context, username string) (decimal.Decimal, error)
	Deposit(ctx context.Context, username string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
	Deactivate(ctx context.Context, username string) error
	GetTransactions(ctx context.Context, username string) ([]domain.Transaction, error)
}

type ledgerService struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	locks        *accountLocks
	logger       *logrus.Logger
	now          func() time.Time
}

func NewLedgerService(accounts repository.AccountRepository, transactions repository.TransactionRepository, logger *logrus.Logger) LedgerService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ledgerService{
		accounts:     accounts,
		transactions: transactions,
		locks:        newAccountLocks(),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *ledgerService) CreateAccount(ctx context.Context, username string) error {
	unlock := s.locks.lock(username)
	defer unlock()

	err := s.accounts.Create(ctx, &domain.Account{
		Username: username,
		Balance:  decimal.Zero,
		Active:   true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, username)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *ledgerService) GetAccount(ctx context.Context, username string) (*domain.Account, error) {
	return s.loadAccount(ctx, username)
}

func (s *ledgerService) GetBalance(ctx context.Context, username string) (decimal.Decimal, error) {
	account, err := s.loadAccount(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *ledgerService) Deposit(ctx context.Context, username string, amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	unlock := s.locks.lock(username)
	defer unlock()

	account, err := s.loadAccount(ctx, username)
	if err != nil {
		return err
	}
	return s.apply(ctx, account, account.Balance.Add(amount), s.newTransaction(username, amount, domain.TransactionTypeDeposit, ""))
}

// Withdraw takes at most the available balance and returns what was actually
// taken. Withdrawing from an empty account returns zero and logs nothing.
func (s *ledgerService) Withdraw(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	unlock := s.locks.lock(username)
	defer unlock()

	account, err := s.loadAccount(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}
	actual, remaining := clamp(account.Balance, amount)
	if actual.IsZero() {
		return decimal.Zero, nil
	}
	if err := s.apply(ctx, account, remaining, s.newTransaction(username, actual, domain.TransactionTypeWithdraw, "")); err != nil {
		return decimal.Zero, err
	}
	return actual, nil
}

// Transfer moves up to amount from one account to another with the same
// clamping rule as Withdraw. Both accounts stay locked for the whole
// operation; a failed credit restores the sender's balance.
func (s *ledgerService) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return decimal.Zero, ErrSameAccount
	}

	unlock := s.locks.lock(from, to)
	defer unlock()

	receiver, err := s.loadAccount(ctx, to)
	if err != nil {
		return decimal.Zero, err
	}
	sender, err := s.loadAccount(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}

	actual, remaining := clamp(sender.Balance, amount)
	if actual.IsZero() {
		return decimal.Zero, nil
	}

	logger := s.logger.WithFields(logrus.Fields{"from": from, "to": to, "amount": actual.String()})
	senderBefore := sender.Balance
	receiverBefore := receiver.Balance

	sender.Balance = remaining
	if err := s.accounts.Put(ctx, sender); err != nil {
		return decimal.Zero, fmt.Errorf("debit %s: %w", from, err)
	}

	receiver.Balance = receiverBefore.Add(actual)
	if err := s.accounts.Put(ctx, receiver); err != nil {
		s.restore(ctx, logger, sender, senderBefore)
		return decimal.Zero, fmt.Errorf("credit %s: %w", to, err)
	}

	withdrawal := s.newTransaction(from, actual, domain.TransactionTypeWithdraw, to)
	deposit := s.newTransaction(to, actual, domain.TransactionTypeDeposit, from)
	if err := s.transactions.Append(ctx, withdrawal); err != nil {
		s.restore(ctx, logger, sender, senderBefore)
		s.restore(ctx, logger, receiver, receiverBefore)
		return decimal.Zero, fmt.Errorf("record withdrawal: %w", err)
	}
	if err := s.transactions.Append(ctx, deposit); err != nil {
		// the withdrawal entry is already in the sender's log and cannot be removed
		logger.WithField("transaction_id", withdrawal.ID).Error("transfer deposit entry lost, sender log keeps an unmatched withdrawal")
		s.restore(ctx, logger, sender, senderBefore)
		s.restore(ctx, logger, receiver, receiverBefore)
		return decimal.Zero, fmt.Errorf("record deposit: %w", err)
	}

	logger.Debug("transfer applied")
	return actual, nil
}

// Deactivate flags the account inactive. The balance is kept.
func (s *ledgerService) Deactivate(ctx context.Context, username string) error {
	unlock := s.locks.lock(username)
	defer unlock()

	account, err := s.loadAccount(ctx, username)
	if err != nil {
		return err
	}
	if !account.Active {
		return nil
	}
	account.Active = false
	if err := s.accounts.Put(ctx, account); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	s.logger.WithField("username", username).Info("account deactivated")
	return nil
}

// GetTransactions returns the log in chronological order; unknown users yield an empty list.
func (s *ledgerService) GetTransactions(ctx context.Context, username string) ([]domain.Transaction, error) {
	txs, err := s.transactions.ListByUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

func (s *ledgerService) loadAccount(ctx context.Context, username string) (*domain.Account, error) {
	account, err := s.accounts.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// apply stores the new balance and appends tx; if the append fails the old
// balance is written back so balance and log never disagree.
func (s *ledgerService) apply(ctx context.Context, account *domain.Account, balance decimal.Decimal, tx *domain.Transaction) error {
	logger := s.logger.WithFields(logrus.Fields{
		"username": account.Username,
		"type":     tx.Type,
		"amount":   tx.Amount.String(),
	})
	before := account.Balance

	account.Balance = balance
	if err := s.accounts.Put(ctx, account); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if err := s.transactions.Append(ctx, tx); err != nil {
		s.restore(ctx, logger, account, before)
		return fmt.Errorf("record transaction: %w", err)
	}
	logger.WithField("balance", balance.String()).Debug("balance updated")
	return nil
}

func (s *ledgerService) restore(ctx context.Context, logger *logrus.Entry, account *domain.Account, balance decimal.Decimal) {
	account.Balance = balance
	if err := s.accounts.Put(ctx, account); err != nil {
		logger.WithField("username", account.Username).Errorf("restore balance to %s: %v", balance, err)
		return
	}
	logger.WithField("username", account.Username).Warn("balance restored after failed operation")
}

func (s *ledgerService) newTransaction(username string, amount decimal.Decimal, typ domain.TransactionType, counterparty string) *domain.Transaction {
	return &domain.Transaction{
		ID:           uuid.NewString(),
		Username:     username,
		Amount:       amount,
		Type:         typ,
		Counterparty: counterparty,
		CreatedAt:    s.now(),
	}
}

// clamp returns the amount that can actually be taken from balance and what remains.
func clamp(balance, requested decimal.Decimal) (actual, remaining decimal.Decimal) {
	if balance.LessThanOrEqual(requested) {
		return balance, decimal.Zero
	}
	return requested, balance.Sub(requested)
}

var _ LedgerService = (*ledgerService)(nil)
