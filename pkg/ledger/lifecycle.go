package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AccountManagerConfig holds the collaborators of an AccountManager.
type AccountManagerConfig struct {
	Logger         *zap.Logger
	Store          Store
	Locker         Locker                 // defaults to an in-process KeyedLocker
	AccountNumbers AccountNumberGenerator // defaults to ULIDAccountNumbers
	Clock          func() time.Time       // defaults to time.Now
}

// AccountManager creates, looks up and removes accounts. It owns the per-account lock
// shared with the Engine, so creation and removal never interleave with a posting on
// the same account number.
type AccountManager struct {
	logger  *zap.Logger
	store   Store
	locker  Locker
	numbers AccountNumberGenerator
	now     func() time.Time
}

func NewAccountManager(cfg AccountManagerConfig) *AccountManager {
	m := &AccountManager{
		logger:  cfg.Logger,
		store:   cfg.Store,
		locker:  cfg.Locker,
		numbers: cfg.AccountNumbers,
		now:     cfg.Clock,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.locker == nil {
		m.locker = NewKeyedLocker()
	}
	if m.numbers == nil {
		m.numbers = NewULIDAccountNumbers()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Create validates req and persists a new account with Balance equal to the initial balance.
func (m *AccountManager) Create(ctx context.Context, req NewAccount) (Account, error) {
	if err := req.validate(); err != nil {
		return Account{}, err
	}

	number := req.AccountNumber
	if number == "" {
		var err error
		if number, err = m.numbers.NewAccountNumber(); err != nil {
			return Account{}, err
		}
	}

	unlock, err := m.locker.Lock(ctx, number)
	if err != nil {
		return Account{}, fmt.Errorf("lock account %s: %w", number, err)
	}
	defer unlock()

	now := m.now().UTC().Truncate(time.Microsecond)
	account := Account{
		AccountNumber:  number,
		HolderName:     strings.TrimSpace(req.HolderName),
		Balance:        req.InitialBalance,
		OpeningBalance: req.InitialBalance,
		Type:           req.Type,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = m.store.Atomically(ctx, func(ctx context.Context, accounts AccountStore, log TransactionLog) error {
		// A removed account's entries stay in the log, so its number is never reissued.
		history, err := log.ListByAccount(ctx, number)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			return DuplicateAccount(number)
		}
		return accounts.Insert(ctx, account)
	})
	if err != nil {
		m.logger.Warn("account_create_failed", zap.String("account_number", number), zap.Error(err))
		return Account{}, err
	}

	m.logger.Info("account_created",
		zap.String("account_number", number),
		zap.String("account_type", string(account.Type)),
		zap.Stringer("opening_balance", account.OpeningBalance))
	return account, nil
}

// Get returns the account or an ErrAccountNotFound error.
func (m *AccountManager) Get(ctx context.Context, accountNumber string) (Account, error) {
	return m.fetch(ctx, m.store, accountNumber)
}

// Remove deletes the account. Its transactions stay in the log and its number stays taken.
func (m *AccountManager) Remove(ctx context.Context, accountNumber string) error {
	unlock, err := m.locker.Lock(ctx, accountNumber)
	if err != nil {
		return fmt.Errorf("lock account %s: %w", accountNumber, err)
	}
	defer unlock()

	err = m.store.Atomically(ctx, func(ctx context.Context, accounts AccountStore, _ TransactionLog) error {
		if _, err := m.fetch(ctx, accounts, accountNumber); err != nil {
			return err
		}
		return accounts.Delete(ctx, accountNumber)
	})
	if err != nil {
		return err
	}
	m.logger.Info("account_removed", zap.String("account_number", accountNumber))
	return nil
}

// List returns all accounts in store order.
func (m *AccountManager) List(ctx context.Context) ([]Account, error) {
	return m.store.ListAll(ctx)
}

// Transactions returns the log entries of an account in id order. Entries of removed
// accounts remain readable; a number with neither an account nor entries is not found.
func (m *AccountManager) Transactions(ctx context.Context, accountNumber string) ([]Transaction, error) {
	txs, err := m.store.ListByAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if len(txs) > 0 {
		return txs, nil
	}
	if _, err := m.fetch(ctx, m.store, accountNumber); err != nil {
		return nil, err
	}
	return txs, nil
}

func (m *AccountManager) fetch(ctx context.Context, accounts AccountStore, accountNumber string) (Account, error) {
	if accountNumber == "" {
		return Account{}, validationError("accountNumber", "account number is required")
	}
	account, err := accounts.Get(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("get account %s: %w", accountNumber, err)
	}
	return account, nil
}
