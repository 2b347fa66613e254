package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 50 * time.Millisecond
)

// EventPublisher is notified after a transaction has been committed.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, tx Transaction) error
}

// EngineConfig holds the collaborators of an Engine.
type EngineConfig struct {
	Logger    *zap.Logger
	Accounts  *AccountManager
	IDs       IDGenerator
	Publisher EventPublisher // optional
	// MaxRetries bounds how often an atomic unit that failed with ErrStoreUnavailable is re-run.
	MaxRetries   uint64
	RetryBackoff time.Duration
	Clock        func() time.Time
}

// Engine applies deposits and withdrawals. For one account, reading the balance,
// validating, writing the balance and appending the transaction happen under the
// account lock and inside one atomic unit of the store.
type Engine struct {
	logger       *zap.Logger
	accounts     *AccountManager
	ids          IDGenerator
	publisher    EventPublisher
	maxRetries   uint64
	retryBackoff time.Duration
	now          func() time.Time
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		logger:       cfg.Logger,
		accounts:     cfg.Accounts,
		ids:          cfg.IDs,
		publisher:    cfg.Publisher,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		now:          cfg.Clock,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.maxRetries == 0 {
		e.maxRetries = defaultMaxRetries
	}
	if e.retryBackoff <= 0 {
		e.retryBackoff = defaultRetryBackoff
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Deposit credits amount to the account and returns the CREDIT record.
func (e *Engine) Deposit(ctx context.Context, accountNumber string, amount Amount) (Transaction, error) {
	return e.apply(ctx, accountNumber, amount, TransactionTypeCredit)
}

// Withdraw debits amount from the account and returns the DEBIT record. Withdrawing the
// whole balance is allowed.
func (e *Engine) Withdraw(ctx context.Context, accountNumber string, amount Amount) (Transaction, error) {
	return e.apply(ctx, accountNumber, amount, TransactionTypeDebit)
}

// Post applies a transaction of the given type. It is the entry point for callers that
// carry the type as data, such as queued ledger operations.
func (e *Engine) Post(ctx context.Context, accountNumber string, amount Amount, typ TransactionType) (Transaction, error) {
	if !typ.Valid() {
		return Transaction{}, validationError("type", "transaction type must be CREDIT or DEBIT")
	}
	return e.apply(ctx, accountNumber, amount, typ)
}

func (e *Engine) apply(ctx context.Context, accountNumber string, amount Amount, typ TransactionType) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, validationError("amount", "amount must be positive")
	}
	if accountNumber == "" {
		return Transaction{}, validationError("accountNumber", "account number is required")
	}

	unlock, err := e.accounts.locker.Lock(ctx, accountNumber)
	if err != nil {
		return Transaction{}, fmt.Errorf("lock account %s: %w", accountNumber, err)
	}
	defer unlock()

	// The id is fixed across attempts: an attempt whose commit landed but was reported
	// as failed is recognised by its id and not applied again.
	txID := e.ids.Next()
	var posted Transaction

	operation := func() error {
		err := e.accounts.store.Atomically(ctx, func(ctx context.Context, accounts AccountStore, log TransactionLog) error {
			prior, err := log.GetTransaction(ctx, txID)
			if err == nil {
				posted = prior
				return nil
			}
			if !errors.Is(err, ErrTransactionNotFound) {
				return err
			}

			account, err := e.accounts.fetch(ctx, accounts, accountNumber)
			if err != nil {
				return err
			}
			balance, err := nextBalance(account.Balance, amount, typ)
			if err != nil {
				return err
			}

			now := e.now().UTC().Truncate(time.Microsecond)
			account.Balance = balance
			account.UpdatedAt = now
			if err := accounts.Put(ctx, account); err != nil {
				return err
			}

			tx := Transaction{
				ID:            txID,
				AccountNumber: accountNumber,
				Timestamp:     now,
				Amount:        amount,
				Type:          typ,
				BalanceAfter:  balance,
			}
			if err := log.Append(ctx, tx); err != nil {
				return err
			}
			posted = tx
			return nil
		})
		if err != nil && errors.Is(err, ErrStoreUnavailable) && ctx.Err() == nil {
			e.logger.Warn("ledger_unit_retry",
				zap.String("account_number", accountNumber),
				zap.Int64("transaction_id", txID),
				zap.Error(err))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryBackoff
	b.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, e.maxRetries), ctx)); err != nil {
		e.logger.Info("ledger_posting_rejected",
			zap.String("account_number", accountNumber),
			zap.String("type", string(typ)),
			zap.Stringer("amount", amount),
			zap.Error(err))
		return Transaction{}, err
	}

	e.logger.Info("ledger_transaction_posted",
		zap.String("account_number", accountNumber),
		zap.Int64("transaction_id", posted.ID),
		zap.String("type", string(posted.Type)),
		zap.Stringer("amount", posted.Amount),
		zap.Stringer("balance", posted.BalanceAfter))

	if e.publisher != nil {
		if err := e.publisher.PublishTransaction(ctx, posted); err != nil {
			e.logger.Error("ledger_event_publish_failed",
				zap.Int64("transaction_id", posted.ID),
				zap.Error(err))
		}
	}
	return posted, nil
}

func nextBalance(balance, amount Amount, typ TransactionType) (Amount, error) {
	switch typ {
	case TransactionTypeCredit:
		sum, ok := balance.add(amount)
		if !ok {
			return 0, validationError("amount", "deposit would overflow the account balance")
		}
		return sum, nil
	case TransactionTypeDebit:
		if amount > balance {
			return 0, &Error{
				Kind:    ErrInsufficientFunds,
				Field:   "amount",
				Message: fmt.Sprintf("withdrawal of %s exceeds balance of %s", amount, balance),
			}
		}
		return balance - amount, nil
	default:
		return 0, validationError("type", "transaction type must be CREDIT or DEBIT")
	}
}

// Reconciliation compares an account's stored balance with the replay of its log.
type Reconciliation struct {
	AccountNumber  string
	OpeningBalance Amount
	Credits        decimal.Decimal
	Debits         decimal.Decimal
	Transactions   int
	Replayed       Amount
	Stored         Amount
	Balanced       bool
}

// Reconcile replays the account's transactions from its opening balance.
func (e *Engine) Reconcile(ctx context.Context, accountNumber string) (Reconciliation, error) {
	unlock, err := e.accounts.locker.Lock(ctx, accountNumber)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("lock account %s: %w", accountNumber, err)
	}
	defer unlock()

	var (
		account Account
		txs     []Transaction
	)
	err = e.accounts.store.Atomically(ctx, func(ctx context.Context, accounts AccountStore, log TransactionLog) error {
		var err error
		if account, err = e.accounts.fetch(ctx, accounts, accountNumber); err != nil {
			return err
		}
		txs, err = log.ListByAccount(ctx, accountNumber)
		return err
	})
	if err != nil {
		return Reconciliation{}, err
	}

	r := Reconciliation{
		AccountNumber:  accountNumber,
		OpeningBalance: account.OpeningBalance,
		Credits:        decimal.Zero,
		Debits:         decimal.Zero,
		Transactions:   len(txs),
		Stored:         account.Balance,
	}
	replayed := account.OpeningBalance
	for _, tx := range txs {
		if tx.Type == TransactionTypeCredit {
			r.Credits = r.Credits.Add(tx.Amount.Decimal())
		} else {
			r.Debits = r.Debits.Add(tx.Amount.Decimal())
		}
		replayed += tx.Signed()
	}
	r.Replayed = replayed
	r.Balanced = replayed == account.Balance
	if !r.Balanced {
		e.logger.Error("ledger_reconciliation_mismatch",
			zap.String("account_number", accountNumber),
			zap.Stringer("stored", r.Stored),
			zap.Stringer("replayed", r.Replayed))
	}
	return r, nil
}
