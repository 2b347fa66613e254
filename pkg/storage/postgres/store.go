package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/account-ledger/pkg/database"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/models"
	"github.com/nimeshabuddhika/account-ledger/pkg/repositories"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"go.uber.org/zap"
)

// StoreConfig holds the collaborators of a Postgres backed ledger store.
type StoreConfig struct {
	Logger          *zap.Logger
	DB              *database.DB
	AccountRepo     repositories.AccountRepository
	TransactionRepo repositories.TransactionRepository
	EncryptionKey   []byte // AES-256 key for holder names at rest
}

// Store implements ledger.Store on Postgres. An atomic unit is one database transaction;
// account reads inside a unit take a row lock, so postings from several replicas on the
// same account serialize in the database as well.
type Store struct {
	logger   *zap.Logger
	db       *database.DB
	accounts repositories.AccountRepository
	txs      repositories.TransactionRepository
	key      []byte
}

func NewStore(cfg StoreConfig) *Store {
	s := &Store{
		logger:   cfg.Logger,
		db:       cfg.DB,
		accounts: cfg.AccountRepo,
		txs:      cfg.TransactionRepo,
		key:      cfg.EncryptionKey,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.accounts == nil {
		s.accounts = repositories.NewAccountRepository()
	}
	if s.txs == nil {
		s.txs = repositories.NewTransactionRepository()
	}
	return s
}

func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, accounts ledger.AccountStore, log ledger.TransactionLog) error) error {
	var fnErr error
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		fnErr = fn(ctx, txAccounts{store: s, tx: tx}, txLog{store: s, tx: tx})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	// begin or commit failed
	return s.classify("atomic unit", err)
}

func (s *Store) Get(ctx context.Context, accountNumber string) (ledger.Account, error) {
	var (
		account ledger.Account
		readErr error
	)
	err := s.db.WithTransactionOptions(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx pgx.Tx) error {
		account, readErr = s.getAccount(ctx, tx, accountNumber, false)
		return readErr
	})
	if readErr != nil {
		return ledger.Account{}, readErr
	}
	if err != nil {
		return ledger.Account{}, s.classify("get account", err)
	}
	return account, nil
}

func (s *Store) Insert(ctx context.Context, account ledger.Account) error {
	return s.Atomically(ctx, func(ctx context.Context, accounts ledger.AccountStore, _ ledger.TransactionLog) error {
		return accounts.Insert(ctx, account)
	})
}

func (s *Store) Put(ctx context.Context, account ledger.Account) error {
	return s.Atomically(ctx, func(ctx context.Context, accounts ledger.AccountStore, _ ledger.TransactionLog) error {
		return accounts.Put(ctx, account)
	})
}

func (s *Store) Delete(ctx context.Context, accountNumber string) error {
	return s.Atomically(ctx, func(ctx context.Context, accounts ledger.AccountStore, _ ledger.TransactionLog) error {
		return accounts.Delete(ctx, accountNumber)
	})
}

// ListAll returns accounts ordered by creation time, then account number.
func (s *Store) ListAll(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.accounts.FindAll(ctx, s.db)
	if err != nil {
		return nil, s.classify("list accounts", err)
	}
	out := make([]ledger.Account, 0, len(rows))
	for _, row := range rows {
		account, err := s.fromAccountModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	return s.Atomically(ctx, func(ctx context.Context, _ ledger.AccountStore, log ledger.TransactionLog) error {
		return log.Append(ctx, tx)
	})
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (ledger.Transaction, error) {
	row, err := s.txs.FindByIDFromReader(ctx, s.db, id)
	if err != nil {
		return ledger.Transaction{}, s.transactionError(err)
	}
	return fromTransactionModel(row), nil
}

func (s *Store) ListByAccount(ctx context.Context, accountNumber string) ([]ledger.Transaction, error) {
	rows, err := s.txs.FindByAccountFromReader(ctx, s.db, accountNumber)
	if err != nil {
		return nil, s.classify("list transactions", err)
	}
	return fromTransactionModels(rows), nil
}

func (s *Store) getAccount(ctx context.Context, tx pgx.Tx, accountNumber string, forUpdate bool) (ledger.Account, error) {
	row, err := s.accounts.FindByNumber(ctx, tx, accountNumber, forUpdate)
	if err != nil {
		classified := s.classify("get account", err)
		if errors.Is(classified, database.ErrNoRows) {
			return ledger.Account{}, ledger.AccountNotFound(accountNumber)
		}
		return ledger.Account{}, classified
	}
	return s.fromAccountModel(row)
}

// classify turns a database failure into a ledger error. Missing rows are left to the
// caller; context errors pass through so a cancelled unit is never retried.
func (s *Store) classify(op string, err error) error {
	classified := database.ClassifyError(s.logger, op, err)
	switch {
	case errors.Is(classified, context.Canceled), errors.Is(classified, context.DeadlineExceeded):
		return classified
	case errors.Is(classified, database.ErrNoRows), errors.Is(classified, database.ErrDuplicate):
		return classified
	case errors.Is(classified, database.ErrConstraint):
		return fmt.Errorf("%s: %w", op, classified)
	default:
		return ledger.StoreUnavailable(op, err)
	}
}

func (s *Store) transactionError(err error) error {
	classified := s.classify("get transaction", err)
	if errors.Is(classified, database.ErrNoRows) {
		return ledger.ErrTransactionNotFound
	}
	return classified
}

func (s *Store) toAccountModel(a ledger.Account) (models.Account, error) {
	holder, err := utils.EncryptAES([]byte(a.HolderName), s.key)
	if err != nil {
		return models.Account{}, fmt.Errorf("encrypt holder name: %w", err)
	}
	return models.Account{
		AccountNumber:  a.AccountNumber,
		HolderName:     holder,
		Balance:        int64(a.Balance),
		OpeningBalance: int64(a.OpeningBalance),
		AccountType:    string(a.Type),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}, nil
}

func (s *Store) fromAccountModel(m models.Account) (ledger.Account, error) {
	holder, err := utils.DecryptAES(m.HolderName, s.key)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("decrypt holder name of %s: %w", m.AccountNumber, err)
	}
	return ledger.Account{
		AccountNumber:  m.AccountNumber,
		HolderName:     string(holder),
		Balance:        ledger.Amount(m.Balance),
		OpeningBalance: ledger.Amount(m.OpeningBalance),
		Type:           ledger.AccountType(m.AccountType),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

func toTransactionModel(t ledger.Transaction) models.Transaction {
	return models.Transaction{
		ID:            t.ID,
		AccountNumber: t.AccountNumber,
		PostedAt:      t.Timestamp,
		Amount:        int64(t.Amount),
		Type:          string(t.Type),
		BalanceAfter:  int64(t.BalanceAfter),
	}
}

func fromTransactionModel(m models.Transaction) ledger.Transaction {
	return ledger.Transaction{
		ID:            m.ID,
		AccountNumber: m.AccountNumber,
		Timestamp:     m.PostedAt.UTC(),
		Amount:        ledger.Amount(m.Amount),
		Type:          ledger.TransactionType(m.Type),
		BalanceAfter:  ledger.Amount(m.BalanceAfter),
	}
}

func fromTransactionModels(rows []models.Transaction) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromTransactionModel(row))
	}
	return out
}

var _ ledger.Store = (*Store)(nil)
