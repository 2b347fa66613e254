package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/account-ledger/pkg/database"
	"github.com/nimeshabuddhika/account-ledger/pkg/models"
)

// TransactionRepository reads and appends ledger entries. There is no update or delete.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, txn models.Transaction) error
	FindByID(ctx context.Context, tx pgx.Tx, id int64) (models.Transaction, error)
	FindByAccount(ctx context.Context, tx pgx.Tx, accountNumber string) ([]models.Transaction, error)
	// FindByAccountFromReader is FindByAccount outside a transaction, routed to a replica.
	FindByAccountFromReader(ctx context.Context, db *database.DB, accountNumber string) ([]models.Transaction, error)
	FindByIDFromReader(ctx context.Context, db *database.DB, id int64) (models.Transaction, error)
}

type TransactionRepositoryImpl struct {
}

func NewTransactionRepository() TransactionRepository {
	return &TransactionRepositoryImpl{}
}

const selectTransactions = `SELECT id, account_number, posted_at, amount, type, balance_after FROM transactions`

func (t TransactionRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, txn models.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, account_number, posted_at, amount, type, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		txn.ID,
		txn.AccountNumber,
		txn.PostedAt,
		txn.Amount,
		txn.Type,
		txn.BalanceAfter,
	)
	return err
}

func (t TransactionRepositoryImpl) FindByID(ctx context.Context, tx pgx.Tx, id int64) (models.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, selectTransactions+` WHERE id = $1`, id))
}

func (t TransactionRepositoryImpl) FindByIDFromReader(ctx context.Context, db *database.DB, id int64) (models.Transaction, error) {
	return scanTransaction(db.QueryRow(ctx, selectTransactions+` WHERE id = $1`, id))
}

func (t TransactionRepositoryImpl) FindByAccount(ctx context.Context, tx pgx.Tx, accountNumber string) ([]models.Transaction, error) {
	rows, err := tx.Query(ctx, selectTransactions+` WHERE account_number = $1 ORDER BY id`, accountNumber)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (t TransactionRepositoryImpl) FindByAccountFromReader(ctx context.Context, db *database.DB, accountNumber string) ([]models.Transaction, error) {
	rows, err := db.Query(ctx, selectTransactions+` WHERE account_number = $1 ORDER BY id`, accountNumber)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var txn models.Transaction
	err := row.Scan(&txn.ID, &txn.AccountNumber, &txn.PostedAt, &txn.Amount, &txn.Type, &txn.BalanceAfter)
	return txn, err
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Transaction, error) {
		return scanTransaction(row)
	})
}
