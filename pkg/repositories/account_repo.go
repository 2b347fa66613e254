package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/account-ledger/pkg/database"
	"github.com/nimeshabuddhika/account-ledger/pkg/models"
)

// AccountRepository defines the interface for account repository.
type AccountRepository interface {
	// Create inserts a new account; a taken account number fails with a unique violation.
	Create(ctx context.Context, tx pgx.Tx, account models.Account) error
	// FindByNumber reads an account, locking its row for the rest of tx when forUpdate is set.
	FindByNumber(ctx context.Context, tx pgx.Tx, accountNumber string, forUpdate bool) (models.Account, error)
	// UpdateBalance writes balance and updated_at, reporting false when no row matched.
	UpdateBalance(ctx context.Context, tx pgx.Tx, account models.Account) (bool, error)
	Delete(ctx context.Context, tx pgx.Tx, accountNumber string) (bool, error)
	FindAll(ctx context.Context, db *database.DB) ([]models.Account, error)
}

type AccountRepositoryImpl struct {
}

func NewAccountRepository() AccountRepository {
	return &AccountRepositoryImpl{}
}

func (a AccountRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, account models.Account) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (account_number, holder_name, balance, opening_balance, account_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.AccountNumber,
		account.HolderName,
		account.Balance,
		account.OpeningBalance,
		account.AccountType,
		account.CreatedAt,
		account.UpdatedAt,
	)
	return err
}

func (a AccountRepositoryImpl) FindByNumber(ctx context.Context, tx pgx.Tx, accountNumber string, forUpdate bool) (models.Account, error) {
	if accountNumber == "" {
		return models.Account{}, errors.New("account number cannot be empty")
	}
	query := `SELECT account_number, holder_name, balance, opening_balance, account_type, created_at, updated_at
		FROM accounts WHERE account_number = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var account models.Account
	err := tx.QueryRow(ctx, query, accountNumber).Scan(
		&account.AccountNumber,
		&account.HolderName,
		&account.Balance,
		&account.OpeningBalance,
		&account.AccountType,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	return account, err
}

func (a AccountRepositoryImpl) UpdateBalance(ctx context.Context, tx pgx.Tx, account models.Account) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = $2 WHERE account_number = $3`,
		account.Balance, account.UpdatedAt, account.AccountNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (a AccountRepositoryImpl) Delete(ctx context.Context, tx pgx.Tx, accountNumber string) (bool, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE account_number = $1`, accountNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindAll lists accounts in creation order from a reader.
func (a AccountRepositoryImpl) FindAll(ctx context.Context, db *database.DB) ([]models.Account, error) {
	rows, err := db.Query(ctx, `SELECT account_number, holder_name, balance, opening_balance, account_type, created_at, updated_at
		FROM accounts ORDER BY created_at, account_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		if err = rows.Scan(
			&account.AccountNumber,
			&account.HolderName,
			&account.Balance,
			&account.OpeningBalance,
			&account.AccountType,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
