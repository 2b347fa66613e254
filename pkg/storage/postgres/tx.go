package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/account-ledger/pkg/database"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/models"
)

// txAccounts is the account view of one atomic unit.
type txAccounts struct {
	store *Store
	tx    pgx.Tx
}

// Get locks the account row until the unit ends.
func (a txAccounts) Get(ctx context.Context, accountNumber string) (ledger.Account, error) {
	return a.store.getAccount(ctx, a.tx, accountNumber, true)
}

func (a txAccounts) Insert(ctx context.Context, account ledger.Account) error {
	row, err := a.store.toAccountModel(account)
	if err != nil {
		return err
	}
	if err := a.store.accounts.Create(ctx, a.tx, row); err != nil {
		classified := a.store.classify("insert account", err)
		if errors.Is(classified, database.ErrDuplicate) {
			return ledger.DuplicateAccount(account.AccountNumber)
		}
		return classified
	}
	return nil
}

// Put persists the mutable fields of an account: balance and updated_at.
func (a txAccounts) Put(ctx context.Context, account ledger.Account) error {
	ok, err := a.store.accounts.UpdateBalance(ctx, a.tx, models.Account{
		AccountNumber: account.AccountNumber,
		Balance:       int64(account.Balance),
		UpdatedAt:     account.UpdatedAt,
	})
	if err != nil {
		return a.store.classify("update account", err)
	}
	if !ok {
		return ledger.AccountNotFound(account.AccountNumber)
	}
	return nil
}

func (a txAccounts) Delete(ctx context.Context, accountNumber string) error {
	ok, err := a.store.accounts.Delete(ctx, a.tx, accountNumber)
	if err != nil {
		return a.store.classify("delete account", err)
	}
	if !ok {
		return ledger.AccountNotFound(accountNumber)
	}
	return nil
}

func (a txAccounts) ListAll(ctx context.Context) ([]ledger.Account, error) {
	return a.store.ListAll(ctx)
}

// txLog is the transaction log view of one atomic unit.
type txLog struct {
	store *Store
	tx    pgx.Tx
}

func (l txLog) Append(ctx context.Context, txn ledger.Transaction) error {
	if err := l.store.txs.Create(ctx, l.tx, toTransactionModel(txn)); err != nil {
		classified := l.store.classify("append transaction", err)
		if errors.Is(classified, database.ErrDuplicate) {
			return fmt.Errorf("append transaction %d: id already recorded", txn.ID)
		}
		return classified
	}
	return nil
}

func (l txLog) GetTransaction(ctx context.Context, id int64) (ledger.Transaction, error) {
	row, err := l.store.txs.FindByID(ctx, l.tx, id)
	if err != nil {
		return ledger.Transaction{}, l.store.transactionError(err)
	}
	return fromTransactionModel(row), nil
}

func (l txLog) ListByAccount(ctx context.Context, accountNumber string) ([]ledger.Transaction, error) {
	rows, err := l.store.txs.FindByAccount(ctx, l.tx, accountNumber)
	if err != nil {
		return nil, l.store.classify("list transactions", err)
	}
	return fromTransactionModels(rows), nil
}
