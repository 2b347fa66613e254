package ledger

import "context"

// AccountStore persists accounts keyed by account number.
type AccountStore interface {
	// Get returns ErrAccountNotFound when the key is absent.
	Get(ctx context.Context, accountNumber string) (Account, error)
	// Insert returns ErrDuplicateAccount when the key is already present.
	Insert(ctx context.Context, account Account) error
	// Put overwrites an existing account.
	Put(ctx context.Context, account Account) error
	Delete(ctx context.Context, accountNumber string) error
	ListAll(ctx context.Context) ([]Account, error)
}

// TransactionLog is the append-only record of applied mutations.
type TransactionLog interface {
	Append(ctx context.Context, tx Transaction) error
	// GetTransaction returns ErrTransactionNotFound when id was never appended.
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	// ListByAccount returns the account's transactions in id order.
	ListByAccount(ctx context.Context, accountNumber string) ([]Transaction, error)
}

// Store is the persistence collaborator of the ledger.
type Store interface {
	AccountStore
	TransactionLog

	// Atomically runs fn against stores whose writes take effect together when fn
	// returns nil, or not at all. A context cancelled before commit aborts the unit.
	Atomically(ctx context.Context, fn func(ctx context.Context, accounts AccountStore, log TransactionLog) error) error
}
