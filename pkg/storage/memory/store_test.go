package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(number string, created time.Time) ledger.Account {
	return ledger.Account{
		AccountNumber: number,
		HolderName:    "Jane",
		Balance:       100,
		Type:          ledger.AccountTypeSavings,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestAtomically_FailedUnitLeavesNoWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, account("ACC-1", time.Now())))

	boom := errors.New("boom")
	err := s.Atomically(ctx, func(ctx context.Context, accounts ledger.AccountStore, log ledger.TransactionLog) error {
		a, err := accounts.Get(ctx, "ACC-1")
		require.NoError(t, err)
		a.Balance = 0
		require.NoError(t, accounts.Put(ctx, a))
		require.NoError(t, log.Append(ctx, ledger.Transaction{ID: 1, AccountNumber: "ACC-1", Amount: 100, Type: ledger.TransactionTypeDebit}))

		staged, err := accounts.Get(ctx, "ACC-1")
		require.NoError(t, err)
		assert.Equal(t, ledger.Amount(0), staged.Balance)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, err := s.Get(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Amount(100), a.Balance)
	_, err = s.GetTransaction(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestAtomically_CancelledBeforeCommit(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.Atomically(ctx, func(ctx context.Context, accounts ledger.AccountStore, _ ledger.TransactionLog) error {
		require.NoError(t, accounts.Insert(ctx, account("ACC-1", time.Now())))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Get(context.Background(), "ACC-1")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestInsert_Duplicate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, account("ACC-1", time.Now())))

	err := s.Insert(ctx, account("ACC-1", time.Now()))
	assert.ErrorIs(t, err, ledger.ErrDuplicateAccount)
}

func TestPutAndDelete_RequireExistingAccount(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, account("ACC-1", time.Now())), ledger.ErrAccountNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "ACC-1"), ledger.ErrAccountNotFound)

	require.NoError(t, s.Insert(ctx, account("ACC-1", time.Now())))
	require.NoError(t, s.Delete(ctx, "ACC-1"))
	_, err := s.Get(ctx, "ACC-1")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestListAll_OrderedByCreation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, account("ACC-B", base.Add(time.Minute))))
	require.NoError(t, s.Insert(ctx, account("ACC-C", base)))
	require.NoError(t, s.Insert(ctx, account("ACC-A", base)))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ACC-A", all[0].AccountNumber)
	assert.Equal(t, "ACC-C", all[1].AccountNumber)
	assert.Equal(t, "ACC-B", all[2].AccountNumber)
}

func TestTransactionLog_AppendOnly(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tx := ledger.Transaction{ID: 42, AccountNumber: "ACC-1", Amount: 5, Type: ledger.TransactionTypeCredit}

	require.NoError(t, s.Append(ctx, tx))
	assert.Error(t, s.Append(ctx, tx))
	assert.Error(t, s.Append(ctx, ledger.Transaction{ID: 43, AccountNumber: "ACC-1", Amount: 0}))

	require.NoError(t, s.Append(ctx, ledger.Transaction{ID: 7, AccountNumber: "ACC-1", Amount: 1, Type: ledger.TransactionTypeDebit}))
	txs, err := s.ListByAccount(ctx, "ACC-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(7), txs[0].ID)
	assert.Equal(t, int64(42), txs[1].ID)
}
