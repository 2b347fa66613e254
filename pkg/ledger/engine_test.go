package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testLedger struct {
	store    ledger.Store
	accounts *ledger.AccountManager
	engine   *ledger.Engine
}

func newTestLedger(t *testing.T, store ledger.Store) testLedger {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	ids, err := ledger.NewSnowflakeGenerator(1)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	accounts := ledger.NewAccountManager(ledger.AccountManagerConfig{Logger: logger, Store: store})
	engine := ledger.NewEngine(ledger.EngineConfig{
		Logger:       logger,
		Accounts:     accounts,
		IDs:          ids,
		RetryBackoff: time.Millisecond,
	})
	return testLedger{store: store, accounts: accounts, engine: engine}
}

func (l testLedger) open(t *testing.T, number string, balance ledger.Amount) ledger.Account {
	t.Helper()
	account, err := l.accounts.Create(context.Background(), ledger.NewAccount{
		AccountNumber:  number,
		HolderName:     "Jane Doe",
		InitialBalance: balance,
		Type:           ledger.AccountTypeSavings,
	})
	require.NoError(t, err)
	return account
}

func (l testLedger) balance(t *testing.T, number string) ledger.Amount {
	t.Helper()
	account, err := l.accounts.Get(context.Background(), number)
	require.NoError(t, err)
	return account.Balance
}

func TestDeposit_SequenceSumsExactly(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 0)

	for _, amount := range []ledger.Amount{100, 250, 1} {
		_, err := l.engine.Deposit(context.Background(), "ACC-1", amount)
		require.NoError(t, err)
	}
	assert.Equal(t, ledger.Amount(351), l.balance(t, "ACC-1"))
}

func TestDeposit_ReturnsCreditRecord(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 500)

	tx, err := l.engine.Deposit(context.Background(), "ACC-1", 125)
	require.NoError(t, err)

	assert.Positive(t, tx.ID)
	assert.Equal(t, "ACC-1", tx.AccountNumber)
	assert.Equal(t, ledger.TransactionTypeCredit, tx.Type)
	assert.Equal(t, ledger.Amount(125), tx.Amount)
	assert.Equal(t, ledger.Amount(625), tx.BalanceAfter)
	assert.False(t, tx.Timestamp.IsZero())
}

func TestWithdraw_ExactBalanceLeavesZero(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 1000)

	tx, err := l.engine.Withdraw(context.Background(), "ACC-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, ledger.TransactionTypeDebit, tx.Type)
	assert.Equal(t, ledger.Amount(0), l.balance(t, "ACC-1"))
}

func TestWithdraw_OverBalanceRejected(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 1000)

	_, err := l.engine.Withdraw(context.Background(), "ACC-1", 1001)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, "amount", ledger.FieldOf(err))
	assert.Equal(t, ledger.Amount(1000), l.balance(t, "ACC-1"))

	txs, err := l.accounts.Transactions(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPosting_InvalidInput(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 100)

	tests := []struct {
		name    string
		post    func() error
		wantErr error
		field   string
	}{
		{
			name:    "zero deposit",
			post:    func() error { _, err := l.engine.Deposit(context.Background(), "ACC-1", 0); return err },
			wantErr: ledger.ErrValidation,
			field:   "amount",
		},
		{
			name:    "negative withdrawal",
			post:    func() error { _, err := l.engine.Withdraw(context.Background(), "ACC-1", -5); return err },
			wantErr: ledger.ErrValidation,
			field:   "amount",
		},
		{
			name:    "unknown account",
			post:    func() error { _, err := l.engine.Deposit(context.Background(), "ACC-404", 5); return err },
			wantErr: ledger.ErrAccountNotFound,
			field:   "accountNumber",
		},
		{
			name: "unknown type",
			post: func() error {
				_, err := l.engine.Post(context.Background(), "ACC-1", 5, ledger.TransactionType("REFUND"))
				return err
			},
			wantErr: ledger.ErrValidation,
			field:   "type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.post()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.field, ledger.FieldOf(err))
		})
	}
	assert.Equal(t, ledger.Amount(100), l.balance(t, "ACC-1"))
}

func TestDeposit_OverflowRejected(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", ledger.Amount(1<<62))

	_, err := l.engine.Deposit(context.Background(), "ACC-1", ledger.Amount(1<<62))
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Equal(t, ledger.Amount(1<<62), l.balance(t, "ACC-1"))
}

func TestReconcile_ReplaysLogToStoredBalance(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 1000)
	ctx := context.Background()

	ops := []struct {
		typ    ledger.TransactionType
		amount ledger.Amount
	}{
		{ledger.TransactionTypeCredit, 250},
		{ledger.TransactionTypeDebit, 400},
		{ledger.TransactionTypeCredit, 5},
		{ledger.TransactionTypeDebit, 855},
	}
	for _, op := range ops {
		_, err := l.engine.Post(ctx, "ACC-1", op.amount, op.typ)
		require.NoError(t, err)
	}

	txs, err := l.accounts.Transactions(ctx, "ACC-1")
	require.NoError(t, err)
	require.Len(t, txs, len(ops))
	for i, tx := range txs {
		assert.Equal(t, ops[i].typ, tx.Type)
		assert.Equal(t, ops[i].amount, tx.Amount)
		if i > 0 {
			assert.Greater(t, tx.ID, txs[i-1].ID)
		}
	}

	r, err := l.engine.Reconcile(ctx, "ACC-1")
	require.NoError(t, err)
	assert.True(t, r.Balanced)
	assert.Equal(t, ledger.Amount(0), r.Stored)
	assert.Equal(t, r.Stored, r.Replayed)
	assert.Equal(t, 4, r.Transactions)
	assert.Equal(t, "2.55", r.Credits.StringFixed(2))
	assert.Equal(t, "12.55", r.Debits.StringFixed(2))
}

func TestConcurrentDepositAndWithdraw_Serialize(t *testing.T) {
	for i := 0; i < 50; i++ {
		l := newTestLedger(t, nil)
		l.open(t, "ACC-1", 100)

		var wg sync.WaitGroup
		var depositErr, withdrawErr error
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, depositErr = l.engine.Deposit(context.Background(), "ACC-1", 50)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, withdrawErr = l.engine.Withdraw(context.Background(), "ACC-1", 30)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, depositErr)
		require.NoError(t, withdrawErr)
		assert.Equal(t, ledger.Amount(120), l.balance(t, "ACC-1"))

		txs, err := l.accounts.Transactions(context.Background(), "ACC-1")
		require.NoError(t, err)
		require.Len(t, txs, 2)
		var credits, debits int
		for _, tx := range txs {
			switch tx.Type {
			case ledger.TransactionTypeCredit:
				credits++
				assert.Equal(t, ledger.Amount(50), tx.Amount)
			case ledger.TransactionTypeDebit:
				debits++
				assert.Equal(t, ledger.Amount(30), tx.Amount)
			}
		}
		assert.Equal(t, 1, credits)
		assert.Equal(t, 1, debits)
	}
}

func TestConcurrentDeposits_NoLostUpdates(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 0)

	const workers = 64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.engine.Deposit(context.Background(), "ACC-1", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, ledger.Amount(workers*10), l.balance(t, "ACC-1"))
	r, err := l.engine.Reconcile(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.True(t, r.Balanced)
	assert.Equal(t, workers, r.Transactions)
}

// flakyStore reports the next failures Atomically calls as unavailable. When
// afterCommit is set the unit is committed first, simulating a lost acknowledgement.
type flakyStore struct {
	*memory.Store
	failures    atomic.Int32
	afterCommit bool
	calls       atomic.Int32
}

func (s *flakyStore) Atomically(ctx context.Context, fn func(context.Context, ledger.AccountStore, ledger.TransactionLog) error) error {
	s.calls.Add(1)
	if s.failures.Add(-1) < 0 {
		return s.Store.Atomically(ctx, fn)
	}
	if s.afterCommit {
		if err := s.Store.Atomically(ctx, fn); err != nil {
			return err
		}
	}
	return ledger.StoreUnavailable("atomic unit", errors.New("connection reset"))
}

func (s *flakyStore) failNext(n int32) {
	s.failures.Store(n)
	s.calls.Store(0)
}

func TestDeposit_RetriesUnavailableStore(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore()}
	l := newTestLedger(t, store)
	l.open(t, "ACC-1", 100)
	store.failNext(2)

	tx, err := l.engine.Deposit(context.Background(), "ACC-1", 40)
	require.NoError(t, err)
	assert.Equal(t, ledger.Amount(140), tx.BalanceAfter)
	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, ledger.Amount(140), l.balance(t, "ACC-1"))
}

func TestDeposit_AmbiguousCommitAppliedOnce(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore(), afterCommit: true}
	l := newTestLedger(t, store)
	l.open(t, "ACC-1", 100)
	store.failNext(1)

	tx, err := l.engine.Deposit(context.Background(), "ACC-1", 40)
	require.NoError(t, err)
	assert.Equal(t, ledger.Amount(140), tx.BalanceAfter)
	assert.Equal(t, ledger.Amount(140), l.balance(t, "ACC-1"))

	txs, err := l.accounts.Transactions(context.Background(), "ACC-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)
}

func TestDeposit_GivesUpAfterMaxRetries(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore()}
	l := newTestLedger(t, store)
	l.open(t, "ACC-1", 100)
	store.failNext(100)

	_, err := l.engine.Deposit(context.Background(), "ACC-1", 40)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	assert.Equal(t, int32(4), store.calls.Load())
	assert.Equal(t, ledger.Amount(100), l.balance(t, "ACC-1"))
}

func TestPosting_CancelledContextLeavesNoTrace(t *testing.T) {
	l := newTestLedger(t, nil)
	l.open(t, "ACC-1", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.engine.Deposit(ctx, "ACC-1", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ledger.Amount(100), l.balance(t, "ACC-1"))

	txs, err := l.accounts.Transactions(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

type recordingPublisher struct {
	mu  sync.Mutex
	txs []ledger.Transaction
	err error
}

func (p *recordingPublisher) PublishTransaction(_ context.Context, tx ledger.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, tx)
	return p.err
}

func TestEngine_PublishesCommittedTransactions(t *testing.T) {
	store := memory.NewStore()
	ids, err := ledger.NewSnowflakeGenerator(2)
	require.NoError(t, err)
	publisher := &recordingPublisher{err: errors.New("broker down")}
	accounts := ledger.NewAccountManager(ledger.AccountManagerConfig{Store: store})
	engine := ledger.NewEngine(ledger.EngineConfig{Accounts: accounts, IDs: ids, Publisher: publisher})

	_, err = accounts.Create(context.Background(), ledger.NewAccount{
		AccountNumber: "ACC-1", HolderName: "Ann", InitialBalance: 10, Type: ledger.AccountTypeCurrent,
	})
	require.NoError(t, err)

	tx, err := engine.Withdraw(context.Background(), "ACC-1", 10)
	require.NoError(t, err, "publish failures do not undo a committed posting")
	_, err = engine.Withdraw(context.Background(), "ACC-1", 10)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	require.Len(t, publisher.txs, 1)
	assert.Equal(t, tx, publisher.txs[0])
}
