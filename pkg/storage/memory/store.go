package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
)

// Store is an in-memory ledger.Store. Writes made inside Atomically are staged and
// applied together under the store mutex, so readers never observe half a unit.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]ledger.Account
	txs       map[int64]ledger.Transaction
	byAccount map[string][]int64
}

func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]ledger.Account),
		txs:       make(map[int64]ledger.Transaction),
		byAccount: make(map[string][]int64),
	}
}

func (s *Store) Get(ctx context.Context, accountNumber string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountNumber]
	if !ok {
		return ledger.Account{}, ledger.AccountNotFound(accountNumber)
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
	s.mu.RLock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AccountNumber < out[j].AccountNumber
	})
	return out, nil
}

func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	return s.Atomically(ctx, func(ctx context.Context, _ ledger.AccountStore, log ledger.TransactionLog) error {
		return log.Append(ctx, tx)
	})
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *Store) ListByAccount(ctx context.Context, accountNumber string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listByAccountLocked(accountNumber), nil
}

func (s *Store) listByAccountLocked(accountNumber string) []ledger.Transaction {
	ids := s.byAccount[accountNumber]
	out := make([]ledger.Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.txs[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Atomically runs fn against a staging view of the store and applies the staged writes
// only if fn succeeds and ctx is still live at commit time.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, accounts ledger.AccountStore, log ledger.TransactionLog) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u := &unit{store: s, changes: make(map[string]change), appended: make(map[int64]ledger.Transaction)}
	if err := fn(ctx, unitAccounts{u}, unitLog{u}); err != nil {
		return err
	}
	return u.commit(ctx)
}

type change struct {
	account  ledger.Account
	inserted bool
	deleted  bool
}

type unit struct {
	store    *Store
	changes  map[string]change
	appended map[int64]ledger.Transaction
	order    []int64
}

func (u *unit) lookup(accountNumber string) (ledger.Account, bool) {
	if c, ok := u.changes[accountNumber]; ok {
		return c.account, !c.deleted
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	a, ok := u.store.accounts[accountNumber]
	return a, ok
}

func (u *unit) commit(ctx context.Context) error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	// Re-check constraints that a concurrently committed unit may have broken.
	for number, c := range u.changes {
		_, exists := s.accounts[number]
		if c.inserted && !c.deleted && exists {
			return ledger.DuplicateAccount(number)
		}
	}
	for _, id := range u.order {
		if _, exists := s.txs[id]; exists {
			return fmt.Errorf("append transaction %d: id already recorded", id)
		}
	}

	for number, c := range u.changes {
		if c.deleted {
			delete(s.accounts, number)
			continue
		}
		s.accounts[number] = c.account
	}
	for _, id := range u.order {
		tx := u.appended[id]
		s.txs[id] = tx
		s.byAccount[tx.AccountNumber] = append(s.byAccount[tx.AccountNumber], id)
	}
	return nil
}

type unitAccounts struct{ u *unit }

func (a unitAccounts) Get(_ context.Context, accountNumber string) (ledger.Account, error) {
	account, ok := a.u.lookup(accountNumber)
	if !ok {
		return ledger.Account{}, ledger.AccountNotFound(accountNumber)
	}
	return account, nil
}

func (a unitAccounts) Insert(_ context.Context, account ledger.Account) error {
	if _, ok := a.u.lookup(account.AccountNumber); ok {
		return ledger.DuplicateAccount(account.AccountNumber)
	}
	a.u.changes[account.AccountNumber] = change{account: account, inserted: true}
	return nil
}

func (a unitAccounts) Put(_ context.Context, account ledger.Account) error {
	if _, ok := a.u.lookup(account.AccountNumber); !ok {
		return ledger.AccountNotFound(account.AccountNumber)
	}
	c := a.u.changes[account.AccountNumber]
	c.account = account
	a.u.changes[account.AccountNumber] = c
	return nil
}

func (a unitAccounts) Delete(_ context.Context, accountNumber string) error {
	account, ok := a.u.lookup(accountNumber)
	if !ok {
		return ledger.AccountNotFound(accountNumber)
	}
	c := a.u.changes[accountNumber]
	c.account = account
	c.deleted = true
	a.u.changes[accountNumber] = c
	return nil
}

func (a unitAccounts) ListAll(ctx context.Context) ([]ledger.Account, error) {
	all, err := a.u.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Account, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, acc := range all {
		seen[acc.AccountNumber] = true
		if c, ok := a.u.changes[acc.AccountNumber]; ok {
			if !c.deleted {
				out = append(out, c.account)
			}
			continue
		}
		out = append(out, acc)
	}
	for number, c := range a.u.changes {
		if !seen[number] && !c.deleted {
			out = append(out, c.account)
		}
	}
	return out, nil
}

type unitLog struct{ u *unit }

func (l unitLog) Append(_ context.Context, tx ledger.Transaction) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("append transaction %d: amount must be positive", tx.ID)
	}
	if _, ok := l.u.appended[tx.ID]; ok {
		return fmt.Errorf("append transaction %d: id already recorded", tx.ID)
	}
	if _, err := l.u.store.GetTransaction(context.Background(), tx.ID); err == nil {
		return fmt.Errorf("append transaction %d: id already recorded", tx.ID)
	}
	l.u.appended[tx.ID] = tx
	l.u.order = append(l.u.order, tx.ID)
	return nil
}

func (l unitLog) GetTransaction(ctx context.Context, id int64) (ledger.Transaction, error) {
	if tx, ok := l.u.appended[id]; ok {
		return tx, nil
	}
	return l.u.store.GetTransaction(ctx, id)
}

func (l unitLog) ListByAccount(_ context.Context, accountNumber string) ([]ledger.Transaction, error) {
	l.u.store.mu.RLock()
	out := l.u.store.listByAccountLocked(accountNumber)
	l.u.store.mu.RUnlock()
	for _, id := range l.u.order {
		if tx := l.u.appended[id]; tx.AccountNumber == accountNumber {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ ledger.Store = (*Store)(nil)
