package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type seedOptions struct {
	Accounts           int
	PostingsPerAccount int
	MinBalance         ledger.Amount
	MaxBalance         ledger.Amount
	MaxPosting         ledger.Amount
	Workers            int
	PostingsPerSecond  int // 0 disables throttling
}

type seedStats struct {
	Accounts  int64
	Postings  int64
	Rejected  int64 // withdrawals refused for insufficient funds
	Failures  int64
	Unbalance int64 // accounts whose log does not replay to the stored balance
}

// seed creates accounts with random opening balances, then runs random deposits and
// withdrawals against them through a worker pool.
func seed(ctx context.Context, logger *zap.Logger, accounts *ledger.AccountManager, engine *ledger.Engine, opts seedOptions, rng *rand.Rand) (seedStats, error) {
	var stats seedStats
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxBalance < opts.MinBalance {
		opts.MinBalance, opts.MaxBalance = opts.MaxBalance, opts.MinBalance
	}
	if opts.MaxPosting < 1 {
		opts.MaxPosting = 1
	}

	numbers := make([]string, 0, opts.Accounts)
	for i := 1; i <= opts.Accounts; i++ {
		balance := opts.MinBalance + ledger.Amount(rng.Int63n(int64(opts.MaxBalance-opts.MinBalance)+1))
		typ := ledger.AccountTypeSavings
		if rng.Intn(2) == 0 {
			typ = ledger.AccountTypeCurrent
		}
		account, err := accounts.Create(ctx, ledger.NewAccount{
			HolderName:     fmt.Sprintf("Seed Holder %d", i),
			InitialBalance: balance,
			Type:           typ,
		})
		if err != nil {
			return stats, fmt.Errorf("create account %d: %w", i, err)
		}
		numbers = append(numbers, account.AccountNumber)
		stats.Accounts++
	}

	type job struct {
		accountNumber string
		amount        ledger.Amount
		typ           ledger.TransactionType
	}
	jobs := make(chan job)

	var limiter *rate.Limiter
	if opts.PostingsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.PostingsPerSecond), opts.PostingsPerSecond)
	}

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return
					}
				}
				_, err := engine.Post(ctx, j.accountNumber, j.amount, j.typ)
				switch {
				case err == nil:
					atomic.AddInt64(&stats.Postings, 1)
				case errors.Is(err, ledger.ErrInsufficientFunds):
					atomic.AddInt64(&stats.Rejected, 1)
				default:
					atomic.AddInt64(&stats.Failures, 1)
					logger.Warn("seed_posting_failed", zap.String(pkg.AccountNumber, j.accountNumber), zap.Error(err))
				}
			}
		}()
	}

	// rng is not safe for concurrent use; jobs are drawn here and handed to the workers.
produce:
	for _, number := range numbers {
		for k := 0; k < opts.PostingsPerAccount; k++ {
			j := job{
				accountNumber: number,
				amount:        1 + ledger.Amount(rng.Int63n(int64(opts.MaxPosting))),
				typ:           ledger.TransactionTypeCredit,
			}
			if rng.Intn(2) == 0 {
				j.typ = ledger.TransactionTypeDebit
			}
			select {
			case jobs <- j:
			case <-ctx.Done():
				break produce
			}
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	for _, number := range numbers {
		r, err := engine.Reconcile(ctx, number)
		if err != nil {
			return stats, fmt.Errorf("reconcile %s: %w", number, err)
		}
		if !r.Balanced {
			stats.Unbalance++
		}
	}
	return stats, nil
}
