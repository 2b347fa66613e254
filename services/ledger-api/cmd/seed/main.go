// Command seed fills the configured ledger store with demo accounts and postings.
//
// Example:
//
//	APP_STORE_BACKEND=postgres go run ./services/ledger-api/cmd/seed \
//	  -accounts=500 -postingsPerAccount=20 -workers=16 -pps=1000
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/bootstrap"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-api/configs"
	"go.uber.org/zap"
)

func main() {
	noOfAccounts := flag.Int("accounts", 100, "Number of accounts to seed")
	postingsPerAccount := flag.Int("postingsPerAccount", 10, "Random deposits/withdrawals per account")
	minBalance := flag.String("minBalance", "100.00", "Min opening balance")
	maxBalance := flag.String("maxBalance", "1000.00", "Max opening balance")
	maxPosting := flag.String("maxPosting", "250.00", "Max posting amount")
	workers := flag.Int("workers", 8, "Concurrent posting workers")
	pps := flag.Int("pps", 0, "Postings per second (0 => unthrottled)")
	flag.Parse()

	_ = godotenv.Load()
	pkg.InitLogger("ledger-seed")
	logger := pkg.Logger
	defer logger.Sync()

	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	opts := seedOptions{
		Accounts:           *noOfAccounts,
		PostingsPerAccount: *postingsPerAccount,
		MinBalance:         mustAmount(logger, "minBalance", *minBalance),
		MaxBalance:         mustAmount(logger, "maxBalance", *maxBalance),
		MaxPosting:         mustAmount(logger, "maxPosting", *maxPosting),
		Workers:            *workers,
		PostingsPerSecond:  *pps,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, cleanup, err := bootstrap.NewLedger(ctx, logger, cfg.Ledger())
	if err != nil {
		logger.Fatal("failed_to_initialize_ledger", zap.Error(err))
	}
	defer cleanup()

	started := time.Now()
	stats, err := seed(ctx, logger, l.Accounts, l.Engine, opts, rand.New(rand.NewSource(time.Now().UnixNano())))
	logger.Info("seed_finished",
		zap.Int64("accounts", stats.Accounts),
		zap.Int64("postings", stats.Postings),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("failures", stats.Failures),
		zap.Int64("unbalanced", stats.Unbalance),
		zap.Duration("took", time.Since(started)))
	if err != nil {
		logger.Error("seed_failed", zap.Error(err))
	}
}

func mustAmount(logger *zap.Logger, name, value string) ledger.Amount {
	amount, err := ledger.ParseAmount(value)
	if err != nil {
		logger.Fatal("invalid_amount_flag", zap.String("flag", name), zap.Error(err))
	}
	return amount
}
