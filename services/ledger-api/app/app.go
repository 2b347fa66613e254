package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/bootstrap"
	middleware "github.com/nimeshabuddhika/account-ledger/pkg/middlewares"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-api/configs"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-api/internal/handlers"
	"go.uber.org/zap"
)

// RouterConfig holds what the HTTP layer is built from.
type RouterConfig struct {
	Logger   *zap.Logger
	Accounts handlers.AccountService
	Postings handlers.PostingService
	Limiter  middleware.Limiter // optional
	Pinger   handlers.Pinger    // optional
}

// NewRouter builds the Gin engine: /api/v1 routes behind trace, metrics and rate limit middleware.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics())
	if cfg.Limiter != nil {
		api.Use(middleware.RateLimit(cfg.Logger, cfg.Limiter))
	}

	handlers.NewAccountHandler(cfg.Logger, cfg.Accounts, cfg.Postings).RegisterRoutes(api)
	handlers.NewBaseHandler(cfg.Logger, cfg.Pinger).RegisterRoutes(r)
	return r
}

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// It reads configuration from environment variables via configs.Load.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	// Load config
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	l, cleanup, err := bootstrap.NewLedger(ctx, logger, cfg.Ledger())
	if err != nil {
		return nil, nil, err
	}

	limiter := pkg.NewDistributedLimiter(l.Redis, "ledger:api:rate",
		cfg.MaxReplicaRateLimit, cfg.RateLimitBurst, cfg.MaxGlobalRateLimit, cfg.RateLimitWindow, logger)

	r := NewRouter(RouterConfig{
		Logger:   logger,
		Accounts: l.Accounts,
		Postings: l.Engine,
		Limiter:  limiter,
		Pinger:   l,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	return srv, cleanup, nil
}
