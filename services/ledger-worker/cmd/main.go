package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/bootstrap"
	"github.com/nimeshabuddhika/account-ledger/pkg/cache"
	kafkautils "github.com/nimeshabuddhika/account-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-worker/configs"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-worker/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// main initializes and runs the ledger worker service.
func main() {
	_ = godotenv.Load()

	// Initialize global logger with default configuration
	pkg.InitLogger("ledger-worker")
	logger := pkg.Logger
	defer logger.Sync() // Ensure all buffered logs are flushed on exit

	// Load configuration from environment and optional config file
	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, cleanup, err := bootstrap.NewLedger(ctx, logger, cfg.Ledger())
	if err != nil {
		logger.Fatal("failed_to_initialize_ledger", zap.Error(err))
	}
	defer cleanup()

	err = kafkautils.InitKafkaTopics(ctx, logger, kafkautils.KafkaConfig{
		BootstrapServers: cfg.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			kafkautils.RetentionTopic(cfg.KafkaOperationsTopic, cfg.KafkaPartition, cfg.KafkaOperationsRetention),
			kafkautils.RetentionTopic(cfg.KafkaDLQTopic, 1, cfg.KafkaDLQRetention),
		},
	})
	if err != nil {
		logger.Fatal("failed_to_initialize_kafka_topics", zap.Error(err))
	}

	processorCfg := services.OperationProcessorConfig{Logger: logger, Poster: l.Engine}
	if l.Redis != nil {
		processorCfg.Registry = cache.NewOperationRegistry(l.Redis, "ledger:op:", cfg.OperationTTL)
	} else {
		logger.Warn("operation_registry_disabled_redeliveries_post_again")
	}

	handler, err := services.NewKafkaOperationHandler(services.KafkaOperationConfig{
		Context:   ctx,
		Logger:    logger,
		Config:    cfg,
		Processor: services.NewOperationProcessor(processorCfg),
	})
	if err != nil {
		logger.Fatal("failed_to_create_kafka_consumer", zap.Error(err))
	}
	stopConsumer, err := handler.Start()
	if err != nil {
		logger.Fatal("failed_to_subscribe", zap.Error(err))
	}

	// Metrics and health endpoint
	r := gin.New()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		if err := l.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: r}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	osSignal := <-sigChan
	logger.Info("received_shutdown_signal", zap.String("signal", osSignal.String()))

	cancel() // Trigger context cancellation
	stopConsumer()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics_server_shutdown_failed", zap.Error(err))
	}
	logger.Info("service_shutdown_completed")
}
