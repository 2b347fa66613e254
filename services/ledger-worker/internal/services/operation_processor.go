package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/views"
	"go.uber.org/zap"
)

// Failure reasons, used as DLQ header values and metric labels.
const (
	ReasonDecode           = "decode_error"
	ReasonValidation       = "validation_error"
	ReasonRejected         = "rejected"
	ReasonStoreUnavailable = "store_unavailable"
	ReasonInternal         = "internal_error"
)

// Poster applies one posting to the ledger.
type Poster interface {
	Post(ctx context.Context, accountNumber string, amount ledger.Amount, typ ledger.TransactionType) (ledger.Transaction, error)
}

// OperationRegistry remembers which operation ids were posted.
type OperationRegistry interface {
	Lookup(ctx context.Context, operationID string) (int64, bool, error)
	Remember(ctx context.Context, operationID string, txID int64) error
}

// Outcome is the result of processing one operation message.
type Outcome struct {
	Operation   views.LedgerOperation
	Transaction ledger.Transaction
	Duplicate   bool   // already posted by an earlier delivery
	Reason      string // empty on success
	Err         error
	Retry       bool // interrupted or store unavailable; the message must not be committed yet
}

type OperationProcessorConfig struct {
	Logger   *zap.Logger
	Poster   Poster
	Registry OperationRegistry // optional; without it redeliveries are posted again
}

// OperationProcessor turns LedgerOperation payloads into ledger postings.
type OperationProcessor struct {
	logger   *zap.Logger
	poster   Poster
	registry OperationRegistry
	validate *validator.Validate
}

func NewOperationProcessor(cfg OperationProcessorConfig) *OperationProcessor {
	return &OperationProcessor{
		logger:   cfg.Logger,
		poster:   cfg.Poster,
		registry: cfg.Registry,
		validate: validator.New(),
	}
}

func (p *OperationProcessor) Process(ctx context.Context, payload []byte) Outcome {
	var out Outcome
	if err := json.Unmarshal(payload, &out.Operation); err != nil {
		return p.fail(out, ReasonDecode, err)
	}
	op := out.Operation
	if err := p.validate.Struct(&op); err != nil {
		return p.fail(out, ReasonValidation, err)
	}
	amount, err := ledger.ParseAmount(op.Amount)
	if err != nil {
		return p.fail(out, ReasonValidation, err)
	}

	if p.registry != nil {
		txID, seen, err := p.registry.Lookup(ctx, op.OperationID)
		if err != nil {
			return p.fail(out, ReasonStoreUnavailable, ledger.StoreUnavailable("lookup operation", err))
		}
		if seen {
			p.logger.Info("operation_already_posted",
				zap.String(pkg.OperationId, op.OperationID),
				zap.Int64(pkg.TransactionId, txID))
			out.Duplicate = true
			out.Transaction.ID = txID
			return out
		}
	}

	tx, err := p.poster.Post(ctx, op.AccountNumber, amount, op.Type)
	if err != nil {
		return p.fail(out, reasonFor(err), err)
	}
	out.Transaction = tx

	if p.registry != nil {
		// The posting is committed; a lost record only weakens redelivery detection.
		if err := p.registry.Remember(ctx, op.OperationID, tx.ID); err != nil {
			p.logger.Error("operation_record_failed",
				zap.String(pkg.OperationId, op.OperationID),
				zap.Int64(pkg.TransactionId, tx.ID),
				zap.Error(err))
		}
	}
	return out
}

func (p *OperationProcessor) fail(out Outcome, reason string, err error) Outcome {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		out.Retry = true
		out.Err = err
		return out
	}
	if errors.Is(err, ledger.ErrStoreUnavailable) {
		out.Retry = true
		out.Reason = reason
		out.Err = err
		p.logger.Warn("operation_store_unavailable",
			zap.String(pkg.OperationId, out.Operation.OperationID),
			zap.String(pkg.AccountNumber, out.Operation.AccountNumber),
			zap.Error(err))
		return out
	}
	out.Reason = reason
	out.Err = err
	p.logger.Warn("operation_failed",
		zap.String(pkg.OperationId, out.Operation.OperationID),
		zap.String(pkg.AccountNumber, out.Operation.AccountNumber),
		zap.String("reason", reason),
		zap.Error(err))
	return out
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return ReasonRejected
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return ReasonStoreUnavailable
	default:
		return ReasonInternal
	}
}
