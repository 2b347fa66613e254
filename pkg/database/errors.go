package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Postgres SQLSTATE codes the repositories act on.
const (
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
	CheckViolation      = "23514"
)

var (
	ErrNoRows      = errors.New("no rows")
	ErrDuplicate   = errors.New("duplicate value violates unique constraint")
	ErrConstraint  = errors.New("constraint violation")
	ErrUnavailable = errors.New("database unavailable")
)

// ClassifyError maps pgx errors onto the package sentinels, logging rich pg context.
// Context errors are returned as they are; anything it cannot attribute to the data
// (connection loss, serialization failures, timeouts) is ErrUnavailable.
func ClassifyError(logger *zap.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		logger.Error("sql_error_unknown", zap.String("op", op), zap.Error(err))
		return errors.Join(ErrUnavailable, err)
	}

	logger.Warn("sql_error",
		zap.String("op", op),
		zap.String("code", pgErr.Code),
		zap.String("message", pgErr.Message),
		zap.String("detail", pgErr.Detail),
		zap.String("table", pgErr.TableName),
		zap.String("constraint", pgErr.ConstraintName),
	)
	switch pgErr.Code {
	case UniqueViolation:
		return errors.Join(ErrDuplicate, err)
	case ForeignKeyViolation, CheckViolation:
		return errors.Join(ErrConstraint, err)
	default:
		return errors.Join(ErrUnavailable, err)
	}
}
