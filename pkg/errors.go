package pkg

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"go.uber.org/zap"
)

var ExposeErrorDetails = false

func init() {
	if gin.DebugMode == gin.Mode() || gin.TestMode == gin.Mode() {
		ExposeErrorDetails = true
	}
}

// ErrorCode defines a standardized error code
type ErrorCode struct {
	Code    string
	Status  int
	Message string // default message
}

var (
	// Generic app
	ErrInvalidInputCode     = ErrorCode{Code: "APP_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	ErrServerCode           = ErrorCode{Code: "APP_INTERNAL", Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrRecordNotFoundCode   = ErrorCode{Code: "APP_NOT_FOUND", Status: http.StatusNotFound, Message: "record not found"}
	ErrStoreUnavailableCode = ErrorCode{Code: "APP_STORE_UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: "ledger store unavailable"}
	ErrRateLimitedCode      = ErrorCode{Code: "APP_RATE_LIMITED", Status: http.StatusTooManyRequests, Message: "too many requests"}
	ErrRequestCanceledCode  = ErrorCode{Code: "APP_REQUEST_CANCELED", Status: http.StatusRequestTimeout, Message: "request canceled"}

	// Business/domain rules
	ErrDuplicateAccountCode  = ErrorCode{Code: "BUSINESS_DUPLICATE_ACCOUNT", Status: http.StatusConflict, Message: "account already exists"}
	ErrInsufficientFundsCode = ErrorCode{Code: "BUSINESS_INSUFFICIENT_FUNDS", Status: http.StatusUnprocessableEntity, Message: "insufficient balance"}
)

type AppError struct {
	Code    ErrorCode
	Message string // public-facing message
	Field   string // offending request field, if known
	Cause   error  // internal cause (wrapped)
}

func (e AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}
func (e AppError) Unwrap() error { return e.Cause }

func NewAppError(code ErrorCode, msg string, cause error) error {
	return AppError{Code: code, Message: msg, Cause: cause}
}

// FromLedgerError maps a ledger failure onto its transport error code. The ledger message
// and offending field are kept; errors that are already AppErrors pass through.
func FromLedgerError(err error) error {
	if err == nil {
		return nil
	}
	var appErr AppError
	if errors.As(err, &appErr) {
		return err
	}

	code := ErrServerCode
	switch {
	case errors.Is(err, ledger.ErrValidation):
		code = ErrInvalidInputCode
	case errors.Is(err, ledger.ErrAccountNotFound):
		code = ErrRecordNotFoundCode
	case errors.Is(err, ledger.ErrDuplicateAccount):
		code = ErrDuplicateAccountCode
	case errors.Is(err, ledger.ErrInsufficientFunds):
		code = ErrInsufficientFundsCode
	case errors.Is(err, ledger.ErrStoreUnavailable):
		code = ErrStoreUnavailableCode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = ErrRequestCanceledCode
	}

	msg := code.Message
	var le *ledger.Error
	if errors.As(err, &le) && le.Message != "" && code != ErrStoreUnavailableCode {
		msg = le.Message
	}
	return AppError{Code: code, Message: msg, Field: ledger.FieldOf(err), Cause: err}
}

// ErrorResponse defines the standardized error response format
type ErrorResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// ToErrorResponse converts an error into an ErrorResponse, logging details and optionally exposing error messages.
// Ledger errors are mapped first; anything else becomes a generic 500 error.
func ToErrorResponse(logger *zap.Logger, traceID string, err error) ErrorResponse {
	var appErr AppError
	if errors.As(FromLedgerError(err), &appErr) && appErr.Code != ErrServerCode {
		resp := ErrorResponse{
			Status:  appErr.Code.Status,
			Code:    appErr.Code.Code,
			Message: appErr.Message,
			Field:   appErr.Field,
		}
		if appErr.Code.Status >= http.StatusInternalServerError {
			logger.Error("application error", zap.String(TraceId, traceID), zap.Error(err))
		} else {
			logger.Warn("request rejected", zap.String(TraceId, traceID), zap.String("code", appErr.Code.Code), zap.Error(err))
		}
		if ExposeErrorDetails {
			resp.Details = err.Error()
		}
		return resp
	}
	// Unknown error : 500
	resp := ErrorResponse{
		Status:  ErrServerCode.Status,
		Code:    ErrServerCode.Code,
		Message: ErrServerCode.Message,
	}
	logger.Error("application error", zap.String(TraceId, traceID), zap.Error(err))
	if ExposeErrorDetails {
		resp.Details = err.Error()
	}
	return resp
}
