package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/account-ledger/pkg"
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/account-ledger/pkg/utils"
	"github.com/nimeshabuddhika/account-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

// AccountService is the account lifecycle the handler exposes.
type AccountService interface {
	Create(ctx context.Context, req ledger.NewAccount) (ledger.Account, error)
	Get(ctx context.Context, accountNumber string) (ledger.Account, error)
	Remove(ctx context.Context, accountNumber string) error
	List(ctx context.Context) ([]ledger.Account, error)
	Transactions(ctx context.Context, accountNumber string) ([]ledger.Transaction, error)
}

// PostingService applies balance mutations.
type PostingService interface {
	Deposit(ctx context.Context, accountNumber string, amount ledger.Amount) (ledger.Transaction, error)
	Withdraw(ctx context.Context, accountNumber string, amount ledger.Amount) (ledger.Transaction, error)
	Reconcile(ctx context.Context, accountNumber string) (ledger.Reconciliation, error)
}

type AccountHandler struct {
	logger   *zap.Logger
	accounts AccountService
	postings PostingService
}

func NewAccountHandler(logger *zap.Logger, accounts AccountService, postings PostingService) *AccountHandler {
	return &AccountHandler{logger: logger, accounts: accounts, postings: postings}
}

// RegisterRoutes registers account routes on the provided group.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/accounts")
	accounts.POST("", h.CreateAccount)
	accounts.GET("", h.ListAccounts)
	accounts.GET("/:accountNumber", h.GetAccount)
	accounts.DELETE("/:accountNumber", h.RemoveAccount)
	accounts.POST("/:accountNumber/deposit", h.Deposit)
	accounts.POST("/:accountNumber/withdraw", h.Withdraw)
	accounts.GET("/:accountNumber/transactions", h.ListTransactions)
	accounts.GET("/:accountNumber/reconciliation", h.Reconcile)
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req views.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid request body", err))
		return
	}

	initial := ledger.Amount(0)
	if !utils.IsEmpty(req.InitialBalance) {
		amount, err := parseAmount("initialBalance", req.InitialBalance)
		if err != nil {
			h.fail(c, err)
			return
		}
		initial = amount
	}

	account, err := h.accounts.Create(c.Request.Context(), ledger.NewAccount{
		AccountNumber:  req.AccountNumber,
		HolderName:     req.HolderName,
		InitialBalance: initial,
		Type:           ledger.AccountType(req.AccountType),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("account_created",
		zap.String(pkg.TraceId, c.GetString(pkg.TraceId)),
		zap.String(pkg.AccountNumber, account.AccountNumber))
	h.ok(c, http.StatusCreated, views.NewAccountResponse(account))
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, views.NewAccountResponses(accounts))
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), c.Param("accountNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, views.NewAccountResponse(account))
}

func (h *AccountHandler) RemoveAccount(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	if err := h.accounts.Remove(c.Request.Context(), accountNumber); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("account_removed",
		zap.String(pkg.TraceId, c.GetString(pkg.TraceId)),
		zap.String(pkg.AccountNumber, accountNumber))
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) Deposit(c *gin.Context) {
	h.post(c, h.postings.Deposit)
}

func (h *AccountHandler) Withdraw(c *gin.Context) {
	h.post(c, h.postings.Withdraw)
}

func (h *AccountHandler) post(c *gin.Context, apply func(context.Context, string, ledger.Amount) (ledger.Transaction, error)) {
	var req views.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid request body", err))
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	tx, err := apply(c.Request.Context(), c.Param("accountNumber"), amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, views.NewTransactionResponse(tx))
}

func (h *AccountHandler) ListTransactions(c *gin.Context) {
	txs, err := h.accounts.Transactions(c.Request.Context(), c.Param("accountNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, views.NewTransactionResponses(txs))
}

func (h *AccountHandler) Reconcile(c *gin.Context) {
	r, err := h.postings.Reconcile(c.Request.Context(), c.Param("accountNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, views.NewReconciliationResponse(r))
}

func (h *AccountHandler) ok(c *gin.Context, status int, data any) {
	c.JSON(status, pkg.APIResponse{TraceID: c.GetString(pkg.TraceId), Data: data})
}

func (h *AccountHandler) fail(c *gin.Context, err error) {
	resp := pkg.ToErrorResponse(h.logger, c.GetString(pkg.TraceId), err)
	c.JSON(resp.Status, resp)
}

// parseAmount converts a wire amount, naming the request field on failure.
func parseAmount(field, value string) (ledger.Amount, error) {
	amount, err := ledger.ParseAmount(value)
	if err != nil {
		return 0, pkg.AppError{
			Code:    pkg.ErrInvalidInputCode,
			Message: fmt.Sprintf("%s must be a decimal with at most %d fractional digits", field, ledger.MinorUnitScale),
			Field:   field,
			Cause:   err,
		}
	}
	return amount, nil
}
