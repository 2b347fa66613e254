package views

import (
	"strconv"
	"time"

	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
)

// Amounts travel as decimal strings in major units ("12.34") so no precision is lost.

type CreateAccountRequest struct {
	AccountNumber  string `json:"accountNumber"` // optional; generated when empty
	HolderName     string `json:"holderName" binding:"required"`
	InitialBalance string `json:"initialBalance"`
	AccountType    string `json:"accountType" binding:"required"`
}

type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type AccountResponse struct {
	AccountNumber  string    `json:"accountNumber"`
	HolderName     string    `json:"holderName"`
	Balance        string    `json:"balance"`
	OpeningBalance string    `json:"openingBalance"`
	AccountType    string    `json:"accountType"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type TransactionResponse struct {
	TransactionID string    `json:"transactionId"`
	AccountNumber string    `json:"accountNumber"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balanceAfter"`
	Timestamp     time.Time `json:"timestamp"`
}

type ReconciliationResponse struct {
	AccountNumber  string `json:"accountNumber"`
	OpeningBalance string `json:"openingBalance"`
	Credits        string `json:"credits"`
	Debits         string `json:"debits"`
	Transactions   int    `json:"transactions"`
	Replayed       string `json:"replayedBalance"`
	Stored         string `json:"storedBalance"`
	Balanced       bool   `json:"balanced"`
}

func NewAccountResponse(a ledger.Account) AccountResponse {
	return AccountResponse{
		AccountNumber:  a.AccountNumber,
		HolderName:     a.HolderName,
		Balance:        a.Balance.String(),
		OpeningBalance: a.OpeningBalance.String(),
		AccountType:    string(a.Type),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func NewAccountResponses(accounts []ledger.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, NewAccountResponse(a))
	}
	return out
}

func NewTransactionResponse(tx ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID: strconv.FormatInt(tx.ID, 10),
		AccountNumber: tx.AccountNumber,
		Type:          string(tx.Type),
		Amount:        tx.Amount.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		Timestamp:     tx.Timestamp,
	}
}

func NewTransactionResponses(txs []ledger.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, NewTransactionResponse(tx))
	}
	return out
}

func NewReconciliationResponse(r ledger.Reconciliation) ReconciliationResponse {
	return ReconciliationResponse{
		AccountNumber:  r.AccountNumber,
		OpeningBalance: r.OpeningBalance.String(),
		Credits:        r.Credits.StringFixed(ledger.MinorUnitScale),
		Debits:         r.Debits.StringFixed(ledger.MinorUnitScale),
		Transactions:   r.Transactions,
		Replayed:       r.Replayed.String(),
		Stored:         r.Stored.String(),
		Balanced:       r.Balanced,
	}
}
