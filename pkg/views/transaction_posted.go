package views

import (
	"strconv"
	"time"

	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
)

// TransactionPosted is published once a transaction has been committed to the ledger.
type TransactionPosted struct {
	TransactionID string                 `json:"transactionId"` // string so JSON consumers keep all 63 bits
	AccountNumber string                 `json:"accountNumber"`
	Type          ledger.TransactionType `json:"type"`
	Amount        string                 `json:"amount"`
	BalanceAfter  string                 `json:"balanceAfter"`
	PostedAt      time.Time              `json:"postedAt"`
}

func NewTransactionPosted(tx ledger.Transaction) TransactionPosted {
	return TransactionPosted{
		TransactionID: strconv.FormatInt(tx.ID, 10),
		AccountNumber: tx.AccountNumber,
		Type:          tx.Type,
		Amount:        tx.Amount.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		PostedAt:      tx.Timestamp,
	}
}
