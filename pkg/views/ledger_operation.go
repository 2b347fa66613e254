package views

import (
	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
)

// LedgerOperation is a deposit or withdrawal requested over Kafka.
// Amount is a decimal string in major units, e.g. "12.34".
type LedgerOperation struct {
	OperationID   string                 `json:"operationId" validate:"required"`
	AccountNumber string                 `json:"accountNumber" validate:"required"`
	Type          ledger.TransactionType `json:"type" validate:"required,oneof=CREDIT DEBIT"`
	Amount        string                 `json:"amount" validate:"required"`
}
