package views

import (
	"testing"
	"time"

	"github.com/nimeshabuddhika/account-ledger/pkg/ledger"
	"github.com/stretchr/testify/assert"
)

func TestNewTransactionPosted(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	got := NewTransactionPosted(ledger.Transaction{
		ID:            1775000000000000001,
		AccountNumber: "ACC-1",
		Timestamp:     at,
		Amount:        1250,
		Type:          ledger.TransactionTypeDebit,
		BalanceAfter:  5,
	})

	assert.Equal(t, "1775000000000000001", got.TransactionID)
	assert.Equal(t, "12.50", got.Amount)
	assert.Equal(t, "0.05", got.BalanceAfter)
	assert.Equal(t, ledger.TransactionTypeDebit, got.Type)
	assert.Equal(t, at, got.PostedAt)
}
