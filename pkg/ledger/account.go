package ledger

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MinHolderNameLength is the shortest accepted account holder name.
const MinHolderNameLength = 3

type AccountType string

const (
	AccountTypeSavings AccountType = "SAVINGS"
	AccountTypeCurrent AccountType = "CURRENT"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	return t == AccountTypeSavings || t == AccountTypeCurrent
}

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeCredit || t == TransactionTypeDebit
}

// Account is a balance holder. Only Balance and UpdatedAt change after creation.
type Account struct {
	AccountNumber  string
	HolderName     string
	Balance        Amount
	OpeningBalance Amount
	Type           AccountType
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an immutable record of one applied balance mutation.
type Transaction struct {
	ID            int64
	AccountNumber string
	Timestamp     time.Time
	Amount        Amount
	Type          TransactionType
	BalanceAfter  Amount
}

// Signed returns the amount with the sign implied by the transaction type.
func (t Transaction) Signed() Amount {
	if t.Type == TransactionTypeDebit {
		return -t.Amount
	}
	return t.Amount
}

// NewAccount holds the caller supplied fields of an account to be created.
// AccountNumber is optional; an empty value asks the manager to generate one.
type NewAccount struct {
	AccountNumber  string
	HolderName     string
	InitialBalance Amount
	Type           AccountType
}

func (n NewAccount) validate() error {
	name := strings.TrimSpace(n.HolderName)
	if utf8.RuneCountInString(name) < MinHolderNameLength {
		return validationError("holderName", "holder name must be at least 3 characters")
	}
	if n.InitialBalance < 0 {
		return validationError("initialBalance", "initial balance must not be negative")
	}
	if !n.Type.Valid() {
		return validationError("accountType", "account type must be SAVINGS or CURRENT")
	}
	if n.AccountNumber != "" && strings.TrimSpace(n.AccountNumber) != n.AccountNumber {
		return validationError("accountNumber", "account number must not contain surrounding spaces")
	}
	return nil
}
