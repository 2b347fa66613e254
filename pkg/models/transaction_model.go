package models

import "time"

// Transaction maps to table `transactions`.
type Transaction struct {
	ID            int64
	AccountNumber string
	PostedAt      time.Time
	Amount        int64
	Type          string
	BalanceAfter  int64
}
