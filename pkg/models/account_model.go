package models

import "time"

// Account maps to table `accounts`. HolderName holds the AES-GCM ciphertext.
type Account struct {
	AccountNumber  string
	HolderName     string
	Balance        int64
	OpeningBalance int64
	AccountType    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
