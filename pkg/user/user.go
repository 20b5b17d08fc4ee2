// Package user defines the domain model for a tracked wallet.
package user

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents the domain model for a testnet participant. Identity is the
// wallet address, always stored lowercase. Points is the running ledger total;
// TotalSwaps and TotalClaims are derived aggregates refreshed by the write
// path and by reconciliation.
type User struct {
	ID          int64
	Address     string
	Points      decimal.Decimal
	TotalSwaps  int
	TotalClaims int
	LastClaim   *time.Time
	CreatedAt   time.Time
}

// New creates a User with zeroed aggregates for the given normalized address.
func New(address string) *User {
	return &User{
		Address: address,
		Points:  decimal.Zero,
	}
}
