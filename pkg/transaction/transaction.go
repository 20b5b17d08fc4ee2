// Package transaction defines the domain model for recorded testnet activity.
package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates the kinds of activity the tracker records. Only a subset
// of types ever contributes points; the rest are recorded for history only.
type Type string

const (
	TypeSwap           Type = "swap"
	TypeFaucetClaim    Type = "faucet_claim"
	TypeNFTStake       Type = "nft_stake"
	TypeGovernanceVote Type = "governance_vote"
	TypeQuiz           Type = "quiz"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	switch t {
	case TypeSwap, TypeFaucetClaim, TypeNFTStake, TypeGovernanceVote, TypeQuiz:
		return true
	}
	return false
}

// Status is the lifecycle state of a transaction. Only completed
// transactions count toward points.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusPending, StatusFailed:
		return true
	}
	return false
}

// Transaction is a single recorded event for a user. Rows are immutable once
// written except for Points, which may be back-filled after creation.
type Transaction struct {
	ID        int64
	UserID    int64
	Type      Type
	Status    Status
	TxHash    string
	TokenIn   string
	TokenOut  string
	AmountIn  string
	AmountOut string
	// Points is the awarded value for this row. Nil means the award has not
	// been computed yet; a non-nil value set by the caller is authoritative
	// and is never recomputed by the store.
	Points    *decimal.Decimal
	Timestamp time.Time
	CreatedAt time.Time
}

// Completed reports whether the transaction counts toward points.
func (t *Transaction) Completed() bool {
	return t.Status == StatusCompleted
}
