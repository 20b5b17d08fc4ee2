// Package userstore persists users and their point aggregates.
//
// Two implementations satisfy the same Store contract: a bun-backed postgres
// store for production and an in-memory store used by tests. Both must pass
// the same contract tests.
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianswap/points-middleware/pkg/user"
)

// ErrUserNotFound is returned when a user lookup finds no matching record.
var ErrUserNotFound = errors.New("user not found")

// Page is one page of the leaderboard projection plus global totals.
type Page struct {
	Users             []*user.User
	TotalGlobalPoints decimal.Decimal
	TotalUserCount    int
}

// Store defines all user persistence operations. Addresses passed in are
// expected to be normalized (lowercase) already.
type Store interface {
	// GetByAddress returns the user for a normalized address, or ErrUserNotFound.
	GetByAddress(ctx context.Context, address string) (*user.User, error)
	// GetByID returns the user by id, or ErrUserNotFound.
	GetByID(ctx context.Context, id int64) (*user.User, error)
	// GetOrCreate returns the user for the address, lazily creating a zeroed
	// row on first interaction. Safe to call concurrently for one address.
	GetOrCreate(ctx context.Context, address string) (*user.User, error)
	// ListUsers returns all users.
	ListUsers(ctx context.Context) ([]*user.User, error)

	// SetPoints replaces the user's running point total.
	SetPoints(ctx context.Context, userID int64, value decimal.Decimal) error
	// SetTotalSwaps replaces the user's swap counter.
	SetTotalSwaps(ctx context.Context, userID int64, totalSwaps int) error
	// RecordClaim bumps the claim counter and the last-claim timestamp.
	RecordClaim(ctx context.Context, userID int64, at time.Time) error

	// Totals returns the global point sum and the user count.
	Totals(ctx context.Context) (decimal.Decimal, int, error)
	// LeaderboardPage returns one page ordered by points desc, then total
	// swaps desc. Page numbers are 1-indexed.
	LeaderboardPage(ctx context.Context, limit, page int) (*Page, error)
	// Rank returns the 1-indexed leaderboard rank for an address: users with
	// strictly more points, plus equal-point users with strictly more swaps,
	// rank ahead. Ties on both collapse to the same rank.
	Rank(ctx context.Context, address string) (int, error)

	// ResetKeeping deletes every user except keepAddress and recreates the
	// kept user with zeroed aggregates. Returns the number of deleted rows.
	ResetKeeping(ctx context.Context, keepAddress string) (int, error)
}
