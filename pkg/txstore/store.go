// Package txstore persists the append-only transaction log.
//
// The postgres implementation writes through two access paths: a bun ORM
// primary path and a raw parameterized-SQL fallback against the same
// relation. The fallback fires only after the primary path errors, with the
// same normalized values, so both paths produce identical rows. An in-memory
// implementation backs the unit tests.
package txstore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianswap/points-middleware/pkg/transaction"
)

// ErrTransactionNotFound is returned when a transaction lookup finds no row.
var ErrTransactionNotFound = errors.New("transaction not found")

// Query selects a page of a user's transaction history, newest first.
type Query struct {
	UserID   int64
	Type     *transaction.Type
	Page     int
	PageSize int
}

// Store defines all transaction log operations.
type Store interface {
	// Insert appends a validated transaction and fills in ID and CreatedAt.
	// The stored points value is exactly what the caller set; Insert never
	// computes awards.
	Insert(ctx context.Context, tx *transaction.Transaction) error
	// UpdatePoints back-fills the points field of an existing row.
	UpdatePoints(ctx context.Context, id int64, points decimal.Decimal) error

	// List returns one page of a user's history plus the total row count.
	List(ctx context.Context, q Query) ([]*transaction.Transaction, int, error)
	// ListCompletedByUser returns all completed transactions for the user
	// ordered by timestamp ascending, id ascending for ties.
	ListCompletedByUser(ctx context.Context, userID int64) ([]*transaction.Transaction, error)

	// CountForDay counts the user's completed transactions of the given type
	// on the UTC calendar day containing day.
	CountForDay(ctx context.Context, userID int64, typ transaction.Type, day time.Time) (int, error)
	// RankWithinDay returns the 1-indexed position of a transaction among
	// the user's completed same-type transactions on the same UTC day:
	// 1 + count of rows with id strictly less than excludeID. The result is
	// advisory under concurrent appends; reconciliation corrects any race.
	RankWithinDay(ctx context.Context, userID int64, typ transaction.Type, ts time.Time, excludeID int64) (int, error)
	// CountByUserAndType counts all rows of a type regardless of status.
	CountByUserAndType(ctx context.Context, userID int64, typ transaction.Type) (int, error)

	// ExistingHashes reports which of the given tx hashes already exist for
	// the user. Used to deduplicate bulk sync payloads.
	ExistingHashes(ctx context.Context, userID int64, hashes []string) (map[string]bool, error)

	// NormalizePoints rewrites legacy award values on completed rows of the
	// given type to the canonical value, returning the number of rows fixed.
	// Zero-valued awards (over-cap rows) are left alone.
	NormalizePoints(ctx context.Context, typ transaction.Type, canonical decimal.Decimal) (int64, error)

	// DeleteAll removes every transaction row. Administrative reset only.
	DeleteAll(ctx context.Context) (int64, error)
}
