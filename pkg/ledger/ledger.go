// Package ledger owns the write discipline for a user's running point total.
//
// The total lives on the user row; this package is the only place that
// mutates it outside of reconciliation. Increment is a plain
// read-modify-write with no cross-request isolation: writers never assume
// they are the only writer, and any lost update is repaired by the next
// reconciliation run. That tradeoff is deliberate; availability wins here.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianswap/points-middleware/internal/metrics"
	"github.com/meridianswap/points-middleware/pkg/broadcast"
	"github.com/meridianswap/points-middleware/pkg/points"
	"github.com/meridianswap/points-middleware/pkg/user"
)

// UserStore is the narrow data-access interface for the ledger.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	SetPoints(ctx context.Context, userID int64, value decimal.Decimal) error
}

// Publisher delivers point-change events to connected observers.
type Publisher interface {
	Publish(ev broadcast.Event)
}

// Ledger mediates every incremental mutation of a user's point total.
type Ledger struct {
	store  UserStore
	pub    Publisher
	logger *zap.Logger
}

// New creates a ledger over the given store and broadcast publisher.
func New(store UserStore, pub Publisher, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, pub: pub, logger: logger}
}

// Increment adds delta to the user's total and returns the new value. The
// result is rounded to one decimal place so stacked 0.5 awards cannot drift.
// A points_update event is published for every non-zero delta.
func (l *Ledger) Increment(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	usr, err := l.store.GetByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if delta.IsZero() {
		return usr.Points, nil
	}

	before := usr.Points
	after := points.Round1(before.Add(delta))
	if err := l.store.SetPoints(ctx, userID, after); err != nil {
		return decimal.Zero, err
	}

	if delta.IsPositive() {
		awarded, _ := delta.Float64()
		metrics.PointsAwarded.Add(awarded)
	}
	l.logger.Debug("Ledger incremented",
		zap.Int64("user_id", userID),
		zap.String("delta", delta.String()),
		zap.String("total", after.String()))

	l.pub.Publish(broadcast.NewPointsUpdate(userID, usr.Address, before, after))
	return after, nil
}

// SetExact replaces the user's total wholesale. Reserved for the
// reconciliation engine, which owns its own change notifications.
func (l *Ledger) SetExact(ctx context.Context, userID int64, value decimal.Decimal) error {
	return l.store.SetPoints(ctx, userID, points.Round1(value))
}

// Read returns the user's current total.
func (l *Ledger) Read(ctx context.Context, userID int64) (decimal.Decimal, error) {
	usr, err := l.store.GetByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return usr.Points, nil
}
