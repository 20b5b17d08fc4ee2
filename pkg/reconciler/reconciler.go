// Package reconciler recomputes user point totals from transaction history.
//
// The stored total on a user row is a cache of what the transaction log
// implies. The engine recomputes the implied value per user, applying the
// daily swap cap per UTC day plus any explicitly stored non-swap awards, and
// overwrites the cached total when the two disagree. Runs are idempotent: a
// second pass over an unchanged log is a no-op.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianswap/points-middleware/internal/metrics"
	"github.com/meridianswap/points-middleware/pkg/broadcast"
	"github.com/meridianswap/points-middleware/pkg/points"
	"github.com/meridianswap/points-middleware/pkg/transaction"
	"github.com/meridianswap/points-middleware/pkg/user"
)

// TxStore is the transaction access the engine needs.
type TxStore interface {
	ListCompletedByUser(ctx context.Context, userID int64) ([]*transaction.Transaction, error)
	CountByUserAndType(ctx context.Context, userID int64, typ transaction.Type) (int, error)
	NormalizePoints(ctx context.Context, typ transaction.Type, canonical decimal.Decimal) (int64, error)
}

// UserStore is the user access the engine needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	ListUsers(ctx context.Context) ([]*user.User, error)
	SetPoints(ctx context.Context, userID int64, value decimal.Decimal) error
	SetTotalSwaps(ctx context.Context, userID int64, totalSwaps int) error
	Totals(ctx context.Context) (decimal.Decimal, int, error)
}

// Publisher delivers change events to connected observers.
type Publisher interface {
	Publish(ev broadcast.Event)
}

// UserResult reports the reconciliation outcome for one user.
type UserResult struct {
	UserID       int64           `json:"userId"`
	Address      string          `json:"address"`
	PointsBefore decimal.Decimal `json:"pointsBefore"`
	PointsAfter  decimal.Decimal `json:"pointsAfter"`
	TotalSwaps   int             `json:"totalSwaps"`
	Changed      bool            `json:"changed"`
	Error        string          `json:"error,omitempty"`
}

// Report summarizes a full reconciliation run.
type Report struct {
	ID                string          `json:"id"`
	UsersScanned      int             `json:"usersScanned"`
	UsersUpdated      int             `json:"usersUpdated"`
	UsersFailed       int             `json:"usersFailed"`
	RowsNormalized    int64           `json:"rowsNormalized,omitempty"`
	TotalPointsBefore decimal.Decimal `json:"totalPointsBefore"`
	TotalPointsAfter  decimal.Decimal `json:"totalPointsAfter"`
	Details           []UserResult    `json:"details"`
	Duration          time.Duration   `json:"-"`
	DurationMS        int64           `json:"durationMs"`
}

// Engine recomputes point totals from the transaction log.
type Engine struct {
	txs    TxStore
	users  UserStore
	pub    Publisher
	policy points.Policy
	logger *zap.Logger
}

// New creates a reconciliation engine.
func New(txs TxStore, users UserStore, pub Publisher, policy points.Policy, logger *zap.Logger) *Engine {
	return &Engine{txs: txs, users: users, pub: pub, policy: policy, logger: logger}
}

// RecalculateUser recomputes one user's total and swap counter from their
// transaction history and persists both. A points_update event is published
// only when the stored total actually changed.
func (e *Engine) RecalculateUser(ctx context.Context, userID int64) (*UserResult, error) {
	metrics.ReconcileRuns.WithLabelValues("user").Inc()
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	res, err := e.recalculate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RecalculateAll reconciles every user. Per-user failures are isolated: they
// are reported in the result details and do not abort the run.
func (e *Engine) RecalculateAll(ctx context.Context) (*Report, error) {
	metrics.ReconcileRuns.WithLabelValues("all").Inc()
	return e.runAll(ctx, 0)
}

// FixPoints normalizes historical swap rows carrying a non-canonical per-swap
// award, then reconciles every user against the repaired log.
func (e *Engine) FixPoints(ctx context.Context) (*Report, error) {
	metrics.ReconcileRuns.WithLabelValues("fix").Inc()

	normalized, err := e.txs.NormalizePoints(ctx, transaction.TypeSwap, e.policy.PointsPerSwap)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize swap points: %w", err)
	}
	if normalized > 0 {
		e.logger.Info("Normalized non-canonical swap awards", zap.Int64("rows", normalized))
	}
	return e.runAll(ctx, normalized)
}

func (e *Engine) runAll(ctx context.Context, rowsNormalized int64) (*Report, error) {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	users, err := e.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	report := &Report{
		ID:             uuid.NewString(),
		UsersScanned:   len(users),
		RowsNormalized: rowsNormalized,
		Details:        make([]UserResult, 0, len(users)),
	}
	for _, usr := range users {
		res, err := e.recalculate(ctx, usr.ID)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues("reconciler").Inc()
			e.logger.Error("User reconciliation failed",
				zap.Int64("user_id", usr.ID),
				zap.String("address", usr.Address),
				zap.Error(err))
			report.UsersFailed++
			report.Details = append(report.Details, UserResult{
				UserID:       usr.ID,
				Address:      usr.Address,
				PointsBefore: usr.Points,
				PointsAfter:  usr.Points,
				Error:        err.Error(),
			})
			report.TotalPointsBefore = report.TotalPointsBefore.Add(usr.Points)
			report.TotalPointsAfter = report.TotalPointsAfter.Add(usr.Points)
			continue
		}

		if res.Changed {
			report.UsersUpdated++
		}
		report.TotalPointsBefore = report.TotalPointsBefore.Add(res.PointsBefore)
		report.TotalPointsAfter = report.TotalPointsAfter.Add(res.PointsAfter)
		report.Details = append(report.Details, *res)
	}

	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()

	if report.UsersUpdated > 0 {
		totalPoints, userCount, err := e.users.Totals(ctx)
		if err != nil {
			e.logger.Warn("Failed to load totals for leaderboard event", zap.Error(err))
		} else {
			e.pub.Publish(broadcast.NewLeaderboardUpdate(totalPoints, userCount))
		}
	}

	e.logger.Info("Reconciliation run finished",
		zap.String("report_id", report.ID),
		zap.Int("scanned", report.UsersScanned),
		zap.Int("updated", report.UsersUpdated),
		zap.Int("failed", report.UsersFailed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// recalculate is the single-user core shared by every trigger.
func (e *Engine) recalculate(ctx context.Context, userID int64) (*UserResult, error) {
	usr, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	txs, err := e.txs.ListCompletedByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	implied := e.impliedTotal(txs)

	res := &UserResult{
		UserID:       usr.ID,
		Address:      usr.Address,
		PointsBefore: usr.Points,
		PointsAfter:  implied,
		Changed:      !implied.Equal(usr.Points),
	}

	if res.Changed {
		if err := e.users.SetPoints(ctx, userID, implied); err != nil {
			return nil, fmt.Errorf("failed to store reconciled points: %w", err)
		}
		metrics.DriftCorrected.Inc()
		e.logger.Info("Corrected drifted point total",
			zap.Int64("user_id", usr.ID),
			zap.String("address", usr.Address),
			zap.String("before", usr.Points.String()),
			zap.String("after", implied.String()))
		e.pub.Publish(broadcast.NewPointsUpdate(usr.ID, usr.Address, usr.Points, implied))
	}

	swapCount, err := e.txs.CountByUserAndType(ctx, userID, transaction.TypeSwap)
	if err != nil {
		return nil, fmt.Errorf("failed to count swaps: %w", err)
	}
	res.TotalSwaps = swapCount
	if swapCount != usr.TotalSwaps {
		if err := e.users.SetTotalSwaps(ctx, userID, swapCount); err != nil {
			return nil, fmt.Errorf("failed to store swap count: %w", err)
		}
	}
	return res, nil
}

// impliedTotal computes the point total a completed transaction history
// implies: per UTC day, min(swaps, cap) * per-swap award, plus whatever
// explicit awards non-swap rows carry.
func (e *Engine) impliedTotal(txs []*transaction.Transaction) decimal.Decimal {
	swapDays := make(map[time.Time]int)
	total := decimal.Zero

	for _, tx := range txs {
		if tx.Type == transaction.TypeSwap {
			swapDays[points.DayOf(tx.Timestamp)]++
			continue
		}
		if tx.Points != nil {
			total = total.Add(*tx.Points)
		}
	}
	for _, count := range swapDays {
		total = total.Add(e.policy.DayPoints(count))
	}
	return points.Round1(total)
}
