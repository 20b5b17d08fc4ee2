// Package admin exposes the maintenance surface: per-user and global
// recalculation, historical points normalization, batch grants and the
// destructive full reset. Every operation returns a structured report rather
// than a bare success flag.
package admin

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/meridianswap/points-middleware/pkg/app/errors"
	"github.com/meridianswap/points-middleware/pkg/auth"
	"github.com/meridianswap/points-middleware/pkg/broadcast"
	"github.com/meridianswap/points-middleware/pkg/ledger"
	"github.com/meridianswap/points-middleware/pkg/reconciler"
	"github.com/meridianswap/points-middleware/pkg/txstore"
	"github.com/meridianswap/points-middleware/pkg/userstore"
)

// Publisher delivers events to connected observers.
type Publisher interface {
	Publish(ev broadcast.Event)
}

// Service implements the administrative maintenance operations.
type Service struct {
	users       userstore.Store
	txs         txstore.Store
	ledger      *ledger.Ledger
	engine      *reconciler.Engine
	pub         Publisher
	demoAddress string
	logger      *zap.Logger
}

// New creates the admin service. demoAddress is the reserved wallet that
// survives a full reset.
func New(users userstore.Store, txs txstore.Store, lgr *ledger.Ledger, engine *reconciler.Engine, pub Publisher, demoAddress string, logger *zap.Logger) *Service {
	return &Service{
		users:       users,
		txs:         txs,
		ledger:      lgr,
		engine:      engine,
		pub:         pub,
		demoAddress: auth.NormalizeAddress(demoAddress),
		logger:      logger,
	}
}

// RecalculateUser recomputes one user's total from their transaction history.
func (s *Service) RecalculateUser(ctx context.Context, address string) (*reconciler.UserResult, error) {
	address = auth.NormalizeAddress(address)
	if !auth.ValidateAddress(address) {
		return nil, apperrors.BadRequestError(nil, "invalid wallet address")
	}

	usr, err := s.users.GetByAddress(ctx, address)
	if err != nil {
		return nil, apperrors.ResourceNotFoundError(err, "user not found")
	}
	res, err := s.engine.RecalculateUser(ctx, usr.ID)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("recalculation failed: %w", err))
	}
	return res, nil
}

// RecalculateAll reconciles every user and reports the aggregate outcome.
func (s *Service) RecalculateAll(ctx context.Context) (*reconciler.Report, error) {
	report, err := s.engine.RecalculateAll(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("bulk recalculation failed: %w", err))
	}
	return report, nil
}

// FixPoints normalizes mispriced historical swap rows to the canonical
// per-swap award and reconciles every user against the repaired history.
func (s *Service) FixPoints(ctx context.Context) (*reconciler.Report, error) {
	report, err := s.engine.FixPoints(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("points normalization failed: %w", err))
	}
	return report, nil
}

// Adjustment is one manual point grant (positive delta) or deduction
// (negative delta) for a wallet.
type Adjustment struct {
	Address string          `json:"address" validate:"required"`
	Delta   decimal.Decimal `json:"delta" validate:"required"`
}

// AdjustmentResult reports the outcome for one adjustment.
type AdjustmentResult struct {
	Address  string          `json:"address"`
	Delta    decimal.Decimal `json:"delta"`
	NewTotal decimal.Decimal `json:"newTotal"`
	Error    string          `json:"error,omitempty"`
}

// BatchReport summarizes a batch adjustment run.
type BatchReport struct {
	Applied int                `json:"applied"`
	Failed  int                `json:"failed"`
	Details []AdjustmentResult `json:"details"`
}

// BatchAdjust applies manual point deltas per address. Failures are isolated
// per item; unknown addresses are created lazily like any other first
// interaction. Manual deltas are overwritten by the next reconciliation run.
func (s *Service) BatchAdjust(ctx context.Context, adjustments []Adjustment) (*BatchReport, error) {
	if len(adjustments) == 0 {
		return nil, apperrors.BadRequestError(nil, "no adjustments provided")
	}

	report := &BatchReport{Details: make([]AdjustmentResult, 0, len(adjustments))}
	for _, adj := range adjustments {
		res := AdjustmentResult{Address: auth.NormalizeAddress(adj.Address), Delta: adj.Delta}
		if !auth.ValidateAddress(res.Address) {
			res.Error = "invalid wallet address"
			report.Failed++
			report.Details = append(report.Details, res)
			continue
		}

		usr, err := s.users.GetOrCreate(ctx, res.Address)
		if err == nil {
			res.NewTotal, err = s.ledger.Increment(ctx, usr.ID, adj.Delta)
		}
		if err != nil {
			s.logger.Error("Batch adjustment failed",
				zap.String("address", res.Address),
				zap.String("delta", adj.Delta.String()),
				zap.Error(err))
			res.Error = err.Error()
			report.Failed++
		} else {
			report.Applied++
		}
		report.Details = append(report.Details, res)
	}
	return report, nil
}

// ResetReport summarizes a destructive full reset.
type ResetReport struct {
	UsersDeleted        int    `json:"usersDeleted"`
	TransactionsDeleted int64  `json:"transactionsDeleted"`
	KeptAddress         string `json:"keptAddress"`
}

// Reset deletes every transaction and every user except the reserved demo
// address, which is recreated with zeroed aggregates.
func (s *Service) Reset(ctx context.Context) (*ResetReport, error) {
	txDeleted, err := s.txs.DeleteAll(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to delete transactions: %w", err))
	}
	usersDeleted, err := s.users.ResetKeeping(ctx, s.demoAddress)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to reset users: %w", err))
	}

	s.logger.Warn("Full reset executed",
		zap.Int("users_deleted", usersDeleted),
		zap.Int64("transactions_deleted", txDeleted),
		zap.String("kept_address", s.demoAddress))
	s.pub.Publish(broadcast.NewLeaderboardUpdate(decimal.Zero, 1))

	return &ResetReport{
		UsersDeleted:        usersDeleted,
		TransactionsDeleted: txDeleted,
		KeptAddress:         s.demoAddress,
	}, nil
}
