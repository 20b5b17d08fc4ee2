// Package tracker is the transaction ingestion path: it validates incoming
// events, appends them to the transaction log, computes awards under the
// daily cap policy and feeds the points ledger. Reaching the daily swap cap
// triggers a deferred per-user reconciliation, since the cap boundary is
// where concurrent awards are most likely to have drifted the total.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianswap/points-middleware/internal/metrics"
	apperrors "github.com/meridianswap/points-middleware/pkg/app/errors"
	"github.com/meridianswap/points-middleware/pkg/auth"
	"github.com/meridianswap/points-middleware/pkg/ledger"
	"github.com/meridianswap/points-middleware/pkg/points"
	"github.com/meridianswap/points-middleware/pkg/reconciler"
	"github.com/meridianswap/points-middleware/pkg/transaction"
	"github.com/meridianswap/points-middleware/pkg/txstore"
	"github.com/meridianswap/points-middleware/pkg/user"
	"github.com/meridianswap/points-middleware/pkg/userstore"
)

// Reconciler recomputes a single user's total from the transaction log.
type Reconciler interface {
	RecalculateUser(ctx context.Context, userID int64) (*reconciler.UserResult, error)
}

// Service records transactions and applies the reward policy.
type Service struct {
	users  userstore.Store
	txs    txstore.Store
	ledger *ledger.Ledger
	recon  Reconciler
	policy points.Policy
	logger *zap.Logger

	settleDelay time.Duration
	syncTrigger bool
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithSettleDelay sets how long the cap-boundary reconciliation waits for the
// triggering write to settle before recomputing.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Service) { s.settleDelay = d }
}

// WithSyncTrigger runs the cap-boundary reconciliation inline instead of
// deferred. Used by tests that need deterministic ordering.
func WithSyncTrigger() Option {
	return func(s *Service) { s.syncTrigger = true }
}

// New creates the tracker service.
func New(users userstore.Store, txs txstore.Store, lgr *ledger.Ledger, recon Reconciler, policy points.Policy, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		users:       users,
		txs:         txs,
		ledger:      lgr,
		recon:       recon,
		policy:      policy,
		logger:      logger,
		settleDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordRequest is a single incoming transaction event.
type RecordRequest struct {
	Address   string           `json:"address" validate:"required"`
	Type      string           `json:"type" validate:"required"`
	Status    string           `json:"status" validate:"required"`
	TxHash    string           `json:"txHash"`
	TokenIn   string           `json:"tokenIn"`
	TokenOut  string           `json:"tokenOut"`
	AmountIn  string           `json:"amountIn"`
	AmountOut string           `json:"amountOut"`
	Points    *decimal.Decimal `json:"points"`
	Score     *int             `json:"score"`
	MaxScore  *int             `json:"maxScore"`
	Timestamp *time.Time       `json:"timestamp"`
}

// RecordResult reports a recorded transaction and its effect on the ledger.
type RecordResult struct {
	Transaction   *transaction.Transaction `json:"transaction"`
	PointsAwarded decimal.Decimal          `json:"pointsAwarded"`
	TotalPoints   decimal.Decimal          `json:"totalPoints"`
}

// Record validates and appends one transaction, computes its award and
// credits the owner's ledger. An explicit points value in the request is
// stored verbatim and credited as-is; the policy calculator is only consulted
// when the caller leaves points unset.
func (s *Service) Record(ctx context.Context, req *RecordRequest) (*RecordResult, error) {
	address := auth.NormalizeAddress(req.Address)
	if !auth.ValidateAddress(address) {
		return nil, apperrors.BadRequestError(nil, "invalid wallet address")
	}
	typ := transaction.Type(req.Type)
	if !typ.Valid() {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown transaction type %q", req.Type))
	}
	status := transaction.Status(req.Status)
	if !status.Valid() {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown transaction status %q", req.Status))
	}

	usr, err := s.users.GetOrCreate(ctx, address)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to resolve user: %w", err))
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	tx := &transaction.Transaction{
		UserID:    usr.ID,
		Type:      typ,
		Status:    status,
		TxHash:    req.TxHash,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.AmountIn,
		AmountOut: req.AmountOut,
		Points:    req.Points,
		Timestamp: ts,
	}
	if err := s.txs.Insert(ctx, tx); err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to store transaction: %w", err))
	}
	metrics.TransactionsRecorded.WithLabelValues(string(typ), string(status)).Inc()

	award, rank, err := s.awardFor(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if tx.Points == nil {
		if err := s.txs.UpdatePoints(ctx, tx.ID, award); err != nil {
			return nil, apperrors.GeneralError(fmt.Errorf("failed to back-fill points: %w", err))
		}
		tx.Points = &award
	}

	total := usr.Points
	if !award.IsZero() {
		total, err = s.ledger.Increment(ctx, usr.ID, award)
		if err != nil {
			return nil, apperrors.GeneralError(fmt.Errorf("failed to credit ledger: %w", err))
		}
	}

	if err := s.refreshAggregates(ctx, usr, tx); err != nil {
		return nil, err
	}

	if typ == transaction.TypeSwap && status == transaction.StatusCompleted && rank == s.policy.DailyCap {
		s.triggerCapReconcile(usr.ID, address)
	}

	return &RecordResult{Transaction: tx, PointsAwarded: award, TotalPoints: total}, nil
}

// awardFor determines the points for a freshly inserted row. Returns the
// award and, for swaps, the row's 1-indexed rank within its UTC day.
func (s *Service) awardFor(ctx context.Context, tx *transaction.Transaction, req *RecordRequest) (decimal.Decimal, int, error) {
	rank := 0
	if tx.Type == transaction.TypeSwap && tx.Completed() {
		r, err := s.txs.RankWithinDay(ctx, tx.UserID, tx.Type, tx.Timestamp, tx.ID)
		if err != nil {
			return decimal.Zero, 0, apperrors.GeneralError(fmt.Errorf("failed to compute day rank: %w", err))
		}
		rank = r
	}

	// Explicit points assert caller authority; nothing is recomputed.
	if tx.Points != nil {
		return *tx.Points, rank, nil
	}

	if tx.Type == transaction.TypeQuiz && tx.Completed() && req.Score != nil && req.MaxScore != nil {
		first, err := s.firstCompletedQuiz(ctx, tx)
		if err != nil {
			return decimal.Zero, 0, apperrors.GeneralError(err)
		}
		if first {
			return s.policy.QuizAward(*req.Score, *req.MaxScore), rank, nil
		}
		return decimal.Zero, rank, nil
	}

	return s.policy.Award(tx.Type, tx.Status, rank), rank, nil
}

// firstCompletedQuiz reports whether tx is the user's first completed quiz.
// Quiz awards fire once; resubmissions earn nothing.
func (s *Service) firstCompletedQuiz(ctx context.Context, tx *transaction.Transaction) (bool, error) {
	completed, err := s.txs.ListCompletedByUser(ctx, tx.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to list completed transactions: %w", err)
	}
	for _, row := range completed {
		if row.Type == transaction.TypeQuiz && row.ID != tx.ID {
			return false, nil
		}
	}
	return true, nil
}

// refreshAggregates keeps the cheap user counters honest after every append.
func (s *Service) refreshAggregates(ctx context.Context, usr *user.User, tx *transaction.Transaction) error {
	swapCount, err := s.txs.CountByUserAndType(ctx, usr.ID, transaction.TypeSwap)
	if err != nil {
		return apperrors.GeneralError(fmt.Errorf("failed to count swaps: %w", err))
	}
	if err := s.users.SetTotalSwaps(ctx, usr.ID, swapCount); err != nil {
		return apperrors.GeneralError(fmt.Errorf("failed to refresh swap counter: %w", err))
	}

	if tx.Type == transaction.TypeFaucetClaim && tx.Completed() {
		if err := s.users.RecordClaim(ctx, usr.ID, tx.Timestamp); err != nil {
			return apperrors.GeneralError(fmt.Errorf("failed to record claim: %w", err))
		}
	}
	return nil
}

// triggerCapReconcile schedules a per-user reconciliation after the cap was
// just reached. Deferred with a short settle delay so the triggering write
// lands first; failures are logged, never surfaced to the triggering request.
func (s *Service) triggerCapReconcile(userID int64, address string) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.recon.RecalculateUser(ctx, userID); err != nil {
			metrics.ErrorsTotal.WithLabelValues("tracker").Inc()
			s.logger.Error("Cap-boundary reconciliation failed",
				zap.Int64("user_id", userID),
				zap.String("address", address),
				zap.Error(err))
		}
	}

	s.logger.Info("Daily swap cap reached, scheduling reconciliation",
		zap.Int64("user_id", userID),
		zap.String("address", address))
	if s.syncTrigger {
		run()
		return
	}
	time.AfterFunc(s.settleDelay, run)
}

// SyncRequest replays externally observed events for one wallet.
type SyncRequest struct {
	Address      string           `json:"address" validate:"required"`
	Transactions []*RecordRequest `json:"transactions" validate:"required,dive"`
}

// SyncResult summarizes a bulk sync.
type SyncResult struct {
	Synced      int             `json:"synced"`
	Skipped     int             `json:"skipped"`
	TotalPoints decimal.Decimal `json:"totalPoints"`
}

// Sync appends a batch of externally observed events, deduplicating against
// the user's existing txHash values. Events without a hash cannot be
// deduplicated and are rejected.
func (s *Service) Sync(ctx context.Context, req *SyncRequest) (*SyncResult, error) {
	address := auth.NormalizeAddress(req.Address)
	if !auth.ValidateAddress(address) {
		return nil, apperrors.BadRequestError(nil, "invalid wallet address")
	}

	hashes := make([]string, 0, len(req.Transactions))
	for _, item := range req.Transactions {
		if item.TxHash == "" {
			return nil, apperrors.BadRequestError(nil, "sync transactions require a txHash")
		}
		hashes = append(hashes, item.TxHash)
	}

	usr, err := s.users.GetOrCreate(ctx, address)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to resolve user: %w", err))
	}
	existing, err := s.txs.ExistingHashes(ctx, usr.ID, hashes)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to query existing hashes: %w", err))
	}

	res := &SyncResult{}
	seen := make(map[string]bool, len(hashes))
	for _, item := range req.Transactions {
		if existing[item.TxHash] || seen[item.TxHash] {
			res.Skipped++
			continue
		}
		seen[item.TxHash] = true

		item.Address = address
		recorded, err := s.Record(ctx, item)
		if err != nil {
			return nil, err
		}
		res.Synced++
		res.TotalPoints = recorded.TotalPoints
	}

	if res.Synced > 0 {
		s.logger.Info("Synced external transactions",
			zap.String("address", address),
			zap.Int("synced", res.Synced),
			zap.Int("skipped", res.Skipped))
	}
	if res.TotalPoints.IsZero() {
		current, err := s.ledger.Read(ctx, usr.ID)
		if err == nil {
			res.TotalPoints = current
		}
	}
	return res, nil
}

// ListResult is one page of a user's transaction history, newest first.
type ListResult struct {
	Transactions []*transaction.Transaction `json:"transactions"`
	Total        int                        `json:"total"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"pageSize"`
}

// List returns a page of the user's transactions, optionally filtered by type.
func (s *Service) List(ctx context.Context, address string, typ *transaction.Type, page, pageSize int) (*ListResult, error) {
	address = auth.NormalizeAddress(address)
	if !auth.ValidateAddress(address) {
		return nil, apperrors.BadRequestError(nil, "invalid wallet address")
	}
	if typ != nil && !typ.Valid() {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown transaction type %q", string(*typ)))
	}

	usr, err := s.users.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, userstore.ErrUserNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "user not found")
		}
		return nil, apperrors.GeneralError(fmt.Errorf("failed to load user: %w", err))
	}

	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	txs, total, err := s.txs.List(ctx, txstore.Query{UserID: usr.ID, Type: typ, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to list transactions: %w", err))
	}
	return &ListResult{Transactions: txs, Total: total, Page: page, PageSize: pageSize}, nil
}
