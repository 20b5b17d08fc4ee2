package txstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/meridianswap/points-middleware/pkg/points"
	"github.com/meridianswap/points-middleware/pkg/transaction"
)

type pgStore struct {
	db     *bun.DB
	rawDB  *sql.DB
	writer *dualWriter
	logger *zap.Logger
}

// NewStore creates the postgres transaction store. db is the bun primary
// path; rawDB is a separate database/sql connection to the same database used
// as the fallback write path.
func NewStore(db *bun.DB, rawDB *sql.DB, logger *zap.Logger) Store {
	s := &pgStore{db: db, rawDB: rawDB, logger: logger}
	s.writer = &dualWriter{
		primary:  s.insertORM,
		fallback: s.insertRaw,
		logger:   logger,
	}
	return s
}

func (s *pgStore) Insert(ctx context.Context, tx *transaction.Transaction) error {
	return s.writer.insert(ctx, tx)
}

// insertORM is the primary write path through bun.
func (s *pgStore) insertORM(ctx context.Context, tx *transaction.Transaction) error {
	dao := toTransactionDao(tx)
	_, err := s.db.NewInsert().
		Model(dao).
		Returning("id, created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	tx.ID = dao.ID
	tx.CreatedAt = dao.CreatedAt
	return nil
}

// insertRaw is the fallback write path: a raw parameterized statement against
// the same relation with the same normalized values. Points travels as its
// decimal text form so both paths store an identical value.
func (s *pgStore) insertRaw(ctx context.Context, tx *transaction.Transaction) error {
	var pointsParam any
	if tx.Points != nil {
		pointsParam = tx.Points.String()
	}

	query := `
		INSERT INTO transactions (user_id, type, status, tx_hash, token_in, token_out, amount_in, amount_out, points, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := s.rawDB.QueryRowContext(
		ctx,
		query,
		tx.UserID,
		string(tx.Type),
		string(tx.Status),
		tx.TxHash,
		tx.TokenIn,
		tx.TokenOut,
		tx.AmountIn,
		tx.AmountOut,
		pointsParam,
		tx.Timestamp,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("fallback insert failed: %w", err)
	}
	return nil
}

func (s *pgStore) UpdatePoints(ctx context.Context, id int64, pts decimal.Decimal) error {
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("points = ?", pts).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update points: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *pgStore) List(ctx context.Context, q Query) ([]*transaction.Transaction, int, error) {
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}

	var daos []TransactionDao
	query := s.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", q.UserID)
	if q.Type != nil {
		query = query.Where("type = ?", string(*q.Type))
	}

	total, err := query.
		Order("timestamp DESC", "id DESC").
		Limit(q.PageSize).
		Offset((q.Page - 1) * q.PageSize).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}

	txs := make([]*transaction.Transaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs, total, nil
}

func (s *pgStore) ListCompletedByUser(ctx context.Context, userID int64) ([]*transaction.Transaction, error) {
	var daos []TransactionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", userID).
		Where("status = ?", string(transaction.StatusCompleted)).
		Order("timestamp ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed transactions: %w", err)
	}

	txs := make([]*transaction.Transaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs, nil
}

func (s *pgStore) CountForDay(ctx context.Context, userID int64, typ transaction.Type, day time.Time) (int, error) {
	start := points.DayOf(day)
	end := start.Add(24 * time.Hour)

	count, err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Where("user_id = ?", userID).
		Where("type = ?", string(typ)).
		Where("status = ?", string(transaction.StatusCompleted)).
		Where(`"timestamp" >= ? AND "timestamp" < ?`, start, end).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count day transactions: %w", err)
	}
	return count, nil
}

func (s *pgStore) RankWithinDay(ctx context.Context, userID int64, typ transaction.Type, ts time.Time, excludeID int64) (int, error) {
	start := points.DayOf(ts)
	end := start.Add(24 * time.Hour)

	query := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Where("user_id = ?", userID).
		Where("type = ?", string(typ)).
		Where("status = ?", string(transaction.StatusCompleted)).
		Where(`"timestamp" >= ? AND "timestamp" < ?`, start, end)
	if excludeID > 0 {
		query = query.Where("id < ?", excludeID)
	}

	before, err := query.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute day rank: %w", err)
	}
	return before + 1, nil
}

func (s *pgStore) CountByUserAndType(ctx context.Context, userID int64, typ transaction.Type) (int, error) {
	count, err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Where("user_id = ?", userID).
		Where("type = ?", string(typ)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (s *pgStore) ExistingHashes(ctx context.Context, userID int64, hashes []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return existing, nil
	}

	var found []string
	err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Column("tx_hash").
		Where("user_id = ?", userID).
		Where("tx_hash IN (?)", bun.In(hashes)).
		Scan(ctx, &found)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing hashes: %w", err)
	}

	for _, h := range found {
		existing[h] = true
	}
	return existing, nil
}

func (s *pgStore) NormalizePoints(ctx context.Context, typ transaction.Type, canonical decimal.Decimal) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("points = ?", canonical).
		Where("type = ?", string(typ)).
		Where("status = ?", string(transaction.StatusCompleted)).
		Where("points IS NOT NULL").
		Where("points != 0").
		Where("points != ?", canonical).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to normalize points: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (s *pgStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*TransactionDao)(nil)).
		Where("TRUE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
