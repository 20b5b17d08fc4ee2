package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/meridianswap/points-middleware/pkg/user"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the user store
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) GetByAddress(ctx context.Context, address string) (*user.User, error) {
	dao := new(UserDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", address).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return toUser(dao), nil
}

func (s *pgStore) GetByID(ctx context.Context, id int64) (*user.User, error) {
	dao := new(UserDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return toUser(dao), nil
}

func (s *pgStore) GetOrCreate(ctx context.Context, address string) (*user.User, error) {
	usr, err := s.GetByAddress(ctx, address)
	if err == nil {
		return usr, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	dao := toUserDao(user.New(address))
	// DO NOTHING keeps concurrent first-interaction writes from failing;
	// whichever insert lost the race is resolved by the re-read below.
	_, err = s.db.NewInsert().
		Model(dao).
		On("CONFLICT (address) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.GetByAddress(ctx, address)
}

func (s *pgStore) ListUsers(ctx context.Context) ([]*user.User, error) {
	var daos []UserDao
	err := s.db.NewSelect().Model(&daos).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]*user.User, len(daos))
	for i := range daos {
		users[i] = toUser(&daos[i])
	}
	return users, nil
}

func (s *pgStore) SetPoints(ctx context.Context, userID int64, value decimal.Decimal) error {
	res, err := s.db.NewUpdate().
		Model((*UserDao)(nil)).
		Set("points = ?", value).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set points: %w", err)
	}
	return requireRow(res)
}

func (s *pgStore) SetTotalSwaps(ctx context.Context, userID int64, totalSwaps int) error {
	res, err := s.db.NewUpdate().
		Model((*UserDao)(nil)).
		Set("total_swaps = ?", totalSwaps).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set total swaps: %w", err)
	}
	return requireRow(res)
}

func (s *pgStore) RecordClaim(ctx context.Context, userID int64, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*UserDao)(nil)).
		Set("total_claims = total_claims + 1").
		Set("last_claim = ?", at).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record claim: %w", err)
	}
	return requireRow(res)
}

func (s *pgStore) Totals(ctx context.Context) (decimal.Decimal, int, error) {
	var totals struct {
		Points decimal.Decimal
		Count  int
	}
	err := s.db.NewSelect().
		Model((*UserDao)(nil)).
		ColumnExpr("COALESCE(SUM(points), 0) AS points").
		ColumnExpr("COUNT(*) AS count").
		Scan(ctx, &totals.Points, &totals.Count)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to get totals: %w", err)
	}
	return totals.Points, totals.Count, nil
}

func (s *pgStore) LeaderboardPage(ctx context.Context, limit, page int) (*Page, error) {
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}

	var daos []UserDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("points DESC", "total_swaps DESC", "id ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	totalPoints, userCount, err := s.Totals(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]*user.User, len(daos))
	for i := range daos {
		users[i] = toUser(&daos[i])
	}
	return &Page{
		Users:             users,
		TotalGlobalPoints: totalPoints,
		TotalUserCount:    userCount,
	}, nil
}

func (s *pgStore) Rank(ctx context.Context, address string) (int, error) {
	me, err := s.GetByAddress(ctx, address)
	if err != nil {
		return 0, err
	}

	ahead, err := s.db.NewSelect().
		Model((*UserDao)(nil)).
		Where("points > ? OR (points = ? AND total_swaps > ?)", me.Points, me.Points, me.TotalSwaps).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute rank: %w", err)
	}
	return ahead + 1, nil
}

func (s *pgStore) ResetKeeping(ctx context.Context, keepAddress string) (int, error) {
	var deleted int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*UserDao)(nil)).
			Where("address != ?", keepAddress).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete users: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		deleted = int(rows)

		// The kept user survives with zeroed aggregates, recreated if absent.
		kept := toUserDao(user.New(keepAddress))
		_, err = tx.NewInsert().
			Model(kept).
			On("CONFLICT (address) DO UPDATE").
			Set("points = 0").
			Set("total_swaps = 0").
			Set("total_claims = 0").
			Set("last_claim = NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to reset kept user: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
