// Package leaderboard is the read-side projection over user point totals.
package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/meridianswap/points-middleware/pkg/app/errors"
	"github.com/meridianswap/points-middleware/pkg/auth"
	"github.com/meridianswap/points-middleware/pkg/user"
	"github.com/meridianswap/points-middleware/pkg/userstore"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// Entry is one leaderboard row with its collapsed rank.
type Entry struct {
	Rank       int             `json:"rank"`
	Address    string          `json:"address"`
	Points     decimal.Decimal `json:"points"`
	TotalSwaps int             `json:"totalSwaps"`
}

// Page is one leaderboard page plus global totals.
type Page struct {
	Entries           []Entry         `json:"entries"`
	TotalGlobalPoints decimal.Decimal `json:"totalGlobalPoints"`
	TotalUserCount    int             `json:"totalUserCount"`
	Page              int             `json:"page"`
	PageSize          int             `json:"pageSize"`
}

// Profile is a single user's aggregates with their leaderboard rank.
type Profile struct {
	Address     string          `json:"address"`
	Points      decimal.Decimal `json:"points"`
	TotalSwaps  int             `json:"totalSwaps"`
	TotalClaims int             `json:"totalClaims"`
	Rank        int             `json:"rank"`
}

// Service serves leaderboard pages and individual ranks.
type Service struct {
	users  userstore.Store
	logger *zap.Logger
}

// New creates the leaderboard service.
func New(users userstore.Store, logger *zap.Logger) *Service {
	return &Service{users: users, logger: logger}
}

// Page returns one leaderboard page ordered by points descending then total
// swaps descending. Ranks collapse for users equal on both keys.
func (s *Service) Page(ctx context.Context, limit, page int) (*Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page <= 0 {
		page = 1
	}

	stored, err := s.users.LeaderboardPage(ctx, limit, page)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to load leaderboard page: %w", err))
	}

	entries := make([]Entry, 0, len(stored.Users))
	var prev *user.User
	rank := (page-1)*limit + 1
	for i, usr := range stored.Users {
		if prev != nil && usr.Points.Equal(prev.Points) && usr.TotalSwaps == prev.TotalSwaps {
			// Tie on both keys shares the previous rank.
			entries = append(entries, Entry{
				Rank:       entries[i-1].Rank,
				Address:    usr.Address,
				Points:     usr.Points,
				TotalSwaps: usr.TotalSwaps,
			})
		} else {
			entries = append(entries, Entry{
				Rank:       rank,
				Address:    usr.Address,
				Points:     usr.Points,
				TotalSwaps: usr.TotalSwaps,
			})
		}
		rank++
		prev = usr
	}

	return &Page{
		Entries:           entries,
		TotalGlobalPoints: stored.TotalGlobalPoints,
		TotalUserCount:    stored.TotalUserCount,
		Page:              page,
		PageSize:          limit,
	}, nil
}

// Rank returns the 1-indexed rank for an address.
func (s *Service) Rank(ctx context.Context, address string) (int, error) {
	address = auth.NormalizeAddress(address)
	if !auth.ValidateAddress(address) {
		return 0, apperrors.BadRequestError(nil, "invalid wallet address")
	}

	rank, err := s.users.Rank(ctx, address)
	if err != nil {
		if errors.Is(err, userstore.ErrUserNotFound) {
			return 0, apperrors.ResourceNotFoundError(err, "user not found")
		}
		return 0, apperrors.GeneralError(fmt.Errorf("failed to compute rank: %w", err))
	}
	return rank, nil
}

// Profile returns the user's aggregates together with their rank.
func (s *Service) Profile(ctx context.Context, address string) (*Profile, error) {
	address = auth.NormalizeAddress(address)
	if !auth.ValidateAddress(address) {
		return nil, apperrors.BadRequestError(nil, "invalid wallet address")
	}

	usr, err := s.users.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, userstore.ErrUserNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "user not found")
		}
		return nil, apperrors.GeneralError(fmt.Errorf("failed to load user: %w", err))
	}
	rank, err := s.users.Rank(ctx, address)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to compute rank: %w", err))
	}

	return &Profile{
		Address:     usr.Address,
		Points:      usr.Points,
		TotalSwaps:  usr.TotalSwaps,
		TotalClaims: usr.TotalClaims,
		Rank:        rank,
	}, nil
}
