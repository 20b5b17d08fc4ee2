package userstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/meridianswap/points-middleware/pkg/user"
)

// UserDao is a data access object that maps directly to the 'users' table in PostgreSQL.
type UserDao struct {
	bun.BaseModel `bun:"table:users,alias:u"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Address       string          `bun:"address,unique,notnull,type:varchar(42)"`
	Points        decimal.Decimal `bun:"points,notnull,type:numeric(12,1)"`
	TotalSwaps    int             `bun:"total_swaps,notnull"`
	TotalClaims   int             `bun:"total_claims,notnull"`
	LastClaim     *time.Time      `bun:"last_claim"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
}

// toUserDao converts a user.User to UserDao.
func toUserDao(usr *user.User) *UserDao {
	return &UserDao{
		ID:          usr.ID,
		Address:     usr.Address,
		Points:      usr.Points,
		TotalSwaps:  usr.TotalSwaps,
		TotalClaims: usr.TotalClaims,
		LastClaim:   usr.LastClaim,
		CreatedAt:   usr.CreatedAt,
	}
}

// toUser converts a UserDao to user.User.
func toUser(dao *UserDao) *user.User {
	return &user.User{
		ID:          dao.ID,
		Address:     dao.Address,
		Points:      dao.Points,
		TotalSwaps:  dao.TotalSwaps,
		TotalClaims: dao.TotalClaims,
		LastClaim:   dao.LastClaim,
		CreatedAt:   dao.CreatedAt,
	}
}
