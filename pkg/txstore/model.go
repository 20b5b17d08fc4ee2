package txstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/meridianswap/points-middleware/pkg/transaction"
)

// TransactionDao is a data access object that maps directly to the 'transactions' table in PostgreSQL.
type TransactionDao struct {
	bun.BaseModel `bun:"table:transactions,alias:t"`
	ID            int64            `bun:"id,pk,autoincrement"`
	UserID        int64            `bun:"user_id,notnull"`
	Type          string           `bun:"type,notnull,type:varchar(32)"`
	Status        string           `bun:"status,notnull,type:varchar(16)"`
	TxHash        string           `bun:"tx_hash,type:varchar(128)"`
	TokenIn       string           `bun:"token_in,type:varchar(32)"`
	TokenOut      string           `bun:"token_out,type:varchar(32)"`
	AmountIn      string           `bun:"amount_in,type:varchar(78)"`
	AmountOut     string           `bun:"amount_out,type:varchar(78)"`
	Points        *decimal.Decimal `bun:"points,type:numeric(12,1)"`
	Timestamp     time.Time        `bun:"timestamp,notnull"`
	CreatedAt     time.Time        `bun:"created_at,nullzero,default:current_timestamp"`
}

// toTransactionDao converts a transaction.Transaction to TransactionDao.
func toTransactionDao(tx *transaction.Transaction) *TransactionDao {
	return &TransactionDao{
		ID:        tx.ID,
		UserID:    tx.UserID,
		Type:      string(tx.Type),
		Status:    string(tx.Status),
		TxHash:    tx.TxHash,
		TokenIn:   tx.TokenIn,
		TokenOut:  tx.TokenOut,
		AmountIn:  tx.AmountIn,
		AmountOut: tx.AmountOut,
		Points:    tx.Points,
		Timestamp: tx.Timestamp,
		CreatedAt: tx.CreatedAt,
	}
}

// toTransaction converts a TransactionDao to transaction.Transaction.
func toTransaction(dao *TransactionDao) *transaction.Transaction {
	return &transaction.Transaction{
		ID:        dao.ID,
		UserID:    dao.UserID,
		Type:      transaction.Type(dao.Type),
		Status:    transaction.Status(dao.Status),
		TxHash:    dao.TxHash,
		TokenIn:   dao.TokenIn,
		TokenOut:  dao.TokenOut,
		AmountIn:  dao.AmountIn,
		AmountOut: dao.AmountOut,
		Points:    dao.Points,
		Timestamp: dao.Timestamp,
		CreatedAt: dao.CreatedAt,
	}
}
