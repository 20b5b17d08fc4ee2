package pointsdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/meridianswap/points-middleware/pkg/pgutil/migrations"
	"github.com/meridianswap/points-middleware/pkg/txstore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &txstore.TransactionDao{}); err != nil {
			return err
		}
		// user_id and timestamp drive the day-bucket queries; tx_hash drives
		// sync deduplication.
		return mghelper.CreateModelIndexes(ctx, db, &txstore.TransactionDao{}, "user_id", "tx_hash", "timestamp", "type")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transactions table...")
		return mghelper.DropTables(ctx, db, &txstore.TransactionDao{})
	})
}
