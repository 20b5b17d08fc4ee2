package pointsdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/meridianswap/points-middleware/pkg/pgutil/migrations"
	"github.com/meridianswap/points-middleware/pkg/userstore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating users table...")
		if err := mghelper.CreateSchema(ctx, db, &userstore.UserDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelUniqueIndexes(ctx, db, &userstore.UserDao{}, "address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping users table...")
		return mghelper.DropTables(ctx, db, &userstore.UserDao{})
	})
}
