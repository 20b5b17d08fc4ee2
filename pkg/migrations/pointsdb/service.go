// Package pointsdb holds all the migrations for the points database
package pointsdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the points database
var Migrations = migrate.NewMigrations()
