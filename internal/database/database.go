package database

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jeftarmascarenhas/drex-temporary/internal/accesscontrol"
	"github.com/jeftarmascarenhas/drex-temporary/internal/bond"
	"github.com/jeftarmascarenhas/drex-temporary/internal/currency"
	"github.com/jeftarmascarenhas/drex-temporary/internal/directory"
	"github.com/jeftarmascarenhas/drex-temporary/internal/instrument"
	"github.com/jeftarmascarenhas/drex-temporary/internal/settlement"
)

// NewDatabase opens the ledger store and migrates the schema. Postgres is
// used when DATABASE_URL is set, otherwise a local sqlite file.
func NewDatabase() (*gorm.DB, error) {
	var dialector gorm.Dialector
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "drex.db"
		}
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the schema for every ledger model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&accesscontrol.RoleGrant{},
		&directory.Institution{},
		&instrument.Instrument{},
		&bond.Position{},
		&bond.EnabledAddress{},
		&currency.Account{},
		&currency.Allowance{},
		&settlement.Operation{},
		&settlement.Event{},
	)
}
