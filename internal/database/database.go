package database

import (
	"fmt"
	"strings"

	"github.com/ksred/bistro-api/internal/config"
	"github.com/ksred/bistro-api/internal/database/migrations"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the configured store and runs migrations
func NewDatabase(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Driver != config.DriverPostgres {
		// SQLite has a single writer; one connection keeps transactions
		// from failing with SQLITE_BUSY and keeps :memory: databases alive.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates every table the API uses
func Migrate(db *gorm.DB) error {
	if err := migrations.CreateMenuAndInventory(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.CreateOrderLedger(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.CreateProcurement(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "restaurant.db"
	}
	if dsn == ":memory:" || strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}
