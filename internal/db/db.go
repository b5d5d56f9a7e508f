package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BruksfildServices01/clinic-sync/internal/config"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// cacheTables are dropped and recreated on a schema version mismatch.
var cacheTables = []any{
	&models.Appointment{},
	&models.Prescription{},
	&models.Notification{},
	&models.SyncLog{},
}

func NewDB(cfg *config.Config) *gorm.DB {
	db, err := Open(cfg.LocalDBDSN, cfg.UsesPostgres())
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	return db
}

// Open connects to the local store and brings it to SchemaVersion.
func Open(dsn string, usePostgres bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if usePostgres {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(sqliteDSN(dsn))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	if usePostgres {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	} else {
		// one writer and WAL readers; a single pooled connection keeps
		// transactions from tripping SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

func sqliteDSN(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func ensureSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.SchemaMeta{}); err != nil {
		return fmt.Errorf("migrate schema_meta: %w", err)
	}

	var meta models.SchemaMeta
	res := db.Limit(1).Find(&meta, 1)
	switch {
	case res.Error != nil:
		return fmt.Errorf("read schema version: %w", res.Error)
	case res.RowsAffected == 0:
		meta = models.SchemaMeta{ID: 1, Version: models.SchemaVersion}
	case meta.Version != models.SchemaVersion:
		log.Printf("local schema v%d != v%d, recreating cache", meta.Version, models.SchemaVersion)
		if err := db.Migrator().DropTable(cacheTables...); err != nil {
			return fmt.Errorf("drop cache tables: %w", err)
		}
		meta.Version = models.SchemaVersion
	}

	if err := db.AutoMigrate(cacheTables...); err != nil {
		return fmt.Errorf("migrate cache tables: %w", err)
	}
	return db.Save(&meta).Error
}
