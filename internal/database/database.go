package database

import (
	"fmt"

	"github.com/centrixhq/centrix/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the shared control-plane store and ensures the schema is
// in place. Every cooperating process calls this against the same file; WAL
// mode plus a busy timeout lets short transactions from independent processes
// interleave safely.
func NewDatabase(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA temp_store=MEMORY;").Error; err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Meta{},
		&types.Command{},
		&types.Event{},
		&types.Approval{},
		&types.Lock{},
		&types.KVEntry{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := seedMeta(db); err != nil {
		return nil, fmt.Errorf("failed to seed meta: %w", err)
	}

	return db, nil
}

// seedMeta writes the schema version row exactly once.
func seedMeta(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.Meta{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&types.Meta{Version: types.SchemaVersion}).Error
}
