package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"chartfeed/pkg/storage/gormstore"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if needed) the SQLite chart database at path.
// ":memory:" keeps the database in process memory.
func Open(path string) (*gormstore.ChartStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// a single writer connection avoids "database is locked" between loops
	sqlDB.SetMaxOpenConns(1)

	return gormstore.New(db)
}
