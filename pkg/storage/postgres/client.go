package postgres

import (
	"context"
	"fmt"

	"chartfeed/config"
	"chartfeed/pkg/storage/gormstore"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewClient opens a gorm connection for dsn.
func NewClient(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// InitializeChartStore connects to Postgres, optionally creates the database,
// applies the pool settings and migrates the candle table.
func InitializeChartStore(ctx context.Context, cfg config.PostgresConfig, params config.ParameterReader, createDB bool) (*gormstore.ChartStore, error) {
	dsn, err := cfg.DSN(ctx, params)
	if err != nil {
		return nil, err
	}
	if createDB {
		adminDSN, err := cfg.AdminDSN(ctx, params)
		if err != nil {
			return nil, err
		}
		if err := CreateDatabase(ctx, adminDSN, cfg.DBName); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	db, err := NewClient(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store, err := gormstore.New(db)
	if err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return store, nil
}
