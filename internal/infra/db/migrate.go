package db

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/rs-labo46/ec-fulfillment/migrations"
)

func setupGoose() error {
	goose.SetBaseFS(migrations.FS)
	return goose.SetDialect("postgres")
}

// MigrateUpは未適用のマイグレーションをすべて適用する
func MigrateUp(ctx context.Context, gdb *gorm.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrateDownは最後の1つを戻す
func MigrateDown(ctx context.Context, gdb *gorm.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if err := goose.DownContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

func MigrationVersion(ctx context.Context, gdb *gorm.DB) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return v, nil
}
