// Package database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/guestgate/guestgate/internal/config"
)

var (
	instance *pgxpool.Pool
	once     sync.Once
)

func InitPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	var err error
	once.Do(func() {
		var poolCfg *pgxpool.Config
		poolCfg, err = pgxpool.ParseConfig(cfg.Database.GetDSN())
		if err != nil {
			return
		}
		if cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.MaxIdleConns > 0 {
			poolCfg.MinConns = int32(cfg.Database.MaxIdleConns)
		}
		if cfg.Database.ConnMaxLifetimeMinutes > 0 {
			poolCfg.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute
		}

		instance, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return
		}

		if err = instance.Ping(ctx); err != nil {
			return
		}
	})

	return instance, err
}

// RunMigrations runs all pending database migrations using embedded SQL files.
// The migrations are compiled into the binary and don't require external files.
// goose works over database/sql, so a short-lived stdlib connection is opened
// next to the pgx pool.
func RunMigrations(cfg *config.Config) error {
	db, err := sql.Open("pgx", cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	// Configure goose to use the embedded filesystem
	goose.SetBaseFS(EmbeddedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	// Run migrations from the embedded "migrations" directory
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	return nil
}

func Close() {
	if instance != nil {
		instance.Close()
	}
}
