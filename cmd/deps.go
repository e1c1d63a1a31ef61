package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/directory/postgres"
)

// openDirectory connects to the person directory and applies pending
// migrations. The caller owns the returned pool.
func openDirectory(ctx context.Context, cfg *config.Config) (*postgres.Pool, *postgres.Repository, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to the person directory: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return pool, postgres.NewRepository(pool), nil
}
