// Command fetscrctl administers a fetscr deployment: schema migrations,
// plan assignments and account usage.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/cache"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/config"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/database"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/quota"
)

func main() {
	if err := newRootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// connect opens the database, and the page cache when enabled
func connect(ctx context.Context, configPath string) (*backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(os.Stderr, "warn")

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := database.NewRepository(db, logger)

	b := &backend{
		accounts: repo,
		ledger:   quota.NewLedger(repo),
		history:  repo,
		migrate: func(ctx context.Context) (int64, error) {
			if err := db.Migrate(ctx); err != nil {
				return 0, err
			}
			return db.SchemaVersion(ctx)
		},
		close: db.Close,
	}

	if cfg.Redis.Enabled {
		pageCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PageTTL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		b.flushCache = func(ctx context.Context) error {
			return pageCache.DeletePattern(ctx, cache.PagePattern)
		}
		b.close = func() {
			pageCache.Close()
			db.Close()
		}
	}

	return b, nil
}
