// Package storage selects and opens the configured crawler store backend.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/storage/memory"
	"github.com/JakeFAU/synapse-search/internal/storage/postgres"
	"github.com/JakeFAU/synapse-search/internal/storage/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects a backend and carries its connection settings.
type Config struct {
	Driver          string
	Path            string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	DisableFullText bool
}

// Open returns the store named by cfg.Driver. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (crawler.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Path, DisableFullText: cfg.DisableFullText}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", zap.String("driver", DriverSQLite), zap.String("path", cfg.Path), zap.Bool("full_text", s.FullText()))
		return s, nil
	case DriverPostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", zap.String("driver", DriverPostgres), zap.Bool("full_text", s.FullText()))
		return s, nil
	case DriverMemory:
		logger.Info("store opened", zap.String("driver", DriverMemory))
		return memory.New(logger), nil
	default:
		return nil, fmt.Errorf("unsupported database.driver %q", cfg.Driver)
	}
}
