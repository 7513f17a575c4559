package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"keyhub/internal/engine/licensing"
	"keyhub/internal/platform/config"
	"keyhub/internal/platform/database"
)

const (
	DriverMemory   = "memory"
	DriverJSONFile = "jsonfile"
	DriverSQLite   = "sqlite"
)

// Backend is a licensing.Repository the process can health-check and close.
type Backend interface {
	licensing.Repository
	Ping(ctx context.Context) error
	Close() error
}

// Storage is the opened store. DB is set only for the sqlite driver and is
// shared with the audit log.
type Storage struct {
	Backend Backend
	DB      *sql.DB
}

func (s *Storage) Close() error {
	return s.Backend.Close()
}

func Open(cfg config.StorageConfig) (*Storage, error) {
	switch cfg.Driver {
	case DriverMemory:
		return &Storage{Backend: NewMemoryRepository()}, nil

	case DriverJSONFile, "":
		repo, err := NewJSONFileRepository(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return &Storage{Backend: repo}, nil

	case DriverSQLite:
		db, err := database.Open(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if cfg.SQLite.AutoMigrate {
			if err := database.Migrate(db, "up"); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		return &Storage{Backend: NewSQLiteRepository(db), DB: db}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
