package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/change-monitor/internal/config"
	"github.com/sells-group/change-monitor/internal/model"
)

// SnapshotStore persists the latest observed state of each URL.
type SnapshotStore interface {
	// GetLatest returns the most recent snapshot for url, or nil when none
	// has been recorded.
	GetLatest(ctx context.Context, url string) (*model.Snapshot, error)
	Put(ctx context.Context, snap *model.Snapshot) error
	// Prune removes snapshots taken before olderThan. The newest snapshot
	// of every URL is always kept.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// RunLog records completed monitoring runs.
type RunLog interface {
	SaveRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
}

// Store is the full persistence surface used by the CLI.
type Store interface {
	SnapshotStore
	RunLog
	Migrate(ctx context.Context) error
	Close() error
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	EntityID string
	Since    time.Time
	Limit    int
	Offset   int
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Open builds the store selected by cfg.Driver and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "memory":
		s = NewMemory()
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "change-monitor.db"
		}
		s, err = NewSQLite(path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "mongo":
		s, err = NewMongo(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
