package managers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/disturbancemonitor/internal/storage"
	"github.com/chrissnell/disturbancemonitor/internal/storage/redis"
	"github.com/chrissnell/disturbancemonitor/internal/storage/sqlite"
	"github.com/chrissnell/disturbancemonitor/internal/storage/timescaledb"
	"github.com/chrissnell/disturbancemonitor/pkg/config"
)

// Storage backend names, as reported by the health endpoint
const (
	BackendMemory      = "memory"
	BackendSQLite      = "sqlite"
	BackendTimescaleDB = "timescaledb"
	BackendRedis       = "redis"
)

// StorageManager holds the active pixel state backend and its health status
type StorageManager struct {
	Store   storage.Store
	Backend string
	Health  *storage.HealthManager
}

// NewStorageManager opens the storage backend named in the configuration.
// With no backend configured, state is kept in memory for the life of the
// process.
func NewStorageManager(ctx context.Context, c config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	s := &StorageManager{Health: storage.NewHealthManager()}

	var err error
	switch {
	case c.SQLite != nil:
		s.Backend = BackendSQLite
		s.Store, err = sqlite.New(c.SQLite.Path, logger)
	case c.TimescaleDB != nil:
		s.Backend = BackendTimescaleDB
		s.Store, err = timescaledb.New(ctx, c.TimescaleDB.ConnectionString, logger.Desugar())
	case c.Redis != nil:
		s.Backend = BackendRedis
		s.Store, err = redis.New(ctx, redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		}, logger)
	default:
		logger.Warn("no storage backend configured; pixel state will not survive a restart")
		s.Backend = BackendMemory
		s.Store = storage.NewMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("could not open %s storage backend: %w", s.Backend, err)
	}

	return s, nil
}

// StartHealthMonitor pings the backend every interval until ctx is done
func (s *StorageManager) StartHealthMonitor(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, logger *zap.SugaredLogger) {
	s.Health.StartHealthMonitor(ctx, wg, s.Backend, s.Store, interval, logger)
}

// Close releases the backend
func (s *StorageManager) Close() error {
	return s.Store.Close()
}
