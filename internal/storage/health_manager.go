package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health is the last known status of a storage backend.
type Health struct {
	LastCheck time.Time `json:"last_check"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthManager keeps storage health status in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]Health
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]Health),
	}
}

// UpdateHealth updates the health status for a storage backend
func (hm *HealthManager) UpdateHealth(backend string, h Health) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.health[backend] = h
}

// GetHealth retrieves the health status for a specific storage backend
func (hm *HealthManager) GetHealth(backend string) (Health, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	h, ok := hm.health[backend]
	return h, ok
}

// GetAllHealth returns a copy of every backend's status.
func (hm *HealthManager) GetAllHealth() map[string]Health {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]Health, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy reports whether every known backend passed its last check.
func (hm *HealthManager) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	for _, h := range hm.health {
		if h.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Check pings s once and records the outcome under backend.
func (hm *HealthManager) Check(ctx context.Context, backend string, s Store) Health {
	h := Health{LastCheck: time.Now(), Status: StatusHealthy, Message: backend + " connection active"}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		h.Status = StatusUnhealthy
		h.Message = "ping failed"
		h.Error = err.Error()
	}

	hm.UpdateHealth(backend, h)
	return h
}

// StartHealthMonitor checks s immediately and then every interval until ctx
// is cancelled.
func (hm *HealthManager) StartHealthMonitor(ctx context.Context, wg *sync.WaitGroup, backend string, s Store, interval time.Duration, logger *zap.SugaredLogger) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		hm.Check(ctx, backend, s)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if h := hm.Check(ctx, backend, s); h.Status != StatusHealthy {
					logger.Warnf("storage backend %s is unhealthy: %s", backend, h.Error)
				}
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", backend)
				return
			}
		}
	}()
}
