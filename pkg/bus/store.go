package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/morezero/servicebus/pkg/db"
)

const storeLogPrefix = "bus:store"

const storeTimeout = 5 * time.Second

// ConfigStore persists service configuration. *db.Repository implements it
// on Postgres; MemoryStore keeps it in process.
type ConfigStore interface {
	SaveServiceConfig(ctx context.Context, sc *db.ServiceConfig) error
	GetServiceConfig(ctx context.Context, fullname string) (*db.ServiceConfig, error)
}

// MemoryStore is an in-process ConfigStore.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]db.ServiceConfig
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]db.ServiceConfig)}
}

// SaveServiceConfig stores a copy of sc.
func (m *MemoryStore) SaveServiceConfig(_ context.Context, sc *db.ServiceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	saved := *sc
	saved.Config = append([]byte(nil), sc.Config...)
	if old, ok := m.configs[sc.Fullname]; ok {
		saved.Created = old.Created
		saved.Revision = old.Revision + 1
	} else {
		saved.Created = now
		saved.Revision = 1
	}
	saved.Modified = now
	m.configs[sc.Fullname] = saved
	*sc = saved
	return nil
}

// GetServiceConfig returns the stored config, or nil if none.
func (m *MemoryStore) GetServiceConfig(_ context.Context, fullname string) (*db.ServiceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.configs[fullname]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

// SaveServiceConfig persists the config of a service through the store.
func (rt *Runtime) SaveServiceConfig(fullname, typeKey string, config map[string]any) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("%s - failed to encode config for %s: %w", storeLogPrefix, fullname, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := rt.store.SaveServiceConfig(ctx, &db.ServiceConfig{Fullname: fullname, TypeKey: typeKey, Config: data}); err != nil {
		return fmt.Errorf("%s - failed to save config for %s: %w", storeLogPrefix, fullname, err)
	}
	return nil
}

// LoadServiceConfig returns the stored config of a service, or nil if none.
func (rt *Runtime) LoadServiceConfig(fullname string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	sc, err := rt.store.GetServiceConfig(ctx, fullname)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load config for %s: %w", storeLogPrefix, fullname, err)
	}
	if sc == nil || len(sc.Config) == 0 {
		return nil, nil
	}

	var cfg map[string]any
	if err := json.Unmarshal(sc.Config, &cfg); err != nil {
		return nil, fmt.Errorf("%s - stored config for %s is not a JSON object: %w", storeLogPrefix, fullname, err)
	}
	return cfg, nil
}
