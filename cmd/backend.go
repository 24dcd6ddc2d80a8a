package cmd

import (
	"fmt"

	"dsatutor/internal/config"
	"dsatutor/internal/persist"
	"dsatutor/internal/redis"
	"dsatutor/internal/storage"
)

// openBackend returns the key-value store selected by storage.backend and a
// func releasing it.
func openBackend(cfg *config.Config) (persist.KV, func() error, error) {
	backend := config.CanonicalBackend(cfg.Storage.Backend)
	switch backend {
	case "sqlite3", "mysql":
		db, err := storage.Open(backend, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.Migrate(db, backend); err != nil {
			db.Close()
			return nil, nil, err
		}
		return storage.NewKVStore(db, backend), db.Close, nil
	case "redis":
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case "memory":
		return persist.NewMemoryKV(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
