package storage

import (
	"context"
	"fmt"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/log"
)

// New creates the store selected by cfg.Kind
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Kind {
	case config.StorageMemory, "":
		log.LogInfoWithFields("storage", "Using in-memory storage", nil)
		return NewMemoryStore(), nil
	case config.StorageRedis:
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": cfg.RedisAddr,
			"db":   cfg.RedisDB,
		})
		return NewRedisStore(ctx, cfg.RedisAddr, string(cfg.RedisPassword), cfg.RedisDB)
	case config.StorageSQLite:
		log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
			"path": cfg.SQLitePath,
		})
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		return NewFirestoreStore(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection)
	default:
		return nil, fmt.Errorf("unsupported storage kind: %s", cfg.Kind)
	}
}
