package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"musky.app/forecast/core/config"
	"musky.app/forecast/core/db"
)

// Backends carries the connections a ReportStore may be built on. Only the
// one matching the configured kind has to be set.
type Backends struct {
	DB    *db.DB
	Redis redis.UniversalClient
}

// NewReportStore builds the store selected by STORE_BACKEND.
func NewReportStore(kind config.StoreBackend, b Backends) (ReportStore, error) {
	switch kind {
	case config.StoreBackendPostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("postgres store requires a database connection")
		}
		return NewPostgresReportStore(b.DB), nil
	case config.StoreBackendRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		return NewRedisReportStore(b.Redis), nil
	case config.StoreBackendMemory:
		return NewMemoryReportStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
