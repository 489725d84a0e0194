package cache

import (
	"fmt"

	"github.com/crumbworks/querycache/pkg/config"
	"github.com/crumbworks/querycache/pkg/observability/logging"
)

// NewSimilarityStore creates a similarity store from the cache settings.
// dimension is the embedding dimensionality the store must enforce; 0 lets
// backends that support it adopt the first inserted vector's length.
func NewSimilarityStore(settings config.CacheSettings, dimension int) (SimilarityStore, error) {
	switch StoreBackendType(settings.BackendType) {
	case MemoryStoreType, "":
		logging.Debugf("Creating in-memory store - dimension: %d, maxEntries: %d",
			dimension, settings.MaxEntries)
		return NewMemoryStore(MemoryStoreOptions{
			Dimension:  dimension,
			MaxEntries: settings.MaxEntries,
		}), nil

	case MilvusStoreType:
		options := MilvusStoreOptions{Dimension: dimension}
		if settings.Milvus != nil {
			logging.Debugf("Creating Milvus store - collection: %s, dimension: %d",
				settings.Milvus.Collection.Name, dimension)
			options.Config = settings.Milvus
		} else {
			logging.Debugf("(Deprecated) Creating Milvus store - configPath: %s", settings.BackendConfigPath)
			options.ConfigPath = settings.BackendConfigPath
		}
		return NewMilvusStore(options)

	case RedisStoreType:
		options := RedisStoreOptions{Dimension: dimension}
		if settings.Redis != nil {
			logging.Debugf("Creating Redis store - index: %s, dimension: %d",
				settings.Redis.Index.Name, dimension)
			options.Config = settings.Redis
		} else {
			logging.Debugf("(Deprecated) Creating Redis store - configPath: %s", settings.BackendConfigPath)
			options.ConfigPath = settings.BackendConfigPath
		}
		return NewRedisStore(options)

	default:
		return nil, fmt.Errorf("unsupported store backend type: %s", settings.BackendType)
	}
}
