package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"sigs.k8s.io/yaml"

	"github.com/crumbworks/querycache/pkg/config"
	"github.com/crumbworks/querycache/pkg/observability/logging"
	"github.com/crumbworks/querycache/pkg/observability/metrics"
)

// RedisStore is a SimilarityStore backed by Redis with the RediSearch vector
// index. Hard expiry maps onto native key TTLs, so expired entries disappear
// without a cleanup sweep; usage increments use HINCRBY and are atomic.
type RedisStore struct {
	client    *redis.Client
	config    *config.RedisConfig
	indexName string
	dimension int
}

// RedisStoreOptions contains configuration for Redis store initialization.
type RedisStoreOptions struct {
	Config *config.RedisConfig

	// ConfigPath loads a standalone backend config file when Config is nil
	// (Deprecated: prefer the inline config section)
	ConfigPath string

	// Dimension is the embedding dimensionality used when creating the index;
	// falls back to the index config's vector field dimension
	Dimension int
}

const redisScanPageSize = 1000

// NewRedisStore initializes a Redis-backed similarity store.
func NewRedisStore(options RedisStoreOptions) (*RedisStore, error) {
	var err error
	redisConfig := options.Config
	if redisConfig == nil {
		logging.Warnf("(Deprecated) RedisStore: loading config from %s", options.ConfigPath)
		redisConfig, err = loadRedisStoreConfig(options.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Redis config: %w", err)
		}
	}

	dimension := options.Dimension
	if dimension == 0 {
		dimension = redisConfig.Index.VectorField.Dimension
	}
	if dimension == 0 {
		return nil, fmt.Errorf("redis store requires an embedding dimension")
	}

	logging.Debugf("RedisStore: connecting to Redis at %s:%d",
		redisConfig.Connection.Host, redisConfig.Connection.Port)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisConfig.Connection.Host, redisConfig.Connection.Port),
		Password: redisConfig.Connection.Password,
		DB:       redisConfig.Connection.Database,
		Protocol: 2, // RESP2 for RediSearch compatibility
	})

	store := &RedisStore{
		client:    redisClient,
		config:    redisConfig,
		indexName: redisConfig.Index.Name,
		dimension: dimension,
	}

	if err := store.CheckConnection(); err != nil {
		redisClient.Close()
		return nil, err
	}

	if err := store.initializeIndex(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	logging.Debugf("RedisStore: initialization complete (index=%s, dimension=%d)",
		store.indexName, dimension)

	return store, nil
}

// loadRedisStoreConfig reads a standalone Redis config file (Deprecated).
func loadRedisStoreConfig(configPath string) (*config.RedisConfig, error) {
	if configPath == "" {
		return nil, fmt.Errorf("redis config path is required")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var redisConfig *config.RedisConfig
	if err := yaml.Unmarshal(data, &redisConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if redisConfig.Index.VectorField.Name == "" {
		redisConfig.Index.VectorField.Name = "embedding"
	}
	if redisConfig.Index.VectorField.MetricType == "" {
		redisConfig.Index.VectorField.MetricType = "COSINE"
	}
	if redisConfig.Index.IndexType == "" {
		redisConfig.Index.IndexType = "HNSW"
	}
	if redisConfig.Index.Prefix == "" {
		redisConfig.Index.Prefix = "querycache:"
	}

	return redisConfig, nil
}

// CheckConnection verifies the Redis connection is healthy.
func (s *RedisStore) CheckConnection() error {
	if s.client == nil {
		return fmt.Errorf("redis client is not initialized")
	}

	ctx := context.Background()
	if s.config != nil && s.config.Connection.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Connection.Timeout)*time.Second)
		defer cancel()
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection check failed: %w", err)
	}
	return nil
}

// initializeIndex creates the RediSearch index if needed.
func (s *RedisStore) initializeIndex() error {
	ctx := context.Background()

	_, err := s.client.FTInfo(ctx, s.indexName).Result()
	indexExists := err == nil

	if s.config.Development.DropIndexOnStartup && indexExists {
		if err := s.client.FTDropIndexWithArgs(ctx, s.indexName, &redis.FTDropIndexOptions{
			DeleteDocs: true,
		}).Err(); err != nil {
			return fmt.Errorf("failed to drop index: %w", err)
		}
		indexExists = false
		logging.LogEvent("index_dropped", map[string]interface{}{
			"backend": string(RedisStoreType),
			"index":   s.indexName,
			"reason":  "development_mode",
		})
	}

	if indexExists {
		return nil
	}
	if !s.config.Development.AutoCreateIndex {
		return fmt.Errorf("index %s does not exist and auto-creation is disabled", s.indexName)
	}
	return s.createIndex()
}

// createIndex builds the RediSearch schema over cache record hashes.
func (s *RedisStore) createIndex() error {
	ctx := context.Background()

	distanceMetric := s.config.Index.VectorField.MetricType
	switch distanceMetric {
	case "COSINE", "IP", "L2":
	default:
		logging.Warnf("RedisStore: unknown metric type %q, defaulting to COSINE", distanceMetric)
		distanceMetric = "COSINE"
	}

	var vectorArgs *redis.FTVectorArgs
	if s.config.Index.IndexType == "HNSW" {
		vectorArgs = &redis.FTVectorArgs{
			HNSWOptions: &redis.FTHNSWOptions{
				Type:                   "FLOAT32",
				Dim:                    s.dimension,
				DistanceMetric:         distanceMetric,
				MaxEdgesPerNode:        s.config.Index.Params.M,
				MaxAllowedEdgesPerNode: s.config.Index.Params.EfConstruction,
			},
		}
	} else {
		vectorArgs = &redis.FTVectorArgs{
			FlatOptions: &redis.FTFlatOptions{
				Type:           "FLOAT32",
				Dim:            s.dimension,
				DistanceMetric: distanceMetric,
			},
		}
	}

	err := s.client.FTCreate(ctx,
		s.indexName,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{s.config.Index.Prefix},
		},
		&redis.FieldSchema{
			FieldName: "question_hash",
			FieldType: redis.SearchFieldTypeTag,
		},
		&redis.FieldSchema{
			FieldName: "intent",
			FieldType: redis.SearchFieldTypeTag,
		},
		&redis.FieldSchema{
			FieldName: "question",
			FieldType: redis.SearchFieldTypeText,
			NoIndex:   true,
		},
		&redis.FieldSchema{
			FieldName: "answer",
			FieldType: redis.SearchFieldTypeText,
			NoIndex:   true,
		},
		&redis.FieldSchema{
			FieldName: "usage_count",
			FieldType: redis.SearchFieldTypeNumeric,
			Sortable:  true,
		},
		&redis.FieldSchema{
			FieldName: "is_pinned",
			FieldType: redis.SearchFieldTypeNumeric,
		},
		&redis.FieldSchema{
			FieldName: "created_at",
			FieldType: redis.SearchFieldTypeNumeric,
		},
		&redis.FieldSchema{
			FieldName:  s.vectorField(),
			FieldType:  redis.SearchFieldTypeVector,
			VectorArgs: vectorArgs,
		},
	).Err()
	if err != nil {
		return fmt.Errorf("failed to create Redis index: %w", err)
	}

	logging.LogEvent("index_created", map[string]interface{}{
		"backend":   string(RedisStoreType),
		"index":     s.indexName,
		"dimension": s.dimension,
	})
	return nil
}

func (s *RedisStore) vectorField() string {
	if s.config.Index.VectorField.Name != "" {
		return s.config.Index.VectorField.Name
	}
	return "embedding"
}

func (s *RedisStore) docKey(id string) string {
	if strings.HasPrefix(id, s.config.Index.Prefix) {
		return id
	}
	return s.config.Index.Prefix + id
}

var redisReturnFields = []redis.FTSearchReturn{
	{FieldName: "id"},
	{FieldName: "question"},
	{FieldName: "question_normalized"},
	{FieldName: "question_hash"},
	{FieldName: "answer"},
	{FieldName: "context_sources"},
	{FieldName: "intent"},
	{FieldName: "confidence"},
	{FieldName: "usage_count"},
	{FieldName: "is_pinned"},
	{FieldName: "created_at"},
	{FieldName: "last_used_at"},
	{FieldName: "expires_at"},
}

// GetByHash performs the exact-match point lookup by fingerprint.
func (s *RedisStore) GetByHash(ctx context.Context, questionHash string) (*CacheEntry, error) {
	start := time.Now()

	query := fmt.Sprintf("@question_hash:{%s}", questionHash)
	results, err := s.client.FTSearchWithArgs(ctx, s.indexName, query, &redis.FTSearchOptions{
		Return:      redisReturnFields,
		LimitOffset: 0,
		Limit:       1,
	}).Result()
	if err != nil {
		metrics.RecordCacheOperation(string(RedisStoreType), "get_by_hash", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("redis hash lookup failed: %w", err)
	}

	if results.Total == 0 {
		metrics.RecordCacheOperation(string(RedisStoreType), "get_by_hash", "miss", time.Since(start).Seconds())
		return nil, nil
	}

	entry, err := decodeRedisDoc(results.Docs[0])
	if err != nil {
		metrics.RecordCacheOperation(string(RedisStoreType), "get_by_hash", "error", time.Since(start).Seconds())
		return nil, nil
	}
	metrics.RecordCacheOperation(string(RedisStoreType), "get_by_hash", "hit", time.Since(start).Seconds())
	return entry, nil
}

// FindSimilar runs the KNN vector query. Expired keys are evicted by Redis
// itself, so no expiry filter is needed here.
func (s *RedisStore) FindSimilar(ctx context.Context, embedding []float32, threshold float32, topK int) ([]ScoredEntry, error) {
	start := time.Now()

	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("query embedding dimension %d does not match store dimension %d",
			len(embedding), s.dimension)
	}

	knnQuery := fmt.Sprintf("(*)=>[KNN %d @%s $vec AS vector_distance]", topK, s.vectorField())
	returnFields := append(append([]redis.FTSearchReturn{}, redisReturnFields...),
		redis.FTSearchReturn{FieldName: "vector_distance"})

	results, err := s.client.FTSearchWithArgs(ctx, s.indexName, knnQuery, &redis.FTSearchOptions{
		Return:         returnFields,
		SortBy:         []redis.FTSearchSortBy{{FieldName: "vector_distance", Asc: true}},
		DialectVersion: 2,
		Params: map[string]interface{}{
			"vec": floatsToBytes(embedding),
		},
		LimitOffset: 0,
		Limit:       topK,
	}).Result()
	if err != nil {
		metrics.RecordCacheOperation(string(RedisStoreType), "find_similar", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("redis vector search failed: %w", err)
	}

	var scored []ScoredEntry
	for _, doc := range results.Docs {
		entry, err := decodeRedisDoc(doc)
		if err != nil {
			logging.Warnf("RedisStore: dropping malformed document %s: %v", doc.ID, err)
			continue
		}

		distance, err := strconv.ParseFloat(fmt.Sprint(doc.Fields["vector_distance"]), 64)
		if err != nil {
			logging.Warnf("RedisStore: unparsable distance for document %s: %v", doc.ID, err)
			continue
		}
		similarity := s.distanceToSimilarity(distance)
		if similarity < threshold {
			continue
		}
		scored = append(scored, ScoredEntry{Entry: *entry, Similarity: similarity})
	}

	result := "miss"
	if len(scored) > 0 {
		result = "hit"
	}
	metrics.RecordCacheOperation(string(RedisStoreType), "find_similar", result, time.Since(start).Seconds())
	return scored, nil
}

// distanceToSimilarity converts the index distance into a [0,1] similarity
// according to the configured metric.
func (s *RedisStore) distanceToSimilarity(distance float64) float32 {
	switch s.config.Index.VectorField.MetricType {
	case "IP":
		return float32(distance)
	case "L2":
		return 1.0 / (1.0 + float32(distance))
	default: // COSINE distance is in [0,2]
		return 1.0 - float32(distance)/2.0
	}
}

// Insert persists an entry; hard expiry becomes a native key TTL.
func (s *RedisStore) Insert(ctx context.Context, entry *CacheEntry) error {
	start := time.Now()

	if len(entry.Embedding) != s.dimension {
		metrics.RecordCacheOperation(string(RedisStoreType), "insert", "error", time.Since(start).Seconds())
		return fmt.Errorf("entry embedding dimension %d does not match store dimension %d",
			len(entry.Embedding), s.dimension)
	}

	sourcesJSON, err := json.Marshal(entry.ContextSources)
	if err != nil {
		return fmt.Errorf("failed to encode context sources: %w", err)
	}

	var expiresAt int64
	if !entry.ExpiresAt.IsZero() {
		expiresAt = entry.ExpiresAt.Unix()
	}
	pinned := 0
	if entry.IsPinned {
		pinned = 1
	}

	key := s.docKey(entry.ID)
	hashFields := map[string]interface{}{
		"id":                  entry.ID,
		"question":            entry.Question,
		"question_normalized": entry.QuestionNormalized,
		"question_hash":       entry.QuestionHash,
		"answer":              entry.Answer,
		"context_sources":     string(sourcesJSON),
		"intent":              entry.Intent,
		"confidence":          fmt.Sprintf("%f", entry.Confidence),
		"usage_count":         entry.UsageCount,
		"is_pinned":           pinned,
		"created_at":          entry.CreatedAt.Unix(),
		"last_used_at":        entry.LastUsedAt.Unix(),
		"expires_at":          expiresAt,
		s.vectorField():       floatsToBytes(entry.Embedding),
	}

	if err := s.client.HSet(ctx, key, hashFields).Err(); err != nil {
		metrics.RecordCacheOperation(string(RedisStoreType), "insert", "error", time.Since(start).Seconds())
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	if !entry.ExpiresAt.IsZero() {
		ttl := time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}
		s.client.Expire(ctx, key, ttl)
	} else {
		// Replacing a key that previously carried a TTL must not inherit it.
		s.client.Persist(ctx, key)
	}

	logging.LogEvent("cache_entry_added", map[string]interface{}{
		"backend": string(RedisStoreType),
		"index":   s.indexName,
		"id":      entry.ID,
		"intent":  entry.Intent,
	})
	metrics.RecordCacheOperation(string(RedisStoreType), "insert", "success", time.Since(start).Seconds())
	return nil
}

// IncrementUsage bumps the usage counter atomically via HINCRBY.
func (s *RedisStore) IncrementUsage(ctx context.Context, id string) error {
	key := s.docKey(id)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check cache entry: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("cache entry not found: %s", id)
	}

	if err := s.client.HIncrBy(ctx, key, "usage_count", 1).Err(); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return s.client.HSet(ctx, key, "last_used_at", time.Now().Unix()).Err()
}

// Pin sets the pin flag on the entry matching the fingerprint.
func (s *RedisStore) Pin(ctx context.Context, questionHash string) error {
	query := fmt.Sprintf("@question_hash:{%s}", questionHash)
	results, err := s.client.FTSearchWithArgs(ctx, s.indexName, query, &redis.FTSearchOptions{
		Return:      []redis.FTSearchReturn{{FieldName: "id"}},
		LimitOffset: 0,
		Limit:       1,
	}).Result()
	if err != nil {
		return fmt.Errorf("redis hash lookup failed: %w", err)
	}
	if results.Total == 0 {
		return fmt.Errorf("cache entry not found for hash: %s", questionHash)
	}

	return s.client.HSet(ctx, results.Docs[0].ID, "is_pinned", 1).Err()
}

// TopEntries returns up to n entries ordered by descending usage count.
func (s *RedisStore) TopEntries(ctx context.Context, n int) ([]CacheEntry, error) {
	results, err := s.client.FTSearchWithArgs(ctx, s.indexName, "*", &redis.FTSearchOptions{
		Return:      redisReturnFields,
		SortBy:      []redis.FTSearchSortBy{{FieldName: "usage_count", Desc: true}},
		LimitOffset: 0,
		Limit:       n,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis search failed: %w", err)
	}

	entries := make([]CacheEntry, 0, len(results.Docs))
	for _, doc := range results.Docs {
		entry, err := decodeRedisDoc(doc)
		if err != nil {
			logging.Warnf("RedisStore: dropping malformed document %s: %v", doc.ID, err)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Cleanup deletes stale low-usage entries per policy. Hard-expired keys are
// already reaped by Redis TTLs and never count toward the returned total.
func (s *RedisStore) Cleanup(ctx context.Context, policy CleanupPolicy) (int, error) {
	start := time.Now()

	cutoff := time.Now().AddDate(0, 0, -policy.MaxAgeDays).Unix()
	query := fmt.Sprintf("@created_at:[-inf (%d] @usage_count:[-inf (%d]", cutoff, policy.MinUsageThreshold)
	if policy.KeepPinned {
		query += " @is_pinned:[0 0]"
	}

	removed := 0
	for {
		results, err := s.client.FTSearchWithArgs(ctx, s.indexName, query, &redis.FTSearchOptions{
			Return:      []redis.FTSearchReturn{{FieldName: "id"}},
			LimitOffset: 0,
			Limit:       redisScanPageSize,
		}).Result()
		if err != nil {
			metrics.RecordCacheOperation(string(RedisStoreType), "cleanup", "error", time.Since(start).Seconds())
			return removed, fmt.Errorf("redis cleanup search failed: %w", err)
		}
		if len(results.Docs) == 0 {
			break
		}

		keys := make([]string, 0, len(results.Docs))
		for _, doc := range results.Docs {
			keys = append(keys, doc.ID)
		}
		deleted, err := s.client.Del(ctx, keys...).Result()
		if err != nil {
			metrics.RecordCacheOperation(string(RedisStoreType), "cleanup", "error", time.Since(start).Seconds())
			return removed, fmt.Errorf("redis delete failed: %w", err)
		}
		removed += int(deleted)

		if len(results.Docs) < redisScanPageSize {
			break
		}
	}

	if removed > 0 {
		logging.LogEvent("cache_cleanup", map[string]interface{}{
			"backend": string(RedisStoreType),
			"stale":   removed,
		})
		metrics.RecordCacheEvictions(string(RedisStoreType), "stale", removed)
	}
	metrics.RecordCacheOperation(string(RedisStoreType), "cleanup", "success", time.Since(start).Seconds())
	return removed, nil
}

// Stats aggregates entry counts from FT.INFO and usage totals via a paged
// scan over the usage field.
func (s *RedisStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats

	info, err := s.client.FTInfo(ctx, s.indexName).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get index info: %w", err)
	}
	stats.TotalEntries = int64(info.NumDocs)

	offset := 0
	for {
		results, err := s.client.FTSearchWithArgs(ctx, s.indexName, "*", &redis.FTSearchOptions{
			Return:      []redis.FTSearchReturn{{FieldName: "usage_count"}},
			LimitOffset: offset,
			Limit:       redisScanPageSize,
		}).Result()
		if err != nil {
			return stats, fmt.Errorf("redis usage scan failed: %w", err)
		}
		for _, doc := range results.Docs {
			if v, err := strconv.ParseInt(fmt.Sprint(doc.Fields["usage_count"]), 10, 64); err == nil {
				stats.TotalUsage += v
			}
		}
		offset += len(results.Docs)
		if len(results.Docs) < redisScanPageSize {
			break
		}
	}

	if stats.TotalEntries > 0 {
		stats.AvgUsage = float64(stats.TotalUsage) / float64(stats.TotalEntries)
	}
	return stats, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// floatsToBytes converts a float32 slice to the little-endian byte layout the
// RediSearch vector field expects.
func floatsToBytes(fs []float32) []byte {
	buf := make([]byte, len(fs)*4)
	for i, f := range fs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeRedisDoc converts a search document into a validated entry.
func decodeRedisDoc(doc redis.Document) (*CacheEntry, error) {
	field := func(name string) string {
		if v, ok := doc.Fields[name]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}

	e := CacheEntry{
		ID:                 field("id"),
		Question:           field("question"),
		QuestionNormalized: field("question_normalized"),
		QuestionHash:       field("question_hash"),
		Answer:             field("answer"),
		Intent:             field("intent"),
	}

	if raw := field("context_sources"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &e.ContextSources)
	}
	if v, err := strconv.ParseFloat(field("confidence"), 32); err == nil {
		e.Confidence = float32(v)
	}
	if v, err := strconv.ParseInt(field("usage_count"), 10, 64); err == nil {
		e.UsageCount = v
	}
	e.IsPinned = field("is_pinned") == "1"
	if v, err := strconv.ParseInt(field("created_at"), 10, 64); err == nil {
		e.CreatedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(field("last_used_at"), 10, 64); err == nil {
		e.LastUsedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(field("expires_at"), 10, 64); err == nil && v > 0 {
		e.ExpiresAt = time.Unix(v, 0)
	}

	if err := validateEntry(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
