package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"sigs.k8s.io/yaml"

	"github.com/crumbworks/querycache/pkg/config"
	"github.com/crumbworks/querycache/pkg/observability/logging"
	"github.com/crumbworks/querycache/pkg/observability/metrics"
)

// MilvusStore is a SimilarityStore backed by the Milvus vector database.
//
// IncrementUsage on Milvus is query-then-upsert: Milvus has no atomic counter
// primitive, so concurrent increments for the same entry are last-writer-wins.
// Deployments that need lossless usage accounting should use the Redis
// backend.
type MilvusStore struct {
	client         client.Client
	config         *config.MilvusConfig
	collectionName string
	dimension      int
}

// MilvusStoreOptions contains configuration for Milvus store initialization.
type MilvusStoreOptions struct {
	Config *config.MilvusConfig

	// ConfigPath loads a standalone backend config file when Config is nil
	// (Deprecated: prefer the inline config section)
	ConfigPath string

	// Dimension is the embedding dimensionality used when creating the
	// collection; falls back to the collection config's vector field dimension
	Dimension int
}

// NewMilvusStore initializes a Milvus-backed similarity store.
func NewMilvusStore(options MilvusStoreOptions) (*MilvusStore, error) {
	var err error
	milvusConfig := options.Config
	if milvusConfig == nil {
		logging.Warnf("(Deprecated) MilvusStore: loading config from %s", options.ConfigPath)
		milvusConfig, err = loadMilvusStoreConfig(options.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Milvus config: %w", err)
		}
	}

	dimension := options.Dimension
	if dimension == 0 {
		dimension = milvusConfig.Collection.VectorField.Dimension
	}
	if dimension == 0 {
		return nil, fmt.Errorf("milvus store requires an embedding dimension")
	}

	connectionString := fmt.Sprintf("%s:%d", milvusConfig.Connection.Host, milvusConfig.Connection.Port)
	logging.Debugf("MilvusStore: connecting to Milvus at %s", connectionString)
	dialCtx := context.Background()
	if milvusConfig.Connection.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(dialCtx, time.Duration(milvusConfig.Connection.Timeout)*time.Second)
		defer cancel()
	}
	milvusClient, err := client.NewGrpcClient(dialCtx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create Milvus client: %w", err)
	}

	store := &MilvusStore{
		client:         milvusClient,
		config:         milvusConfig,
		collectionName: milvusConfig.Collection.Name,
		dimension:      dimension,
	}

	if err := store.CheckConnection(); err != nil {
		milvusClient.Close()
		return nil, err
	}

	if err := store.initializeCollection(); err != nil {
		milvusClient.Close()
		return nil, fmt.Errorf("failed to initialize collection: %w", err)
	}
	logging.Debugf("MilvusStore: initialization complete (collection=%s, dimension=%d)",
		store.collectionName, dimension)

	return store, nil
}

// loadMilvusStoreConfig reads a standalone Milvus config file (Deprecated).
func loadMilvusStoreConfig(configPath string) (*config.MilvusConfig, error) {
	if configPath == "" {
		return nil, fmt.Errorf("milvus config path is required")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var milvusConfig *config.MilvusConfig
	if err := yaml.Unmarshal(data, &milvusConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults for fields the file may omit
	if milvusConfig.Collection.VectorField.Name == "" {
		milvusConfig.Collection.VectorField.Name = "embedding"
	}
	if milvusConfig.Collection.VectorField.MetricType == "" {
		milvusConfig.Collection.VectorField.MetricType = "IP"
	}
	if milvusConfig.Collection.Index.Type == "" {
		milvusConfig.Collection.Index.Type = "HNSW"
	}
	if milvusConfig.Collection.Index.Params.M == 0 {
		milvusConfig.Collection.Index.Params.M = 16
	}
	if milvusConfig.Collection.Index.Params.EfConstruction == 0 {
		milvusConfig.Collection.Index.Params.EfConstruction = 64
	}
	if milvusConfig.Search.Params.Ef == 0 {
		milvusConfig.Search.Params.Ef = 64
	}

	return milvusConfig, nil
}

// initializeCollection sets up the Milvus collection and index structures.
func (s *MilvusStore) initializeCollection() error {
	ctx := context.Background()

	hasCollection, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if s.config.Development.DropCollectionOnStartup && hasCollection {
		if err := s.client.DropCollection(ctx, s.collectionName); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
		hasCollection = false
		logging.LogEvent("collection_dropped", map[string]interface{}{
			"backend":    string(MilvusStoreType),
			"collection": s.collectionName,
			"reason":     "development_mode",
		})
	}

	if !hasCollection {
		if !s.config.Development.AutoCreateCollection {
			return fmt.Errorf("collection %s does not exist and auto-creation is disabled", s.collectionName)
		}
		if err := s.createCollection(); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		logging.LogEvent("collection_created", map[string]interface{}{
			"backend":    string(MilvusStoreType),
			"collection": s.collectionName,
			"dimension":  s.dimension,
		})
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	return nil
}

// createCollection builds the collection with the cache record schema.
func (s *MilvusStore) createCollection() error {
	ctx := context.Background()

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    s.config.Collection.Description,
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "question",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "question_normalized",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "question_hash",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "answer",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "context_sources",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "intent",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:     "confidence",
				DataType: entity.FieldTypeFloat,
			},
			{
				Name:     "usage_count",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "is_pinned",
				DataType: entity.FieldTypeBool,
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "last_used_at",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "expires_at",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     s.vectorField(),
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.dimension),
				},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, 1); err != nil {
		return err
	}

	index, err := entity.NewIndexHNSW(
		entity.MetricType(s.metricType()),
		s.config.Collection.Index.Params.M,
		s.config.Collection.Index.Params.EfConstruction,
	)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index: %w", err)
	}
	return s.client.CreateIndex(ctx, s.collectionName, s.vectorField(), index, false)
}

func (s *MilvusStore) vectorField() string {
	if s.config.Collection.VectorField.Name != "" {
		return s.config.Collection.VectorField.Name
	}
	return "embedding"
}

func (s *MilvusStore) metricType() string {
	if s.config.Collection.VectorField.MetricType != "" {
		return s.config.Collection.VectorField.MetricType
	}
	return "IP"
}

// scalarFields lists every non-vector column of the record schema.
var milvusScalarFields = []string{
	"id", "question", "question_normalized", "question_hash", "answer",
	"context_sources", "intent", "confidence", "usage_count", "is_pinned",
	"created_at", "last_used_at", "expires_at",
}

// CheckConnection verifies the Milvus connection is healthy.
func (s *MilvusStore) CheckConnection() error {
	if s.client == nil {
		return fmt.Errorf("milvus client is not initialized")
	}

	ctx := context.Background()
	if s.config != nil && s.config.Connection.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Connection.Timeout)*time.Second)
		defer cancel()
	}

	if _, err := s.client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus connection check failed: %w", err)
	}
	return nil
}

// GetByHash performs the exact-match point lookup by fingerprint.
func (s *MilvusStore) GetByHash(ctx context.Context, questionHash string) (*CacheEntry, error) {
	start := time.Now()

	expr := fmt.Sprintf("question_hash == %q", questionHash)
	results, err := s.client.Query(ctx, s.collectionName, []string{}, expr, milvusScalarFields)
	if err != nil {
		metrics.RecordCacheOperation(string(MilvusStoreType), "get_by_hash", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("milvus hash lookup failed: %w", err)
	}

	entries, err := decodeMilvusRows(results, nil)
	if err != nil {
		metrics.RecordCacheOperation(string(MilvusStoreType), "get_by_hash", "error", time.Since(start).Seconds())
		return nil, err
	}
	if len(entries) == 0 {
		metrics.RecordCacheOperation(string(MilvusStoreType), "get_by_hash", "miss", time.Since(start).Seconds())
		return nil, nil
	}

	metrics.RecordCacheOperation(string(MilvusStoreType), "get_by_hash", "hit", time.Since(start).Seconds())
	return &entries[0], nil
}

// FindSimilar performs the nearest-neighbor query with an expiry filter.
func (s *MilvusStore) FindSimilar(ctx context.Context, embedding []float32, threshold float32, topK int) ([]ScoredEntry, error) {
	start := time.Now()

	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("query embedding dimension %d does not match store dimension %d",
			len(embedding), s.dimension)
	}

	searchParam, err := entity.NewIndexHNSWSearchParam(s.config.Search.Params.Ef)
	if err != nil {
		return nil, fmt.Errorf("failed to create search parameters: %w", err)
	}

	now := time.Now().Unix()
	filterExpr := fmt.Sprintf("expires_at == 0 || expires_at > %d", now)

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		filterExpr,
		milvusScalarFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		s.vectorField(),
		entity.MetricType(s.metricType()),
		topK,
		searchParam,
	)
	if err != nil {
		metrics.RecordCacheOperation(string(MilvusStoreType), "find_similar", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResult) == 0 || searchResult[0].ResultCount == 0 {
		metrics.RecordCacheOperation(string(MilvusStoreType), "find_similar", "miss", time.Since(start).Seconds())
		return nil, nil
	}

	entries, err := decodeMilvusRows(searchResult[0].Fields, searchResult[0].IDs)
	if err != nil {
		metrics.RecordCacheOperation(string(MilvusStoreType), "find_similar", "error", time.Since(start).Seconds())
		return nil, err
	}

	var scored []ScoredEntry
	for i := range entries {
		if i >= len(searchResult[0].Scores) {
			break
		}
		score := searchResult[0].Scores[i]
		if score < threshold {
			continue
		}
		scored = append(scored, ScoredEntry{Entry: entries[i], Similarity: score})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })

	result := "miss"
	if len(scored) > 0 {
		result = "hit"
	}
	metrics.RecordCacheOperation(string(MilvusStoreType), "find_similar", result, time.Since(start).Seconds())
	return scored, nil
}

// Insert persists a new entry and flushes it to storage.
func (s *MilvusStore) Insert(ctx context.Context, entry *CacheEntry) error {
	start := time.Now()

	if len(entry.Embedding) != s.dimension {
		metrics.RecordCacheOperation(string(MilvusStoreType), "insert", "error", time.Since(start).Seconds())
		return fmt.Errorf("entry embedding dimension %d does not match store dimension %d",
			len(entry.Embedding), s.dimension)
	}

	if err := s.upsertEntry(ctx, entry); err != nil {
		metrics.RecordCacheOperation(string(MilvusStoreType), "insert", "error", time.Since(start).Seconds())
		return err
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		logging.Warnf("MilvusStore: failed to flush entry: %v", err)
	}

	logging.LogEvent("cache_entry_added", map[string]interface{}{
		"backend":    string(MilvusStoreType),
		"collection": s.collectionName,
		"id":         entry.ID,
		"intent":     entry.Intent,
	})
	metrics.RecordCacheOperation(string(MilvusStoreType), "insert", "success", time.Since(start).Seconds())
	return nil
}

// upsertEntry writes a full record row.
func (s *MilvusStore) upsertEntry(ctx context.Context, entry *CacheEntry) error {
	sourcesJSON, err := json.Marshal(entry.ContextSources)
	if err != nil {
		return fmt.Errorf("failed to encode context sources: %w", err)
	}

	var expiresAt int64
	if !entry.ExpiresAt.IsZero() {
		expiresAt = entry.ExpiresAt.Unix()
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("id", []string{entry.ID}),
		entity.NewColumnVarChar("question", []string{entry.Question}),
		entity.NewColumnVarChar("question_normalized", []string{entry.QuestionNormalized}),
		entity.NewColumnVarChar("question_hash", []string{entry.QuestionHash}),
		entity.NewColumnVarChar("answer", []string{entry.Answer}),
		entity.NewColumnVarChar("context_sources", []string{string(sourcesJSON)}),
		entity.NewColumnVarChar("intent", []string{entry.Intent}),
		entity.NewColumnFloat("confidence", []float32{entry.Confidence}),
		entity.NewColumnInt64("usage_count", []int64{entry.UsageCount}),
		entity.NewColumnBool("is_pinned", []bool{entry.IsPinned}),
		entity.NewColumnInt64("created_at", []int64{entry.CreatedAt.Unix()}),
		entity.NewColumnInt64("last_used_at", []int64{entry.LastUsedAt.Unix()}),
		entity.NewColumnInt64("expires_at", []int64{expiresAt}),
		entity.NewColumnFloatVector(s.vectorField(), s.dimension, [][]float32{entry.Embedding}),
	}

	if _, err := s.client.Upsert(ctx, s.collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// IncrementUsage bumps the usage counter. Milvus has no atomic counter, so
// this is a read-modify-upsert: concurrent increments for the same entry may
// collapse into one. Documented backend limitation.
func (s *MilvusStore) IncrementUsage(ctx context.Context, id string) error {
	entry, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("cache entry not found: %s", id)
	}

	entry.UsageCount++
	entry.LastUsedAt = time.Now()
	return s.upsertEntry(ctx, entry)
}

// Pin sets the pin flag on the entry matching the fingerprint.
func (s *MilvusStore) Pin(ctx context.Context, questionHash string) error {
	entry, err := s.getByHashWithEmbedding(ctx, questionHash)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("cache entry not found for hash: %s", questionHash)
	}

	entry.IsPinned = true
	return s.upsertEntry(ctx, entry)
}

// TopEntries returns up to n entries ordered by descending usage count.
// Milvus queries have no order-by, so ordering happens here.
func (s *MilvusStore) TopEntries(ctx context.Context, n int) ([]CacheEntry, error) {
	results, err := s.client.Query(ctx, s.collectionName, []string{}, "usage_count >= 0", milvusScalarFields)
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	entries, err := decodeMilvusRows(results, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UsageCount > entries[j].UsageCount })
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// Cleanup deletes hard-expired rows, then stale low-usage rows per policy.
func (s *MilvusStore) Cleanup(ctx context.Context, policy CleanupPolicy) (int, error) {
	start := time.Now()
	now := time.Now()

	expiredExpr := fmt.Sprintf("expires_at > 0 && expires_at < %d", now.Unix())
	expired, err := s.deleteByExpr(ctx, expiredExpr)
	if err != nil {
		metrics.RecordCacheOperation(string(MilvusStoreType), "cleanup", "error", time.Since(start).Seconds())
		return 0, err
	}

	cutoff := now.AddDate(0, 0, -policy.MaxAgeDays).Unix()
	staleExpr := fmt.Sprintf("created_at < %d && usage_count < %d", cutoff, policy.MinUsageThreshold)
	if policy.KeepPinned {
		staleExpr += " && is_pinned == false"
	}
	stale, err := s.deleteByExpr(ctx, staleExpr)
	if err != nil {
		metrics.RecordCacheOperation(string(MilvusStoreType), "cleanup", "error", time.Since(start).Seconds())
		return expired, err
	}

	evicted := expired + stale
	if evicted > 0 {
		logging.LogEvent("cache_cleanup", map[string]interface{}{
			"backend": string(MilvusStoreType),
			"expired": expired,
			"stale":   stale,
		})
		metrics.RecordCacheEvictions(string(MilvusStoreType), "expired", expired)
		metrics.RecordCacheEvictions(string(MilvusStoreType), "stale", stale)
	}
	metrics.RecordCacheOperation(string(MilvusStoreType), "cleanup", "success", time.Since(start).Seconds())
	return evicted, nil
}

// deleteByExpr counts then deletes rows matching a boolean expression.
func (s *MilvusStore) deleteByExpr(ctx context.Context, expr string) (int, error) {
	results, err := s.client.Query(ctx, s.collectionName, []string{}, expr, []string{"id"})
	if err != nil {
		return 0, fmt.Errorf("milvus cleanup query failed: %w", err)
	}

	count := 0
	for _, col := range results {
		if idCol, ok := col.(*entity.ColumnVarChar); ok && idCol.Name() == "id" {
			count = idCol.Len()
		}
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.client.Delete(ctx, s.collectionName, "", expr); err != nil {
		return 0, fmt.Errorf("milvus delete failed: %w", err)
	}
	return count, nil
}

// Stats aggregates entry counts and usage. Row count comes from collection
// statistics; usage totals require a scan since Milvus has no SUM aggregate.
func (s *MilvusStore) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats

	collStats, err := s.client.GetCollectionStatistics(ctx, s.collectionName)
	if err != nil {
		return stats, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	if rowCount, ok := collStats["row_count"]; ok {
		_, _ = fmt.Sscanf(rowCount, "%d", &stats.TotalEntries)
	}

	results, err := s.client.Query(ctx, s.collectionName, []string{}, "usage_count >= 0", []string{"usage_count"})
	if err != nil {
		return stats, fmt.Errorf("milvus usage query failed: %w", err)
	}
	for _, col := range results {
		if usageCol, ok := col.(*entity.ColumnInt64); ok && usageCol.Name() == "usage_count" {
			for _, v := range usageCol.Data() {
				stats.TotalUsage += v
			}
		}
	}
	if stats.TotalEntries > 0 {
		stats.AvgUsage = float64(stats.TotalUsage) / float64(stats.TotalEntries)
	}
	return stats, nil
}

// Close releases the Milvus client.
func (s *MilvusStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// getByID fetches a full row including its embedding, needed to rebuild the
// record for an upsert.
func (s *MilvusStore) getByID(ctx context.Context, id string) (*CacheEntry, error) {
	return s.queryOneWithEmbedding(ctx, fmt.Sprintf("id == %q", id))
}

func (s *MilvusStore) getByHashWithEmbedding(ctx context.Context, questionHash string) (*CacheEntry, error) {
	return s.queryOneWithEmbedding(ctx, fmt.Sprintf("question_hash == %q", questionHash))
}

func (s *MilvusStore) queryOneWithEmbedding(ctx context.Context, expr string) (*CacheEntry, error) {
	fields := append(append([]string{}, milvusScalarFields...), s.vectorField())
	results, err := s.client.Query(ctx, s.collectionName, []string{}, expr, fields)
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	entries, err := decodeMilvusRows(results, nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// decodeMilvusRows converts result columns into validated entries. Columns
// are mapped by name, tolerating whatever order Milvus returns them in; the
// optional idColumn covers search results, where the primary key arrives
// separately from the output fields.
func decodeMilvusRows(columns []entity.Column, idColumn entity.Column) ([]CacheEntry, error) {
	rowCount := 0
	for _, col := range columns {
		if col.Len() > rowCount {
			rowCount = col.Len()
		}
	}
	if idColumn != nil && idColumn.Len() > rowCount {
		rowCount = idColumn.Len()
	}
	if rowCount == 0 {
		return nil, nil
	}

	entries := make([]CacheEntry, 0, rowCount)
	for i := 0; i < rowCount; i++ {
		var e CacheEntry

		assign := func(col entity.Column) {
			if i >= col.Len() {
				return
			}
			switch c := col.(type) {
			case *entity.ColumnVarChar:
				val := c.Data()[i]
				switch c.Name() {
				case "id":
					e.ID = val
				case "question":
					e.Question = val
				case "question_normalized":
					e.QuestionNormalized = val
				case "question_hash":
					e.QuestionHash = val
				case "answer":
					e.Answer = val
				case "context_sources":
					if val != "" {
						_ = json.Unmarshal([]byte(val), &e.ContextSources)
					}
				case "intent":
					e.Intent = val
				}
			case *entity.ColumnFloat:
				if c.Name() == "confidence" {
					e.Confidence = c.Data()[i]
				}
			case *entity.ColumnInt64:
				val := c.Data()[i]
				switch c.Name() {
				case "usage_count":
					e.UsageCount = val
				case "created_at":
					e.CreatedAt = time.Unix(val, 0)
				case "last_used_at":
					e.LastUsedAt = time.Unix(val, 0)
				case "expires_at":
					if val > 0 {
						e.ExpiresAt = time.Unix(val, 0)
					}
				}
			case *entity.ColumnBool:
				if c.Name() == "is_pinned" {
					e.IsPinned = c.Data()[i]
				}
			case *entity.ColumnFloatVector:
				e.Embedding = c.Data()[i]
			}
		}

		for _, col := range columns {
			assign(col)
		}
		if idColumn != nil {
			assign(idColumn)
		}

		if err := validateEntry(&e); err != nil {
			logging.Warnf("MilvusStore: dropping malformed row %d: %v", i, err)
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}
