package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/compozy/docqa/engine/core"
	"github.com/gosimple/slug"
	"github.com/redis/go-redis/v9"
)

const (
	redisDefaultVectorKey = "docqa_vectors"
	redisFieldText        = "text"
	redisFieldEmbedding   = "embedding"
	redisFieldMetadata    = "metadata"
)

// redisStore keeps each record in a hash and tracks membership in a set.
// Similarity is computed client side over the collection. Close only releases
// the client when the store dialed it itself.
type redisStore struct {
	client     redis.UniversalClient
	ownsClient bool
	prefix     string
	dimension  int
	maxTopK    int
}

func newRedisStore(ctx context.Context, cfg *Config) (Store, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("redis vector_db %q: invalid dsn: %w", cfg.ID, err)
	}
	if opt.Password == "" && cfg.APIKey != "" {
		opt.Password = cfg.APIKey
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // connection never became usable
		return nil, fmt.Errorf("redis vector_db %q: ping failed: %w", cfg.ID, err)
	}
	store := newRedisStoreWithClient(cfg, client)
	store.ownsClient = true
	return store, nil
}

func newRedisStoreWithClient(cfg *Config, client redis.UniversalClient) *redisStore {
	key := collectionSlug(cfg.Collection)
	if key == "" {
		key = redisDefaultVectorKey
	}
	return &redisStore{
		client:    client,
		prefix:    "docqa:vec:" + key,
		dimension: cfg.Dimension,
		maxTopK:   cfg.MaxTopK,
	}
}

// collectionSlug normalizes a collection name for use in keys and file names.
func collectionSlug(raw string) string {
	return slug.Make(raw)
}

func (r *redisStore) idsKey() string {
	return r.prefix + ":ids"
}

func (r *redisStore) recordKey(id string) string {
	return r.prefix + ":rec:" + id
}

func (r *redisStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for i := range records {
		rec := records[i]
		if err := checkDimension(fmt.Sprintf("record %q", rec.ID), len(rec.Embedding), r.dimension); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		embedding, err := json.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("redis: encode embedding for %q: %w", rec.ID, err)
		}
		metadata, err := json.Marshal(core.CloneMap(rec.Metadata))
		if err != nil {
			return fmt.Errorf("redis: encode metadata for %q: %w", rec.ID, err)
		}
		pipe.HSet(ctx, r.recordKey(rec.ID),
			redisFieldText, rec.Text,
			redisFieldEmbedding, string(embedding),
			redisFieldMetadata, string(metadata),
		)
		pipe.SAdd(ctx, r.idsKey(), rec.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert pipeline: %w", err)
	}
	return nil
}

func (r *redisStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension("query", len(query), r.dimension); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	topK := resolveTopK(opts.TopK, r.maxTopK)
	records, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(records))
	for i := range records {
		rec := records[i]
		if !metadataMatches(rec.Metadata, opts.Filters) {
			continue
		}
		score := cosineSimilarity(rec.Embedding, query)
		if opts.belowThreshold(score) {
			continue
		}
		matches = append(matches, Match{ID: rec.ID, Score: score, Text: rec.Text, Metadata: rec.Metadata})
	}
	return rankMatches(matches, topK), nil
}

func (r *redisStore) Delete(ctx context.Context, filter Filter) error {
	targets := make([]string, 0, len(filter.IDs))
	switch {
	case len(filter.IDs) > 0:
		targets = append(targets, filter.IDs...)
	case len(filter.Metadata) > 0:
		records, err := r.loadAll(ctx)
		if err != nil {
			return err
		}
		keep := filter.keepSet()
		for i := range records {
			if _, kept := keep[records[i].ID]; kept {
				continue
			}
			if metadataMatches(records[i].Metadata, filter.Metadata) {
				targets = append(targets, records[i].ID)
			}
		}
	}
	if len(targets) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, id := range targets {
		pipe.Del(ctx, r.recordKey(id))
		pipe.SRem(ctx, r.idsKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete records: %w", err)
	}
	return nil
}

func (r *redisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.idsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count: %w", err)
	}
	return int(n), nil
}

func (r *redisStore) Close(context.Context) error {
	if !r.ownsClient {
		return nil
	}
	return r.client.Close()
}

func (r *redisStore) loadAll(ctx context.Context) ([]Record, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: fetch records: %w", err)
	}
	records := make([]Record, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRedisRecord(ids[i], fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRedisRecord(id string, fields map[string]string) (Record, error) {
	rec := Record{ID: id, Text: fields[redisFieldText], Metadata: make(map[string]any)}
	if err := json.Unmarshal([]byte(fields[redisFieldEmbedding]), &rec.Embedding); err != nil {
		return Record{}, fmt.Errorf("redis: decode embedding for %q: %w", id, err)
	}
	if raw := fields[redisFieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("redis: decode metadata for %q: %w", id, err)
		}
	}
	return rec, nil
}
