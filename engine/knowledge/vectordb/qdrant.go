package vectordb

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/compozy/docqa/engine/core"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	qdrantDefaultTimeout = 10 * time.Second
	qdrantTextKey        = "text"
	qdrantRecordIDKey    = "record_id"
)

type qdrantStore struct {
	client     *resty.Client
	collection string
	dimension  int
	maxTopK    int
}

// qdrantSearchResult captures the fields returned by Qdrant search responses.
type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantError struct {
	Status any `json:"status"`
}

func newQdrantStore(ctx context.Context, cfg *Config) (Store, error) {
	base := strings.TrimRight(cfg.DSN, "/")
	collection := cfg.Collection
	if collection == "" {
		collection = cfg.ID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = qdrantDefaultTimeout
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	store := &qdrantStore{
		client:     client,
		collection: collection,
		dimension:  cfg.Dimension,
		maxTopK:    cfg.MaxTopK,
	}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (q *qdrantStore) collectionPath(suffix string) string {
	return "/collections/" + q.collection + suffix
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	resp, err := q.client.R().SetContext(ctx).Get(q.collectionPath(""))
	if err != nil {
		return fmt.Errorf("qdrant: inspect collection: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("qdrant: inspect collection: unexpected status %d", resp.StatusCode())
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	return q.do(ctx, http.MethodPut, q.collectionPath(""), body, nil)
}

// pointID maps arbitrary record IDs onto the UUIDs Qdrant accepts.
func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

// buildQdrantFilter builds the request filter payload for Qdrant operations.
func buildQdrantFilter(filters map[string]string) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	must := make([]any, 0, len(filters))
	for key, val := range filters {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": val},
		})
	}
	return map[string]any{"must": must}
}

// mapQdrantResults converts Qdrant search results into matches.
func mapQdrantResults(results []qdrantSearchResult, opts SearchOptions) []Match {
	matches := make([]Match, 0, len(results))
	for _, res := range results {
		if opts.belowThreshold(res.Score) {
			continue
		}
		payload := core.CloneMap(res.Payload)
		id := fmt.Sprint(res.ID)
		if raw, ok := payload[qdrantRecordIDKey].(string); ok {
			id = raw
		}
		text, _ := payload[qdrantTextKey].(string) //nolint:errcheck // absent text stays empty
		delete(payload, qdrantTextKey)
		delete(payload, qdrantRecordIDKey)
		matches = append(matches, Match{ID: id, Score: res.Score, Text: text, Metadata: payload})
	}
	return matches
}

func (q *qdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]any, 0, len(records))
	for i := range records {
		rec := records[i]
		if err := checkDimension(fmt.Sprintf("record %q", rec.ID), len(rec.Embedding), q.dimension); err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		payload := core.CloneMap(rec.Metadata)
		payload[qdrantTextKey] = rec.Text
		payload[qdrantRecordIDKey] = rec.ID
		points = append(points, map[string]any{
			"id":      pointID(rec.ID),
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}
	return q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (q *qdrantStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension("query", len(query), q.dimension); err != nil {
		return nil, fmt.Errorf("qdrant: %w", err)
	}
	limit := resolveTopK(opts.TopK, q.maxTopK)
	request := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
	}
	if filter := buildQdrantFilter(opts.Filters); filter != nil {
		request["filter"] = filter
	}
	var response struct {
		Result []qdrantSearchResult `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), request, &response); err != nil {
		return nil, err
	}
	return rankMatches(mapQdrantResults(response.Result, opts), limit), nil
}

func (q *qdrantStore) Delete(ctx context.Context, filter Filter) error {
	request := map[string]any{}
	if len(filter.IDs) > 0 {
		ids := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			ids = append(ids, pointID(id))
		}
		request["points"] = ids
	} else if f := buildQdrantFilter(filter.Metadata); f != nil {
		if len(filter.Keep) > 0 {
			keep := make([]string, 0, len(filter.Keep))
			for _, id := range filter.Keep {
				keep = append(keep, pointID(id))
			}
			f["must_not"] = []any{map[string]any{"has_id": keep}}
		}
		request["filter"] = f
	}
	if len(request) == 0 {
		return nil
	}
	return q.do(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), request, nil)
}

func (q *qdrantStore) Count(ctx context.Context) (int, error) {
	var response struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionPath("/points/count"), map[string]any{"exact": true}, &response); err != nil {
		return 0, err
	}
	return response.Result.Count, nil
}

func (q *qdrantStore) Close(context.Context) error {
	return nil
}

func (q *qdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	req := q.client.R().SetContext(ctx).SetError(&qdrantError{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*qdrantError); ok && apiErr.Status != nil {
			return fmt.Errorf("qdrant: %s %s failed (%d): %v", method, path, resp.StatusCode(), apiErr.Status)
		}
		return fmt.Errorf("qdrant: %s %s failed with status %d", method, path, resp.StatusCode())
	}
	return nil
}
