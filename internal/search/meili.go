package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

// DefaultIndexUID is the index holding note documents.
const DefaultIndexUID = "notes"

// Meili implements Index on top of Meilisearch and owns the index
// configuration.
type Meili struct {
	client   meili.ServiceManager
	host     string
	indexUID string
	settings IndexSettings
	healthy  atomic.Bool
	done     chan struct{}
}

// NewMeili creates a Meilisearch client, applies the index settings when
// the engine is reachable and starts a background health monitor that
// reapplies them after an outage.
func NewMeili(host, apiKey, indexUID string, settings IndexSettings) *Meili {
	if indexUID == "" {
		indexUID = DefaultIndexUID
	}
	m := &Meili{
		client:   meili.New(host, meili.WithAPIKey(apiKey)),
		host:     host,
		indexUID: indexUID,
		settings: settings,
		done:     make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Initialize(ctx); err != nil {
		log.Printf("search: meilisearch setup at %s: %v", host, err)
	}

	go m.healthLoop()
	return m
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			wasHealthy := m.healthy.Load()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.Ping(ctx)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reapplying index settings")
				if err := m.Initialize(ctx); err != nil {
					log.Printf("search: reapply index settings: %v", err)
				}
			}
			cancel()
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Host is the configured engine address.
func (m *Meili) Host() string {
	return m.host
}

// Healthy reports the result of the most recent health check.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Ping runs a health check now and records the outcome.
func (m *Meili) Ping(ctx context.Context) error {
	_, err := m.client.HealthWithContext(ctx)
	m.healthy.Store(err == nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Upsert adds or fully replaces documents by id. A single call carries the
// whole batch; the returned task uid tracks asynchronous indexing.
func (m *Meili) Upsert(ctx context.Context, docs []Document) (int64, error) {
	task, err := m.client.Index(m.indexUID).AddDocumentsWithContext(ctx, docs, nil)
	if err != nil {
		return 0, fmt.Errorf("meilisearch add documents: %w", m.classify(err))
	}
	return task.TaskUID, nil
}

// Delete removes a document by id. Meilisearch accepts deletes for absent
// ids, so repeating a delete succeeds.
func (m *Meili) Delete(ctx context.Context, id string) (int64, error) {
	task, err := m.client.Index(m.indexUID).DeleteDocumentWithContext(ctx, id, nil)
	if err != nil {
		return 0, fmt.Errorf("meilisearch delete document %s: %w", id, m.classify(err))
	}
	return task.TaskUID, nil
}

// Query runs one search against the notes index.
func (m *Meili) Query(ctx context.Context, q EngineQuery) (EngineResult, error) {
	resp, err := m.client.Index(m.indexUID).SearchWithContext(ctx, q.Text, toSearchRequest(q))
	if err != nil {
		return EngineResult{}, fmt.Errorf("meilisearch search: %w", m.classify(err))
	}

	result := EngineResult{
		Hits:               make([]map[string]json.RawMessage, 0, len(resp.Hits)),
		EstimatedTotalHits: resp.EstimatedTotalHits,
		ProcessingTimeMs:   resp.ProcessingTimeMs,
	}
	for _, hit := range resp.Hits {
		result.Hits = append(result.Hits, map[string]json.RawMessage(hit))
	}
	return result, nil
}

func toSearchRequest(q EngineQuery) *meili.SearchRequest {
	req := &meili.SearchRequest{
		Limit:                 q.Limit,
		Offset:                q.Offset,
		AttributesToHighlight: q.AttributesToHighlight,
		HighlightPreTag:       q.HighlightPreTag,
		HighlightPostTag:      q.HighlightPostTag,
	}
	if len(q.Filter) > 0 {
		req.Filter = q.Filter
	}
	if len(q.Sort) > 0 {
		req.Sort = q.Sort
	}
	return req
}

// IndexStats summarises the notes index.
type IndexStats struct {
	NumberOfDocuments int64            `json:"numberOfDocuments"`
	IsIndexing        bool             `json:"isIndexing"`
	FieldDistribution map[string]int64 `json:"fieldDistribution"`
}

// Stats reports document counts for the notes index.
func (m *Meili) Stats(ctx context.Context) (IndexStats, error) {
	stats, err := m.client.Index(m.indexUID).GetStatsWithContext(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("meilisearch stats: %w", m.classify(err))
	}
	return IndexStats{
		NumberOfDocuments: stats.NumberOfDocuments,
		IsIndexing:        stats.IsIndexing,
		FieldDistribution: stats.FieldDistribution,
	}, nil
}

// TaskStatus is the state of an asynchronous engine task.
type TaskStatus struct {
	UID      int64  `json:"taskUid"`
	IndexUID string `json:"indexUid"`
	Status   string `json:"status"`
	Type     string `json:"type"`
	Error    string `json:"error,omitempty"`
}

// Task polls an engine task, typically the one returned by a full sync.
func (m *Meili) Task(ctx context.Context, uid int64) (TaskStatus, error) {
	task, err := m.client.GetTaskWithContext(ctx, uid)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("meilisearch task %d: %w", uid, m.classify(err))
	}
	return TaskStatus{
		UID:      uid,
		IndexUID: task.IndexUID,
		Status:   string(task.Status),
		Type:     string(task.Type),
		Error:    task.Error.Message,
	}, nil
}

// ClearIndex drops the notes index and recreates it with its settings. A
// full sync is needed afterwards to repopulate it.
func (m *Meili) ClearIndex(ctx context.Context) error {
	task, err := m.client.DeleteIndexWithContext(ctx, m.indexUID)
	if err != nil && !errors.Is(m.classify(err), ErrDocumentNotFound) {
		return fmt.Errorf("meilisearch delete index: %w", m.classify(err))
	}
	if task != nil {
		log.Printf("search: index %s deletion enqueued as task %d", m.indexUID, task.TaskUID)
	}
	return m.Initialize(ctx)
}

// classify maps engine errors onto this package's sentinels and marks the
// engine unhealthy when it could not be reached at all.
func (m *Meili) classify(err error) error {
	var apiErr *meili.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
		}
		if apiErr.StatusCode == 0 {
			m.healthy.Store(false)
		}
		return err
	}
	m.healthy.Store(false)
	return err
}
