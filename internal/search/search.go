package search

import (
	"context"
	"encoding/json"
	"errors"

	"campusconnect/api/internal/store"
)

var (
	// ErrUnavailable means the search engine failed its health check.
	ErrUnavailable = errors.New("search engine unavailable")
	// ErrInvalidEvent means a change event is missing the row its kind needs
	// or has an unknown kind.
	ErrInvalidEvent = errors.New("invalid change event")
	// ErrStaleEvent means a newer version of the record was already applied.
	ErrStaleEvent = errors.New("stale change event")
	// ErrDocumentNotFound is returned by an Index when the engine reports the
	// document (or its index) does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

const (
	HighlightPreTag  = "<mark>"
	HighlightPostTag = "</mark>"
)

// Document is the denormalised projection of a note stored in the index.
type Document struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Subject     string   `json:"subject"`
	AuthorID    string   `json:"author_id"`
	AuthorName  string   `json:"author_name"`
	Tags        []string `json:"tags"`
	Downloads   int64    `json:"downloads"`
	RatingAvg   float64  `json:"rating_avg"`
	IsPublic    bool     `json:"is_public"`
	FileURL     string   `json:"file_url"`
	CreatedAt   int64    `json:"created_at"`
}

// Hit is a ranked result with highlighted copies of the matched fields.
type Hit struct {
	Document
	Formatted map[string]string `json:"_formatted,omitempty"`
}

// Query is a user-facing search request.
type Query struct {
	Text    string
	Subject string
	Limit   int
	Offset  int
}

// Results carries hits plus the engine's own estimate and timing, passed
// through unmodified. TotalEstimate is not an exact count.
type Results struct {
	Hits          []Hit
	TotalEstimate int64
	TookMs        int64
	Query         string
}

// SyncResult reports a full sync. Synced counts documents in the accepted
// batch; indexing completes asynchronously under TaskUID.
type SyncResult struct {
	Synced  int    `json:"synced"`
	Total   int    `json:"total"`
	TaskUID *int64 `json:"taskUid,omitempty"`
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one record source mutation as delivered by its database
// webhook.
type ChangeEvent struct {
	Type      EventType   `json:"type"`
	Table     string      `json:"table"`
	Schema    string      `json:"schema"`
	Record    *store.Note `json:"record"`
	OldRecord *store.Note `json:"old_record"`
}

// EngineQuery is a search request in the engine's terms. Filter clauses are
// combined conjunctively.
type EngineQuery struct {
	Text                  string
	Filter                []string
	Sort                  []string
	Limit                 int64
	Offset                int64
	AttributesToHighlight []string
	HighlightPreTag       string
	HighlightPostTag      string
}

// EngineResult is the raw engine answer to an EngineQuery.
type EngineResult struct {
	Hits               []map[string]json.RawMessage
	EstimatedTotalHits int64
	ProcessingTimeMs   int64
}

// Index is the search engine surface used by the sync engine and gateway.
// Upsert fully replaces documents by id and returns the engine task uid.
type Index interface {
	Upsert(ctx context.Context, docs []Document) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	Query(ctx context.Context, q EngineQuery) (EngineResult, error)
	Healthy() bool
}

// Searcher runs a user-facing search.
type Searcher interface {
	Search(ctx context.Context, q Query) (Results, error)
	Healthy() bool
}

// NoteSource pages through public notes ordered by id.
type NoteSource interface {
	ListPublicNotes(ctx context.Context, afterID string, limit int) ([]store.Note, error)
}

// OwnerResolver looks up a note owner's summary.
type OwnerResolver interface {
	GetAuthor(ctx context.Context, id string) (*store.Author, error)
}

// VersionGuard orders change events per record id. Only events older than
// the last applied one are refused; a tombstone also refuses upserts at its
// own version.
type VersionGuard interface {
	Advance(ctx context.Context, id string, version int64, tombstone bool) (previous string, applied bool, err error)
	Rollback(ctx context.Context, id string, version int64, tombstone bool, previous string) error
}
