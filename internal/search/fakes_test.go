package search

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"campusconnect/api/internal/store"
)

// fakeIndex is an in-memory Index. It matches by case-insensitive
// substring, understands the equality filters the gateway emits and marks
// matches the way the engine does.
type fakeIndex struct {
	mu          sync.Mutex
	docs        map[string]Document
	healthy     bool
	upsertCalls int
	deleteCalls int
	nextTask    int64
	upsertErr   error
	deleteErr   error
	queryErr    error
	lastQuery   EngineQuery
	extraHits   []map[string]json.RawMessage
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]Document), healthy: true}
}

func (f *fakeIndex) Upsert(_ context.Context, docs []Document) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	f.nextTask++
	return f.nextTask, nil
}

func (f *fakeIndex) Delete(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	delete(f.docs, id)
	f.nextTask++
	return f.nextTask, nil
}

func (f *fakeIndex) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeIndex) doc(id string) (Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d, ok
}

func (f *fakeIndex) Query(_ context.Context, q EngineQuery) (EngineResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.queryErr != nil {
		return EngineResult{}, f.queryErr
	}

	var matched []Document
	for _, d := range f.docs {
		if matchesFilters(d, q.Filter) && matchesText(d, q.Text) {
			matched = append(matched, d)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if len(q.Sort) > 0 && q.Sort[0] == "created_at:desc" && matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	start := min(int(q.Offset), len(matched))
	end := min(start+int(q.Limit), len(matched))

	hits := make([]map[string]json.RawMessage, 0, end-start)
	for _, d := range matched[start:end] {
		hits = append(hits, rawHit(d, q))
	}
	hits = append(hits, f.extraHits...)
	return EngineResult{Hits: hits, EstimatedTotalHits: total, ProcessingTimeMs: 1}, nil
}

var filterClause = regexp.MustCompile(`^(\w+) = (.+)$`)

func matchesFilters(d Document, clauses []string) bool {
	for _, c := range clauses {
		m := filterClause.FindStringSubmatch(c)
		if m == nil {
			return false
		}
		value := m[2]
		if unq, err := strconv.Unquote(value); err == nil {
			value = unq
		}
		switch m[1] {
		case "subject":
			if d.Subject != value {
				return false
			}
		case "is_public":
			if strconv.FormatBool(d.IsPublic) != value {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchesText(d Document, text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return true
	}
	fields := append([]string{d.Title, d.Description, d.Subject, d.AuthorName}, d.Tags...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), text) {
			return true
		}
	}
	return false
}

func rawHit(d Document, q EngineQuery) map[string]json.RawMessage {
	data, _ := json.Marshal(d)
	var hit map[string]json.RawMessage
	_ = json.Unmarshal(data, &hit)

	formatted := map[string]string{
		"title":       mark(d.Title, q),
		"description": mark(d.Description, q),
		"subject":     mark(d.Subject, q),
	}
	hit["_formatted"], _ = json.Marshal(formatted)
	return hit
}

func mark(value string, q EngineQuery) string {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return value
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(text))
	return re.ReplaceAllStringFunc(value, func(s string) string {
		return q.HighlightPreTag + s + q.HighlightPostTag
	})
}

// fakeSource serves notes ordered by id with keyset paging.
type fakeSource struct {
	notes []store.Note
	calls int
	err   error
}

func (f *fakeSource) ListPublicNotes(_ context.Context, afterID string, limit int) ([]store.Note, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sorted := append([]store.Note(nil), f.notes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	out := make([]store.Note, 0, limit)
	for _, n := range sorted {
		if n.ID > afterID && n.IsPublic {
			out = append(out, n)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeOwners struct {
	authors map[string]*store.Author
	calls   int
}

var errOwnerNotFound = errors.New("owner not found")

func (f *fakeOwners) GetAuthor(_ context.Context, id string) (*store.Author, error) {
	f.calls++
	a, ok := f.authors[id]
	if !ok {
		return nil, errOwnerNotFound
	}
	return a, nil
}

type fakeSearcher struct {
	healthy bool
	results Results
	err     error
	calls   int
}

func (f *fakeSearcher) Search(context.Context, Query) (Results, error) {
	f.calls++
	return f.results, f.err
}

func (f *fakeSearcher) Healthy() bool {
	return f.healthy
}
