package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var highlightAttributes = []string{"title", "description", "subject"}

// Gateway answers user searches against the index. Every query it builds
// carries the public-visibility clause.
type Gateway struct {
	index Index
}

func NewGateway(index Index) *Gateway {
	return &Gateway{index: index}
}

func (g *Gateway) Healthy() bool {
	return g.index.Healthy()
}

// Search runs q and decodes the engine hits. Hits that are not public are
// dropped even if the engine returned them.
func (g *Gateway) Search(ctx context.Context, q Query) (Results, error) {
	eq := BuildEngineQuery(q)
	res, err := g.index.Query(ctx, eq)
	if err != nil {
		return Results{}, err
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, raw := range res.Hits {
		hit, err := decodeHit(raw)
		if err != nil {
			log.Printf("search: skip undecodable hit: %v", err)
			continue
		}
		if !hit.IsPublic {
			continue
		}
		hits = append(hits, hit)
	}
	return Results{
		Hits:          hits,
		TotalEstimate: res.EstimatedTotalHits,
		TookMs:        res.ProcessingTimeMs,
		Query:         q.Text,
	}, nil
}

// BuildEngineQuery translates a user query. The subject and visibility
// clauses are separate filter elements, which the engine ANDs.
func BuildEngineQuery(q Query) EngineQuery {
	limit, offset := clampPage(q.Limit, q.Offset)
	eq := EngineQuery{
		Text:                  q.Text,
		Limit:                 int64(limit),
		Offset:                int64(offset),
		AttributesToHighlight: append([]string(nil), highlightAttributes...),
		HighlightPreTag:       HighlightPreTag,
		HighlightPostTag:      HighlightPostTag,
	}
	if q.Subject != "" {
		eq.Filter = append(eq.Filter, "subject = "+quoteFilterValue(q.Subject))
	}
	eq.Filter = append(eq.Filter, "is_public = true")
	if strings.TrimSpace(q.Text) == "" {
		eq.Sort = []string{"created_at:desc"}
	}
	return eq
}

func clampPage(limit, offset int) (int, int) {
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// quoteFilterValue wraps v in double quotes for the engine's filter
// grammar, escaping backslashes and quotes.
func quoteFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func decodeHit(raw map[string]json.RawMessage) (Hit, error) {
	var hit Hit
	doc, err := json.Marshal(raw)
	if err != nil {
		return Hit{}, err
	}
	if err := json.Unmarshal(doc, &hit.Document); err != nil {
		return Hit{}, fmt.Errorf("decode document: %w", err)
	}
	if hit.Tags == nil {
		hit.Tags = []string{}
	}

	formattedRaw, ok := raw["_formatted"]
	if !ok {
		return hit, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(formattedRaw, &fields); err != nil {
		return hit, nil
	}
	hit.Formatted = make(map[string]string, len(highlightAttributes))
	for _, name := range highlightAttributes {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err == nil {
			hit.Formatted[name] = value
		}
	}
	return hit, nil
}
