package search

import (
	"context"
	"errors"
	"fmt"
	"log"

	meili "github.com/meilisearch/meilisearch-go"
)

// IndexSettings is the configuration applied to the notes index.
type IndexSettings struct {
	PrimaryKey           string
	SearchableAttributes []string
	FilterableAttributes []string
	SortableAttributes   []string
	RankingRules         []string
	TypoOneTypo          int64
	TypoTwoTypos         int64
	MaxTotalHits         int64
}

// DefaultIndexSettings returns the notes index configuration. A
// maxTotalHits of zero or less falls back to 1000.
func DefaultIndexSettings(maxTotalHits int64) IndexSettings {
	if maxTotalHits <= 0 {
		maxTotalHits = 1000
	}
	return IndexSettings{
		PrimaryKey:           "id",
		SearchableAttributes: []string{"title", "description", "subject", "author_name", "tags"},
		FilterableAttributes: []string{"subject", "tags", "author_id", "is_public", "created_at"},
		SortableAttributes:   []string{"created_at", "downloads", "rating_avg"},
		RankingRules:         []string{"words", "typo", "proximity", "attribute", "sort", "exactness"},
		TypoOneTypo:          4,
		TypoTwoTypos:         8,
		MaxTotalHits:         maxTotalHits,
	}
}

type settingsGroup struct {
	name  string
	apply func(ctx context.Context, idx meili.IndexManager) error
}

func (s IndexSettings) groups() []settingsGroup {
	return []settingsGroup{
		{"searchable attributes", func(ctx context.Context, idx meili.IndexManager) error {
			attrs := append([]string(nil), s.SearchableAttributes...)
			_, err := idx.UpdateSearchableAttributesWithContext(ctx, &attrs)
			return err
		}},
		{"filterable attributes", func(ctx context.Context, idx meili.IndexManager) error {
			attrs := make([]interface{}, 0, len(s.FilterableAttributes))
			for _, a := range s.FilterableAttributes {
				attrs = append(attrs, a)
			}
			_, err := idx.UpdateFilterableAttributesWithContext(ctx, &attrs)
			return err
		}},
		{"sortable attributes", func(ctx context.Context, idx meili.IndexManager) error {
			attrs := append([]string(nil), s.SortableAttributes...)
			_, err := idx.UpdateSortableAttributesWithContext(ctx, &attrs)
			return err
		}},
		{"ranking rules", func(ctx context.Context, idx meili.IndexManager) error {
			rules := append([]string(nil), s.RankingRules...)
			_, err := idx.UpdateRankingRulesWithContext(ctx, &rules)
			return err
		}},
		{"typo tolerance", func(ctx context.Context, idx meili.IndexManager) error {
			_, err := idx.UpdateTypoToleranceWithContext(ctx, &meili.TypoTolerance{
				Enabled: true,
				MinWordSizeForTypos: meili.MinWordSizeForTypos{
					OneTypo:  s.TypoOneTypo,
					TwoTypos: s.TypoTwoTypos,
				},
			})
			return err
		}},
		{"pagination", func(ctx context.Context, idx meili.IndexManager) error {
			_, err := idx.UpdatePaginationWithContext(ctx, &meili.Pagination{MaxTotalHits: s.MaxTotalHits})
			return err
		}},
	}
}

// Initialize creates the notes index and applies every settings group.
// Groups are applied independently so one rejected group does not block
// the rest; all failures are returned joined. Safe to repeat.
func (m *Meili) Initialize(ctx context.Context) error {
	if err := m.Ping(ctx); err != nil {
		return err
	}

	// Creating an existing index fails inside the engine task, not here.
	if _, err := m.client.CreateIndexWithContext(ctx, &meili.IndexConfig{
		Uid:        m.indexUID,
		PrimaryKey: m.settings.PrimaryKey,
	}); err != nil {
		log.Printf("search: create index %s: %v", m.indexUID, err)
	}

	idx := m.client.Index(m.indexUID)
	var errs []error
	for _, g := range m.settings.groups() {
		if err := g.apply(ctx, idx); err != nil {
			log.Printf("search: apply %s to %s: %v", g.name, m.indexUID, err)
			errs = append(errs, fmt.Errorf("%s: %w", g.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Printf("search: index %s configured", m.indexUID)
	return nil
}
