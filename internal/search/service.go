package search

import (
	"context"
	"errors"
	"log"
)

// Service is the facade that tries the engine gateway first and falls back
// to PG FTS.
type Service struct {
	primary  Searcher
	fallback Searcher
}

// NewService creates a search service. Either searcher may be nil, but not
// both.
func NewService(primary, fallback Searcher) *Service {
	return &Service{primary: primary, fallback: fallback}
}

// Healthy reports whether any searcher can serve queries.
func (s *Service) Healthy() bool {
	return (s.primary != nil && s.primary.Healthy()) || (s.fallback != nil && s.fallback.Healthy())
}

// Search uses the primary searcher while it is healthy and falls back to
// PG FTS otherwise or when it fails.
func (s *Service) Search(ctx context.Context, q Query) (Results, error) {
	var primaryErr error
	if s.primary != nil && s.primary.Healthy() {
		results, err := s.primary.Search(ctx, q)
		if err == nil {
			return nonNil(results), nil
		}
		primaryErr = err
		if s.fallback == nil {
			return Results{}, err
		}
		log.Printf("search: engine error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Results{}, ErrUnavailable
	}
	results, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Results{}, errors.Join(primaryErr, err)
	}
	return nonNil(results), nil
}

func nonNil(r Results) Results {
	if r.Hits == nil {
		r.Hits = []Hit{}
	}
	return r
}
