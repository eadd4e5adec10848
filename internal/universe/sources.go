// Package universe discovers the symbol universe the refresh pipeline walks.
// Listings come from one or more external sources and are merged into a set
// union keyed by symbol, first-source-wins on duplicates.
package universe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/domain"
)

// Source is one external listings provider.
type Source interface {
	Name() string
	Listings(ctx context.Context) ([]domain.Listing, error)
}

// StaticSource serves a fixed listing set, used for the curated core
// universe and for tests.
type StaticSource struct {
	name     string
	listings []domain.Listing
}

// NewStaticSource creates a fixed listings source.
func NewStaticSource(name string, listings []domain.Listing) *StaticSource {
	return &StaticSource{name: name, listings: listings}
}

// Name returns the source name.
func (s *StaticSource) Name() string { return s.name }

// Listings returns the fixed listing set.
func (s *StaticSource) Listings(ctx context.Context) ([]domain.Listing, error) {
	return s.listings, nil
}

// Service merges listings from all configured sources.
type Service struct {
	sources []Source
	log     zerolog.Logger
}

// NewService creates a universe service over the given sources. Source order
// matters: on duplicate symbols the earliest source wins.
func NewService(sources []Source, log zerolog.Logger) *Service {
	return &Service{
		sources: sources,
		log:     log.With().Str("service", "universe").Logger(),
	}
}

// Discover returns the merged universe. A failing source is logged and
// skipped; the merge only fails when every source fails.
func (s *Service) Discover(ctx context.Context) ([]domain.Listing, error) {
	seen := make(map[string]bool)
	var merged []domain.Listing
	var succeeded int

	for _, source := range s.sources {
		listings, err := source.Listings(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("source", source.Name()).Msg("Universe source failed, skipping")
			continue
		}
		succeeded++

		for _, l := range listings {
			if l.Symbol == "" || seen[l.Symbol] {
				continue
			}
			seen[l.Symbol] = true
			merged = append(merged, l)
		}
	}

	if succeeded == 0 && len(s.sources) > 0 {
		return nil, fmt.Errorf("all %d universe sources failed", len(s.sources))
	}

	s.log.Debug().Int("symbols", len(merged)).Int("sources", succeeded).Msg("Universe discovered")
	return merged, nil
}

// Symbols returns just the merged symbol list, in discovery order.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	listings, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(listings))
	for i, l := range listings {
		symbols[i] = l.Symbol
	}
	return symbols, nil
}
