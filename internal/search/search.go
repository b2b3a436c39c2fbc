// Package search filters stored articles by title prefix and tag.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewjhunter/techstock/internal/storage"
)

// Query holds the optional search terms. Matching is case-insensitive.
type Query struct {
	Title string
	Tag   string
}

// Searcher runs queries against a store.
type Searcher struct {
	store storage.Store
}

func New(store storage.Store) *Searcher {
	return &Searcher{store: store}
}

// Search returns the articles whose lowercase title starts with the lowercased
// title term and whose lowercase tags include the lowercased tag term as a
// whole element. Empty terms are ignored; with both empty every article is
// returned. Results keep the store's scan order.
func (s *Searcher) Search(ctx context.Context, q Query) ([]storage.Article, error) {
	title := strings.ToLower(q.Title)
	filter := storage.Filter{
		TitlePrefix: title,
		Tag:         strings.ToLower(q.Tag),
	}

	articles, err := s.store.Scan(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	if title == "" {
		return articles, nil
	}

	// Substring re-check over the prefix matches.
	matched := articles[:0]
	for _, a := range articles {
		if strings.Contains(a.LowerCaseTitle, title) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}
