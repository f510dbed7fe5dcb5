// Package memory provides an in-memory article store for development/testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
)

// Store holds articles in memory, newest first on read.
type Store struct {
	mu       sync.RWMutex
	articles []pipeline.Article
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{}
}

// Add appends articles to the store.
func (s *Store) Add(articles ...pipeline.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = append(s.articles, articles...)
}

// RecentArticles returns up to limit articles ordered by collection time,
// newest first.
func (s *Store) RecentArticles(_ context.Context, limit int) ([]pipeline.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	out := make([]pipeline.Article, len(s.articles))
	copy(out, s.articles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
