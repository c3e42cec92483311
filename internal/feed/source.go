package feed

import (
	"context"
	"fmt"
	"sync"
)

// Query selects one page of the feed. Offset counts items already loaded.
type Query struct {
	PageSize int    `json:"pageSize"`
	Order    string `json:"order"`
	OrderBy  string `json:"orderBy"`
	Category string `json:"category,omitempty"`
	Offset   int    `json:"offset"`
}

type Page struct {
	Items   []Item `json:"items"`
	HasMore bool   `json:"hasMore"`
}

// Source supplies ordered pages of items. The transport behind it is not the feed's concern.
type Source interface {
	Fetch(ctx context.Context, q Query) (Page, error)
}

type ItemNotFoundError struct {
	ID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("feed item %q not loaded", e.ID)
}

// FetchError wraps a failed page request.
type FetchError struct {
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page at offset %d: %v", e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StaticSource serves pages out of a fixed in-memory list.
type StaticSource struct {
	mu    sync.Mutex
	items []Item
	calls []Query
}

func NewStaticSource(items []Item) *StaticSource {
	return &StaticSource{items: append([]Item(nil), items...)}
}

func (s *StaticSource) Fetch(ctx context.Context, q Query) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, q)

	size := q.PageSize
	if size <= 0 {
		size = len(s.items)
	}
	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(s.items) {
		return Page{}, nil
	}
	end := start + size
	if end > len(s.items) {
		end = len(s.items)
	}
	page := Page{
		Items:   append([]Item(nil), s.items[start:end]...),
		HasMore: end < len(s.items),
	}
	return page, nil
}

// Calls returns the queries served so far.
func (s *StaticSource) Calls() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.calls...)
}
