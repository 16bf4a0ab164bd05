package service

import (
	"context"
	"net/url"
)

// PageFetcher loads the page at cursor and returns its items together with
// the cursor of the following page, empty when there is none.
type PageFetcher[T any] func(ctx context.Context, cursor string) ([]T, string, error)

// Pager walks a paginated listing one page at a time. A failed Next leaves
// the cursor where it was, so calling Next again retries the same page.
type Pager[T any] struct {
	fetch  PageFetcher[T]
	cursor string
	done   bool
	pages  int
}

// NewPagerFrom starts (or resumes) a listing at cursor.
func NewPagerFrom[T any](fetch PageFetcher[T], cursor string) *Pager[T] {
	return &Pager[T]{fetch: fetch, cursor: cursor, done: cursor == ""}
}

func (p *Pager[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, nil
	}
	items, next, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}
	p.pages++
	p.cursor = next
	p.done = next == ""
	return items, nil
}

// Cursor is the token of the page Next will fetch.
func (p *Pager[T]) Cursor() string { return p.cursor }

func (p *Pager[T]) Done() bool { return p.done }

func (p *Pager[T]) Pages() int { return p.pages }

// PageToken is the opaque "after" token of a paging URL cursor, or the cursor
// itself when it is not a URL. It is safe to log.
func PageToken(cursor string) string {
	u, err := url.Parse(cursor)
	if err != nil || u.Scheme == "" {
		return cursor
	}
	return u.Query().Get("after")
}
