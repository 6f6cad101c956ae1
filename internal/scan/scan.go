// Package scan reads complete result sets from stores that cap the size of a
// single query. Callers supply a page function ordered by a stable key; the
// scanner walks offsets until the store reports the end of data.
package scan

import (
	"context"
	"fmt"

	"github.com/radiusdt/campaign-kpi/internal/models"
	"github.com/radiusdt/campaign-kpi/internal/storage"
)

// DefaultPageSize matches the store's per-query cap.
const DefaultPageSize = storage.MaxPageSize

// PageFunc returns the records in the window [offset, offset+limit) of a
// result set ordered by a stable, monotonic key.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// PageObserver is notified after each page is fetched.
type PageObserver func(records int)

// All fetches every record from fetch, one page at a time, in order.
// A page shorter than pageSize (including an empty page) ends the scan.
// Any fetch error aborts the scan and no partial result is returned.
func All[T any](ctx context.Context, fetch PageFunc[T], pageSize int, observe PageObserver) ([]T, error) {
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}

	var out []T
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page at offset %d: %w", offset, err)
		}
		if observe != nil {
			observe(len(page))
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		offset += len(page)
	}
}

// Scanner reads posts through a PostRepo.
type Scanner struct {
	posts    storage.PostRepo
	pageSize int
	observe  PageObserver
}

// NewScanner creates a Scanner. A pageSize of zero uses DefaultPageSize.
func NewScanner(posts storage.PostRepo, pageSize int, observe PageObserver) *Scanner {
	return &Scanner{posts: posts, pageSize: pageSize, observe: observe}
}

// Posts returns every post matching filter, ordered by id.
func (s *Scanner) Posts(ctx context.Context, filter storage.PostFilter) ([]*models.Post, error) {
	return All(ctx, func(ctx context.Context, offset, limit int) ([]*models.Post, error) {
		return s.posts.QueryPosts(ctx, filter, offset, limit)
	}, s.pageSize, s.observe)
}
