// Package paging drains list endpoints that return one page of items at a time.
package paging

import (
	"context"
	"fmt"
)

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// FetchFunc returns the page with the given 1-based number.
type FetchFunc[T any] func(ctx context.Context, page int) (Page[T], error)

// ReadAll fetches pages starting at 1 until the store reports no more
// items and returns the concatenation in page order. Pages are fetched
// sequentially; there is no upper bound on the page count.
func ReadAll[T any](ctx context.Context, fetch FetchFunc[T]) ([]T, error) {
	var out []T
	err := walk(ctx, fetch, func(item T) bool {
		out = append(out, item)
		return false
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Find returns the first item (in listing order) for which match reports
// true. No further pages are fetched once a match is found. ok is false
// when every page was read without a match.
func Find[T any](ctx context.Context, fetch FetchFunc[T], match func(T) bool) (item T, ok bool, err error) {
	err = walk(ctx, fetch, func(it T) bool {
		if match(it) {
			item, ok = it, true
			return true
		}
		return false
	})
	return item, ok, err
}

// walk calls visit for every item until visit returns true or the pages run out.
func walk[T any](ctx context.Context, fetch FetchFunc[T], visit func(T) bool) error {
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := fetch(ctx, n)
		if err != nil {
			return fmt.Errorf("paging: fetch page %d: %w", n, err)
		}
		for _, it := range page.Items {
			if visit(it) {
				return nil
			}
		}
		if !page.HasMore {
			return nil
		}
	}
}
