package rest

import (
	"context"

	"github.com/ajitpratap0/deltashare/pkg/errors"
)

// Page is one page of a listing. A nil or empty NextPageToken ends the listing.
type Page[T any] struct {
	Items         []T
	NextPageToken *string
}

// HasMore reports whether another page follows
func (p Page[T]) HasMore() bool {
	return p.NextPageToken != nil && *p.NextPageToken != ""
}

// PageFunc fetches the page addressed by token; the first page has an empty token
type PageFunc[T any] func(ctx context.Context, token string) (Page[T], error)

type pageOptions struct {
	maxPages int
	onPage   func(n int)
}

// PageOption configures Collect
type PageOption func(*pageOptions)

// WithMaxPages caps the number of pages fetched. Exceeding the cap is an
// error, never a silent truncation. Zero means unlimited.
func WithMaxPages(n int) PageOption {
	return func(o *pageOptions) {
		o.maxPages = n
	}
}

// WithPageHook calls fn after every fetched page with the running page count
func WithPageHook(fn func(n int)) PageOption {
	return func(o *pageOptions) {
		o.onPage = fn
	}
}

// Collect follows page tokens from the first page until the server stops
// returning one, concatenating items in arrival order. Pages are fetched
// strictly one after another. Any error discards everything gathered so far.
func Collect[T any](ctx context.Context, fetch PageFunc[T], opts ...PageOption) ([]T, error) {
	var o pageOptions
	for _, opt := range opts {
		opt(&o)
	}

	items := make([]T, 0)
	token := ""
	for pages := 0; ; {
		if err := errors.FromContext(ctx); err != nil {
			return nil, err
		}
		if o.maxPages > 0 && pages >= o.maxPages {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"listing did not finish within %d pages", o.maxPages).
				WithDetail("max_pages", o.maxPages)
		}

		page, err := fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		pages++
		if o.onPage != nil {
			o.onPage(pages)
		}

		items = append(items, page.Items...)
		if !page.HasMore() {
			return items, nil
		}
		token = *page.NextPageToken
	}
}
