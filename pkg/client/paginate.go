package client

import (
	"context"
	"iter"
	"maps"
	"net/http"
)

// DefaultPageSize is the page size assumed when a response carries no
// explicit total.
const DefaultPageSize = 30

// itemKeys lists the envelope keys that may hold a page of records, in
// priority order.
var itemKeys = []string{"items", "hydra:member", "member"}

// totalKeys and pageSizeKeys expose the explicit pagination metadata.
// Hydra envelopes stop on their view's next link, not on hydra:totalItems.
var (
	totalKeys    = []string{"count"}
	pageSizeKeys = []string{"itemsPerPage"}
	viewKeys     = []string{"hydra:view", "view"}
	nextKeys     = []string{"hydra:next", "next"}
)

// Items normalizes one API response into its list of records. A bare JSON
// array is returned as is; an object is searched for itemKeys in order and
// the first list value wins. Anything else yields an empty list.
func Items(result any) []any {
	switch v := result.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range itemKeys {
			if items, isList := v[key].([]any); isList {
				return items
			}
		}
	}
	return nil
}

type pageConfig struct {
	maxPages       int
	acceptLanguage string
}

// PageOption configures Paginate.
type PageOption func(*pageConfig)

// WithMaxPages stops pagination after n pages. Zero means no limit.
func WithMaxPages(n int) PageOption {
	return func(c *pageConfig) {
		c.maxPages = n
	}
}

// WithPageLanguage sets Accept-Language on every page request.
func WithPageLanguage(lang string) PageOption {
	return func(c *pageConfig) {
		c.acceptLanguage = lang
	}
}

// Paginate lazily walks a collection endpoint one page at a time, starting
// at page 1, and yields each record. Pages are only requested as the
// sequence is consumed; stopping the range loop stops fetching. A failed
// page request is yielded once as (nil, err) and ends the sequence.
//
// Each call starts over from page 1. params is copied, never modified.
func (c *Client) Paginate(ctx context.Context, path, token string, params map[string]any, opts ...PageOption) iter.Seq2[any, error] {
	cfg := pageConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(yield func(any, error) bool) {
		query := maps.Clone(params)
		if query == nil {
			query = map[string]any{}
		}

		for page := 1; ; page++ {
			query["page"] = page
			result, err := c.Send(ctx, Request{
				Method:         http.MethodGet,
				Path:           path,
				Query:          query,
				AcceptLanguage: cfg.acceptLanguage,
			}, token)
			if err != nil {
				yield(nil, err)
				return
			}

			items := Items(result)
			if len(items) == 0 {
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			if lastPage(result, page, len(items)) {
				return
			}
			if cfg.maxPages > 0 && page+1 > cfg.maxPages {
				return
			}
		}
	}
}

// Collect drains Paginate into a slice, stopping at the first error.
func (c *Client) Collect(ctx context.Context, path, token string, params map[string]any, opts ...PageOption) ([]any, error) {
	records := []any{}
	for record, err := range c.Paginate(ctx, path, token, params, opts...) {
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}

// lastPage applies the stop rules in order: explicit total, then a Hydra
// view without a next link, then a short page.
func lastPage(result any, page, count int) bool {
	envelope, isObject := result.(map[string]any)
	if !isObject {
		return count < DefaultPageSize
	}

	if total, ok := numberField(envelope, totalKeys); ok {
		perPage, ok := numberField(envelope, pageSizeKeys)
		if !ok || perPage <= 0 {
			perPage = DefaultPageSize
		}
		return float64(page)*perPage >= total
	}

	if view, ok := firstObject(envelope, viewKeys); ok && len(view) > 0 {
		return !truthy(firstValue(view, nextKeys))
	}

	// Envelopes without a total or a view fall back to the short-page rule.
	// A final page of exactly DefaultPageSize records costs one extra request.
	return count < DefaultPageSize
}

func numberField(m map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		if n, ok := m[key].(float64); ok {
			return n, true
		}
	}
	return 0, false
}

func firstObject(m map[string]any, keys []string) (map[string]any, bool) {
	for _, key := range keys {
		if obj, ok := m[key].(map[string]any); ok {
			return obj, true
		}
	}
	return nil, false
}

func firstValue(m map[string]any, keys []string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
