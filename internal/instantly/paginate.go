package instantly

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Iterator walks a paginated endpoint with offset/limit semantics, yielding
// one item at a time in server order. It re-requests at each page boundary
// on the caller's goroutine and is not safe for concurrent use; create a
// fresh iterator to re-traverse from the start.
//
// Usage follows the sql.Rows pattern:
//
//	it := client.IterReplies(ctx, campaignID)
//	for it.Next() {
//		item := it.Item()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator struct {
	client   *Client
	ctx      context.Context
	endpoint string
	base     url.Values
	itemKey  string
	pageSize int

	skip int
	page []map[string]any
	idx  int
	done bool
	err  error
}

func (c *Client) paginate(ctx context.Context, endpoint string, base url.Values, itemKey string) *Iterator {
	return &Iterator{
		client:   c,
		ctx:      ctx,
		endpoint: endpoint,
		base:     base,
		itemKey:  itemKey,
		pageSize: defaultPageSize,
		idx:      -1,
	}
}

// Next advances to the next item, fetching the next page when the current
// one is exhausted. It returns false at the end of the result set or on
// error; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	it.idx++
	if it.idx < len(it.page) {
		return true
	}
	if it.done {
		return false
	}

	params := url.Values{}
	for k, vs := range it.base {
		params[k] = vs
	}
	params.Set("skip", strconv.Itoa(it.skip))
	params.Set("limit", strconv.Itoa(it.pageSize))

	data, err := it.client.execute(it.ctx, http.MethodGet, it.endpoint, params, nil)
	if err != nil {
		it.err = err
		return false
	}

	items := extractList(data, it.itemKey)
	if len(items) == 0 {
		it.done = true
		return false
	}

	it.page = items
	it.idx = 0
	it.skip += len(items)
	if len(items) < it.pageSize {
		// Short page: serve its items but skip the trailing empty fetch.
		it.done = true
	}
	return true
}

// Item returns the current item. Valid only after a true Next.
func (it *Iterator) Item() map[string]any {
	return it.page[it.idx]
}

// Err returns the first error encountered during iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}
