package instantly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

// pagedServer serves total items under key, honoring skip/limit.
func pagedServer(t *testing.T, key string, total int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		items := []map[string]any{}
		for i := skip; i < total && i < skip+limit; i++ {
			items = append(items, map[string]any{"email": fmt.Sprintf("lead%d@example.com", i)})
		}
		json.NewEncoder(w).Encode(map[string]any{key: items})
	}))
}

func TestIteratorWalksAllPages(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, "replies", 237, &requests)
	defer srv.Close()

	c, _ := newTestClient(srv.URL)

	it := c.IterReplies(context.Background(), "camp-1")
	var got []string
	for it.Next() {
		got = append(got, it.Item()["email"].(string))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	if len(got) != 237 {
		t.Fatalf("iterated %d items, want 237", len(got))
	}
	// Server order preserved.
	if got[0] != "lead0@example.com" || got[236] != "lead236@example.com" {
		t.Errorf("order broken: first=%s last=%s", got[0], got[236])
	}
	// Pages of 100, 100, 37: the short page ends iteration without a
	// trailing empty fetch.
	if n := requests.Load(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestIteratorEmptyFirstPage(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, "leads", 0, &requests)
	defer srv.Close()

	c, _ := newTestClient(srv.URL)

	it := c.IterLeads(context.Background(), "camp-1")
	for it.Next() {
		t.Fatalf("Next() yielded item from empty result set: %v", it.Item())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestIteratorExactPageBoundary(t *testing.T) {
	var requests atomic.Int32
	srv := pagedServer(t, "campaigns", 200, &requests)
	defer srv.Close()

	c, _ := newTestClient(srv.URL)

	it := c.IterCampaigns(context.Background())
	count := 0
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if count != 200 {
		t.Errorf("iterated %d items, want 200", count)
	}
	// Two full pages plus the empty page that ends iteration.
	if n := requests.Load(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestIteratorSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "bad key"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL)

	it := c.IterReplies(context.Background(), "camp-1")
	if it.Next() {
		t.Fatal("Next() = true, want false on API error")
	}
	if it.Err() == nil {
		t.Fatal("Err() = nil, want API error")
	}
}
