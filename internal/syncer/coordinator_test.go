package syncer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/instantly"
)

// platformStub serves the two endpoints a sync run touches. Replies are
// paginated by the client, so the stub only answers the first page.
type platformStub struct {
	opens       []map[string]any
	replies     []map[string]any
	opensFail   bool
	repliesFail bool
}

func (p *platformStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/lead/activity", func(w http.ResponseWriter, r *http.Request) {
		if p.opensFail {
			http.Error(w, `{"error":"nope"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"activities": p.opens})
	})
	mux.HandleFunc("/campaign/replies", func(w http.ResponseWriter, r *http.Request) {
		if p.repliesFail {
			http.Error(w, `{"error":"nope"}`, http.StatusNotFound)
			return
		}
		replies := p.replies
		if r.URL.Query().Get("skip") != "0" {
			replies = nil
		}
		json.NewEncoder(w).Encode(map[string]any{"replies": replies})
	})
	return mux
}

func newTestCoordinator(t *testing.T, stub *platformStub) (*Coordinator, *abtest.Store) {
	t.Helper()

	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	sqlDB, err := abtest.Open(filepath.Join(t.TempDir(), "tests.db"))
	if err != nil {
		t.Fatalf("abtest.Open() error = %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	store := abtest.NewStore(sqlDB)

	boltDB, err := bolt.Open(filepath.Join(t.TempDir(), "sync.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { boltDB.Close() })

	client := instantly.New(instantly.Config{
		APIKey:             "test-key",
		BaseURL:            srv.URL,
		MinRequestInterval: -1,
	})

	coord, err := New(client, store, boltDB, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return coord, store
}

// seedSends creates a test with one variant and records a send per
// recipient, returning the recipient -> send ID map a caller would hold.
func seedSends(t *testing.T, store *abtest.Store, recipients ...string) (string, map[string]string) {
	t.Helper()

	testID, err := store.CreateTest("sync seed", abtest.KindSubjectLine, []string{"hello"})
	if err != nil {
		t.Fatalf("CreateTest() error = %v", err)
	}

	sendIDs := make(map[string]string, len(recipients))
	for _, r := range recipients {
		id, err := store.RecordSend(testID+"_v0", r)
		if err != nil {
			t.Fatalf("RecordSend(%s) error = %v", r, err)
		}
		sendIDs[r] = id
	}
	return testID, sendIDs
}

func TestSyncCreditsOpensAndReplies(t *testing.T) {
	stub := &platformStub{
		opens: []map[string]any{
			{"email": "jane@acme.com", "event": "opened"},
			{"email": "bob@initech.com", "event": "opened"},
			{"email": "stranger@other.com", "event": "opened"},
		},
		replies: []map[string]any{
			{"email": "jane@acme.com", "sentiment": "positive"},
		},
	}
	coord, store := newTestCoordinator(t, stub)
	testID, sendIDs := seedSends(t, store, "jane@acme.com", "bob@initech.com")

	summary, err := coord.Sync(context.Background(), "camp-1", sendIDs)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if summary.OpensSynced != 2 || summary.OpensSkipped != 0 {
		t.Errorf("opens = %d synced / %d skipped, want 2/0", summary.OpensSynced, summary.OpensSkipped)
	}
	if summary.RepliesSynced != 1 || summary.RepliesSkipped != 0 {
		t.Errorf("replies = %d synced / %d skipped, want 1/0", summary.RepliesSynced, summary.RepliesSkipped)
	}
	if len(summary.Errors) != 0 {
		t.Errorf("Errors = %v, want none", summary.Errors)
	}

	variants, _ := store.Variants(testID)
	v := variants[0]
	if v.Opens != 2 || v.Replies != 1 || v.PositiveReplies != 1 {
		t.Errorf("counters = opens %d, replies %d, positive %d, want 2/1/1", v.Opens, v.Replies, v.PositiveReplies)
	}

	status, err := coord.Checkpoint("camp-1")
	if err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if status.OpenedCount != 2 || status.RepliedCount != 1 {
		t.Errorf("checkpoint = %d opened / %d replied, want 2/1", status.OpenedCount, status.RepliedCount)
	}
	if status.LastSyncAt.IsZero() {
		t.Error("LastSyncAt not set")
	}
}

func TestSyncIdempotentAcrossRuns(t *testing.T) {
	stub := &platformStub{
		opens:   []map[string]any{{"email": "jane@acme.com"}},
		replies: []map[string]any{{"email": "jane@acme.com", "sentiment": "neutral"}},
	}
	coord, store := newTestCoordinator(t, stub)
	testID, sendIDs := seedSends(t, store, "jane@acme.com")

	if _, err := coord.Sync(context.Background(), "camp-1", sendIDs); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	summary, err := coord.Sync(context.Background(), "camp-1", sendIDs)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if summary.OpensSynced != 0 || summary.OpensSkipped != 1 {
		t.Errorf("opens = %d synced / %d skipped, want 0/1", summary.OpensSynced, summary.OpensSkipped)
	}
	if summary.RepliesSynced != 0 || summary.RepliesSkipped != 1 {
		t.Errorf("replies = %d synced / %d skipped, want 0/1", summary.RepliesSynced, summary.RepliesSkipped)
	}

	variants, _ := store.Variants(testID)
	if variants[0].Opens != 1 || variants[0].Replies != 1 {
		t.Errorf("counters moved on re-sync: opens %d, replies %d, want 1/1", variants[0].Opens, variants[0].Replies)
	}
}

func TestSyncCheckpointSurvivesReopen(t *testing.T) {
	stub := &platformStub{
		opens: []map[string]any{{"email": "jane@acme.com"}},
	}
	coord, store := newTestCoordinator(t, stub)
	_, sendIDs := seedSends(t, store, "jane@acme.com")

	if _, err := coord.Sync(context.Background(), "camp-1", sendIDs); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	// A fresh coordinator over the same bbolt file must see the checkpoint.
	reopened, err := New(coord.client, store, coord.db, coord.logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	summary, err := reopened.Sync(context.Background(), "camp-1", sendIDs)
	if err != nil {
		t.Fatalf("Sync() after reopen error = %v", err)
	}
	if summary.OpensSynced != 0 || summary.OpensSkipped != 1 {
		t.Errorf("opens = %d synced / %d skipped after reopen, want 0/1", summary.OpensSynced, summary.OpensSkipped)
	}
}

func TestSyncPartialFailure(t *testing.T) {
	stub := &platformStub{
		opensFail: true,
		replies:   []map[string]any{{"email": "jane@acme.com", "sentiment": "negative"}},
	}
	coord, store := newTestCoordinator(t, stub)
	testID, sendIDs := seedSends(t, store, "jane@acme.com")

	summary, err := coord.Sync(context.Background(), "camp-1", sendIDs)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "failed to fetch opens") {
		t.Errorf("Errors = %v, want one opens fetch failure", summary.Errors)
	}
	if summary.RepliesSynced != 1 {
		t.Errorf("RepliesSynced = %d, want 1 despite opens failure", summary.RepliesSynced)
	}

	variants, _ := store.Variants(testID)
	if variants[0].Replies != 1 {
		t.Errorf("Replies = %d, want 1", variants[0].Replies)
	}

	// LastSyncAt still advances on a partial run.
	status, _ := coord.Checkpoint("camp-1")
	if status.LastSyncAt.IsZero() {
		t.Error("LastSyncAt not set after partial failure")
	}
}

func TestSyncAllCategoriesFail(t *testing.T) {
	stub := &platformStub{opensFail: true, repliesFail: true}
	coord, store := newTestCoordinator(t, stub)
	_, sendIDs := seedSends(t, store, "jane@acme.com")

	summary, err := coord.Sync(context.Background(), "camp-1", sendIDs)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(summary.Errors) != 2 {
		t.Errorf("Errors = %v, want both categories reported", summary.Errors)
	}

	status, _ := coord.Checkpoint("camp-1")
	if status.LastSyncAt.IsZero() {
		t.Error("LastSyncAt not set when every fetch fails")
	}
}

func TestReset(t *testing.T) {
	stub := &platformStub{
		opens: []map[string]any{{"email": "jane@acme.com"}},
	}
	coord, store := newTestCoordinator(t, stub)
	testID, sendIDs := seedSends(t, store, "jane@acme.com")

	if _, err := coord.Sync(context.Background(), "camp-1", sendIDs); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := coord.Reset("camp-1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	status, _ := coord.Checkpoint("camp-1")
	if status.OpenedCount != 0 || status.RepliedCount != 0 {
		t.Errorf("checkpoint after Reset = %d/%d, want 0/0", status.OpenedCount, status.RepliedCount)
	}

	// Re-sync re-credits through the checkpoint, but the store's own
	// idempotence keeps the counters flat.
	summary, err := coord.Sync(context.Background(), "camp-1", sendIDs)
	if err != nil {
		t.Fatalf("Sync() after Reset error = %v", err)
	}
	if summary.OpensSynced != 1 {
		t.Errorf("OpensSynced after Reset = %d, want 1", summary.OpensSynced)
	}
	variants, _ := store.Variants(testID)
	if variants[0].Opens != 1 {
		t.Errorf("Opens = %d after Reset re-sync, want 1", variants[0].Opens)
	}
}

func TestSyncUnknownRecipientIgnored(t *testing.T) {
	stub := &platformStub{
		opens: []map[string]any{{"email": "stranger@other.com"}},
	}
	coord, store := newTestCoordinator(t, stub)
	_, sendIDs := seedSends(t, store, "jane@acme.com")

	summary, err := coord.Sync(context.Background(), "camp-1", sendIDs)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if summary.OpensSynced != 0 || summary.OpensSkipped != 0 || len(summary.Errors) != 0 {
		t.Errorf("summary = %+v, want untracked recipient silently ignored", summary)
	}
}
