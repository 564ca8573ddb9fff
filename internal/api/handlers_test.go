package api

import (
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
	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/instantly"
	"github.com/foxzi/outreach/internal/syncer"
)

func newTestServer(t *testing.T) (*Server, *abtest.Store) {
	t.Helper()

	db, err := abtest.Open(filepath.Join(t.TempDir(), "tests.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := abtest.NewStore(db)

	cfg := &config.APIConfig{ListenAddr: ":0", APIKey: "test-key"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(store, nil, nil, cfg, logger), store
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-API-Key", "test-key")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthNoAuth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status with bearer token = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong key = %d, want 401", w.Code)
	}
}

func TestAuthDisabledWithoutConfiguredKey(t *testing.T) {
	s, _ := newTestServer(t)
	s.config = &config.APIConfig{ListenAddr: ":0"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status without configured key = %d, want 200 (auth disabled)", w.Code)
	}
}

func TestRequestKeyPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-API-Key", "from-header")
	r.Header.Set("Authorization", "Bearer from-bearer")
	if got := requestKey(r); got != "from-header" {
		t.Errorf("requestKey() = %q, want X-API-Key preferred", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer from-bearer")
	if got := requestKey(r); got != "from-bearer" {
		t.Errorf("requestKey() = %q, want bearer token", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := requestKey(r); got != "" {
		t.Errorf("requestKey() = %q, want empty without credentials", got)
	}
}

func TestListTests(t *testing.T) {
	s, store := newTestServer(t)
	store.CreateTest("one", abtest.KindSubjectLine, []string{"a", "b"})

	w := doRequest(s, http.MethodGet, "/api/v1/tests", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var tests []abtest.Test
	if err := json.Unmarshal(w.Body.Bytes(), &tests); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(tests) != 1 || tests[0].Name != "one" {
		t.Errorf("tests = %+v, want single test named one", tests)
	}
}

func TestGetTest(t *testing.T) {
	s, store := newTestServer(t)
	testID, _ := store.CreateTest("detail", abtest.KindCTA, []string{"x", "y"})

	w := doRequest(s, http.MethodGet, "/api/v1/tests/"+testID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp TestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Test.ID != testID || len(resp.Variants) != 2 {
		t.Errorf("response = %+v, want test with 2 variants", resp)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/tests/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status for unknown test = %d, want 404", w.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	testID, _ := store.CreateTest("report", abtest.KindSubjectLine, []string{"a", "b"})
	sendID, _ := store.RecordSend(testID+"_v0", "jane@acme.com")
	store.RecordReply(sendID, abtest.SentimentNeutral)

	w := doRequest(s, http.MethodGet, "/api/v1/tests/"+testID+"/report", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"recommendation"`) {
		t.Errorf("body = %s, want report payload", w.Body.String())
	}
}

func TestSignificanceEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	testID, _ := store.CreateTest("sig", abtest.KindSubjectLine, []string{"a", "b"})

	w := doRequest(s, http.MethodGet, "/api/v1/tests/"+testID+"/significance", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var decision abtest.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decision.Significant {
		t.Error("fresh test reported significant")
	}

	w = doRequest(s, http.MethodGet, "/api/v1/tests/"+testID+"/significance?metric=clicks", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status for invalid metric = %d, want 400", w.Code)
	}
}

func TestCompletePauseResume(t *testing.T) {
	s, store := newTestServer(t)
	testID, _ := store.CreateTest("lifecycle", abtest.KindSubjectLine, []string{"a", "b"})

	w := doRequest(s, http.MethodPost, "/api/v1/tests/"+testID+"/pause", "")
	if w.Code != http.StatusOK {
		t.Fatalf("pause status = %d, want 200", w.Code)
	}
	w = doRequest(s, http.MethodPost, "/api/v1/tests/"+testID+"/resume", "")
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", w.Code)
	}

	w = doRequest(s, http.MethodPost, "/api/v1/tests/"+testID+"/complete", `{"winner_id":"`+testID+`_v0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d, want 200: %s", w.Code, w.Body.String())
	}

	// Completed tests are immutable.
	w = doRequest(s, http.MethodPost, "/api/v1/tests/"+testID+"/pause", "")
	if w.Code != http.StatusConflict {
		t.Errorf("pause after complete = %d, want 409", w.Code)
	}

	w = doRequest(s, http.MethodPost, "/api/v1/tests/"+testID+"/complete", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("complete without winner_id = %d, want 400", w.Code)
	}
}

func TestSyncEndpoints(t *testing.T) {
	s, store := newTestServer(t)

	// Without a coordinator the endpoints degrade to 503.
	w := doRequest(s, http.MethodGet, "/api/v1/sync/camp-1", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status without coordinator = %d, want 503", w.Code)
	}

	boltDB, err := bolt.Open(filepath.Join(t.TempDir(), "sync.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { boltDB.Close() })

	client := instantly.New(instantly.Config{APIKey: "k", MinRequestInterval: -1})
	coord, err := syncer.New(client, store, boltDB, s.logger)
	if err != nil {
		t.Fatalf("syncer.New() error = %v", err)
	}
	s.coordinator = coord

	w = doRequest(s, http.MethodGet, "/api/v1/sync/camp-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, want 200", w.Code)
	}
	var status syncer.CheckpointStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.CampaignID != "camp-1" || status.OpenedCount != 0 {
		t.Errorf("status = %+v, want empty camp-1 checkpoint", status)
	}

	w = doRequest(s, http.MethodPost, "/api/v1/sync/camp-1/reset", "")
	if w.Code != http.StatusOK {
		t.Errorf("reset status = %d, want 200", w.Code)
	}
}

func TestAccountHealthUnconfigured(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/v1/accounts/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without platform client", w.Code)
	}
}
