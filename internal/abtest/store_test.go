package abtest

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "tests.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestCreateTest(t *testing.T) {
	s := newTestStore(t)

	testID, err := s.CreateTest("q3 subjects", KindSubjectLine, []string{"quick question", "saw the news"})
	if err != nil {
		t.Fatalf("CreateTest() error = %v", err)
	}

	got, err := s.GetTest(testID)
	if err != nil {
		t.Fatalf("GetTest() error = %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.Kind != KindSubjectLine {
		t.Errorf("Kind = %q, want subject_line", got.Kind)
	}

	variants, err := s.Variants(testID)
	if err != nil {
		t.Fatalf("Variants() error = %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("len(variants) = %d, want 2", len(variants))
	}
	// Deterministic IDs from test ID + ordinal.
	if variants[0].ID != testID+"_v0" || variants[1].ID != testID+"_v1" {
		t.Errorf("variant IDs = %s, %s, want %s_v0, %s_v1", variants[0].ID, variants[1].ID, testID, testID)
	}
	for _, v := range variants {
		if v.Sends != 0 || v.Opens != 0 || v.Replies != 0 || v.PositiveReplies != 0 {
			t.Errorf("variant %s counters not zero: %+v", v.ID, v)
		}
	}
}

func TestCreateTestEmptyContents(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateTest("empty", KindCTA, nil); err == nil {
		t.Fatal("CreateTest() with no contents, want error")
	}
}

func TestAssignVariantUnknownTest(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.AssignVariant("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("AssignVariant() error = %v, want ErrNotFound", err)
	}
}

func TestAssignVariantUniform(t *testing.T) {
	s := newTestStore(t)

	testID, err := s.CreateTest("split", KindOpeningLine, []string{"a", "b"})
	if err != nil {
		t.Fatalf("CreateTest() error = %v", err)
	}

	const trials = 10000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		id, content, err := s.AssignVariant(testID)
		if err != nil {
			t.Fatalf("AssignVariant() error = %v", err)
		}
		if content != "a" && content != "b" {
			t.Fatalf("AssignVariant() content = %q", content)
		}
		counts[id]++
	}

	// Binomial(10000, 0.5): five sigma is ~250 off the mean.
	for id, n := range counts {
		if math.Abs(float64(n)-trials/2) > 250 {
			t.Errorf("variant %s assigned %d of %d times, not consistent with uniform split", id, n, trials)
		}
	}
}

func TestRecordSendOpenReply(t *testing.T) {
	s := newTestStore(t)

	testID, _ := s.CreateTest("flow", KindSubjectLine, []string{"a", "b"})
	variantID := testID + "_v0"

	sendID, err := s.RecordSend(variantID, "jane@acme.com")
	if err != nil {
		t.Fatalf("RecordSend() error = %v", err)
	}

	if err := s.RecordOpen(sendID); err != nil {
		t.Fatalf("RecordOpen() error = %v", err)
	}
	if err := s.RecordReply(sendID, SentimentPositive); err != nil {
		t.Fatalf("RecordReply() error = %v", err)
	}

	variants, _ := s.Variants(testID)
	v := variants[0]
	if v.Sends != 1 || v.Opens != 1 || v.Replies != 1 || v.PositiveReplies != 1 {
		t.Errorf("counters = %+v, want 1/1/1/1", v)
	}

	sd, err := s.GetSend(sendID)
	if err != nil {
		t.Fatalf("GetSend() error = %v", err)
	}
	if sd.OpenedAt == nil || sd.RepliedAt == nil {
		t.Errorf("send timestamps not set: %+v", sd)
	}
	if sd.Sentiment != SentimentPositive {
		t.Errorf("Sentiment = %q, want positive", sd.Sentiment)
	}
}

func TestRecordOpenIdempotent(t *testing.T) {
	s := newTestStore(t)

	testID, _ := s.CreateTest("idem", KindSubjectLine, []string{"a"})
	sendID, _ := s.RecordSend(testID+"_v0", "jane@acme.com")

	if err := s.RecordOpen(sendID); err != nil {
		t.Fatalf("RecordOpen() error = %v", err)
	}
	first, _ := s.GetSend(sendID)

	if err := s.RecordOpen(sendID); err != nil {
		t.Fatalf("RecordOpen() second call error = %v", err)
	}

	variants, _ := s.Variants(testID)
	if variants[0].Opens != 1 {
		t.Errorf("Opens = %d after double RecordOpen, want 1", variants[0].Opens)
	}

	second, _ := s.GetSend(sendID)
	if !second.OpenedAt.Equal(*first.OpenedAt) {
		t.Errorf("OpenedAt changed on second call: %v -> %v", first.OpenedAt, second.OpenedAt)
	}
}

func TestRecordReplyIdempotent(t *testing.T) {
	s := newTestStore(t)

	testID, _ := s.CreateTest("idem", KindSubjectLine, []string{"a"})
	sendID, _ := s.RecordSend(testID+"_v0", "jane@acme.com")

	if err := s.RecordReply(sendID, SentimentPositive); err != nil {
		t.Fatalf("RecordReply() error = %v", err)
	}
	// Second reply, different sentiment: first observation wins.
	if err := s.RecordReply(sendID, SentimentNegative); err != nil {
		t.Fatalf("RecordReply() second call error = %v", err)
	}

	variants, _ := s.Variants(testID)
	v := variants[0]
	if v.Replies != 1 || v.PositiveReplies != 1 {
		t.Errorf("Replies/PositiveReplies = %d/%d, want 1/1", v.Replies, v.PositiveReplies)
	}

	sd, _ := s.GetSend(sendID)
	if sd.Sentiment != SentimentPositive {
		t.Errorf("Sentiment = %q, want first-set positive", sd.Sentiment)
	}
}

func TestRecordOpenUnknownSend(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordOpen("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RecordOpen() error = %v, want ErrNotFound", err)
	}
}

func TestCompleteTestImmutable(t *testing.T) {
	s := newTestStore(t)

	testID, _ := s.CreateTest("done", KindSubjectLine, []string{"a", "b"})

	if err := s.CompleteTest(testID, testID+"_v1"); err != nil {
		t.Fatalf("CompleteTest() error = %v", err)
	}

	got, _ := s.GetTest(testID)
	if got.Status != StatusCompleted || got.WinnerID != testID+"_v1" {
		t.Errorf("test = %+v, want completed with winner v1", got)
	}

	if err := s.PauseTest(testID); err == nil {
		t.Error("PauseTest() on completed test, want error")
	}
	if err := s.CompleteTest(testID, testID+"_v0"); err == nil {
		t.Error("CompleteTest() twice, want error")
	}
}

func TestCompleteTestConcurrent(t *testing.T) {
	s := newTestStore(t)

	testID, _ := s.CreateTest("race", KindSubjectLine, []string{"a", "b"})

	// Two racing completions: exactly one may win, the other must hit the
	// immutability guard.
	errs := make(chan error, 2)
	go func() { errs <- s.CompleteTest(testID, testID+"_v0") }()
	go func() { errs <- s.CompleteTest(testID, testID+"_v1") }()

	failures := 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("concurrent CompleteTest failures = %d, want exactly 1", failures)
	}

	got, err := s.GetTest(testID)
	if err != nil {
		t.Fatalf("GetTest() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.WinnerID != testID+"_v0" && got.WinnerID != testID+"_v1" {
		t.Errorf("WinnerID = %q, want one of the racing winners", got.WinnerID)
	}
}

func TestTransitionUnknownTest(t *testing.T) {
	s := newTestStore(t)

	if err := s.PauseTest("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("PauseTest() error = %v, want ErrNotFound", err)
	}
	if err := s.CompleteTest("missing", "missing_v0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CompleteTest() error = %v, want ErrNotFound", err)
	}
}

func TestPauseResume(t *testing.T) {
	s := newTestStore(t)

	testID, _ := s.CreateTest("pausable", KindSubjectLine, []string{"a", "b"})

	if err := s.PauseTest(testID); err != nil {
		t.Fatalf("PauseTest() error = %v", err)
	}
	got, _ := s.GetTest(testID)
	if got.Status != StatusPaused {
		t.Errorf("Status = %q, want paused", got.Status)
	}

	if err := s.ResumeTest(testID); err != nil {
		t.Fatalf("ResumeTest() error = %v", err)
	}
	got, _ = s.GetTest(testID)
	if got.Status != StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
}
