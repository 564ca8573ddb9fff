package analytics

import (
	"strings"
	"testing"
	"time"

	"github.com/foxzi/outreach/internal/abtest"
)

func TestBuildReport(t *testing.T) {
	variants := []abtest.Variant{
		{ID: "t_v0", Content: "quick question", Sends: 200, Opens: 80, Replies: 10, PositiveReplies: 5},
		{ID: "t_v1", Content: "saw the news", Sends: 200, Opens: 90, Replies: 30, PositiveReplies: 20},
	}

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r := BuildReport("t", variants, now)

	if r.Summary.TotalSends != 400 || r.Summary.TotalOpens != 170 || r.Summary.TotalReplies != 40 {
		t.Errorf("summary = %+v, want 400/170/40", r.Summary)
	}
	if r.Summary.OverallOpenRate != 42.5 {
		t.Errorf("OverallOpenRate = %v, want 42.5", r.Summary.OverallOpenRate)
	}
	if r.Summary.OverallReplyRate != 10 {
		t.Errorf("OverallReplyRate = %v, want 10", r.Summary.OverallReplyRate)
	}

	// v1 leads on reply rate: 15% vs 5%, average 10%, lift +50%.
	if r.Leader.VariantID != "t_v1" {
		t.Errorf("Leader = %q, want t_v1", r.Leader.VariantID)
	}
	if r.Leader.ReplyRate != 15 {
		t.Errorf("Leader.ReplyRate = %v, want 15", r.Leader.ReplyRate)
	}
	if r.Leader.LiftVsAverage != 50 {
		t.Errorf("LiftVsAverage = %v, want 50", r.Leader.LiftVsAverage)
	}
	if r.Leader.Content != "saw the news" {
		t.Errorf("Leader.Content = %q", r.Leader.Content)
	}

	if r.Variants[0].VariantID != "t_v1" {
		t.Errorf("variants not sorted best-first: %v", r.Variants)
	}
	if !r.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %v, want %v", r.GeneratedAt, now)
	}
}

func TestBuildPerformanceRates(t *testing.T) {
	perf := buildPerformance([]abtest.Variant{
		{ID: "v", Content: "c", Sends: 3, Opens: 1, Replies: 2, PositiveReplies: 1},
	})

	if perf[0].OpenRate != 33.33 {
		t.Errorf("OpenRate = %v, want 33.33", perf[0].OpenRate)
	}
	if perf[0].ReplyRate != 66.67 {
		t.Errorf("ReplyRate = %v, want 66.67", perf[0].ReplyRate)
	}
	if perf[0].PositiveRate != 50 {
		t.Errorf("PositiveRate = %v, want 50", perf[0].PositiveRate)
	}
}

func TestBuildPerformanceZeroSends(t *testing.T) {
	perf := buildPerformance([]abtest.Variant{{ID: "v", Content: "c"}})
	if perf[0].OpenRate != 0 || perf[0].ReplyRate != 0 || perf[0].PositiveRate != 0 {
		t.Errorf("rates = %+v, want zeros without sends", perf[0])
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", 60)
	if got := preview(long); len([]rune(got)) != contentPreviewLen+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("preview() = %q, want %d chars plus ellipsis", got, contentPreviewLen)
	}
	if got := preview("short"); got != "short" {
		t.Errorf("preview() = %q, want unchanged", got)
	}
}

func TestRecommendationLowVolume(t *testing.T) {
	perf := buildPerformance([]abtest.Variant{
		{ID: "a", Sends: 50, Replies: 5},
		{ID: "b", Sends: 50, Replies: 1},
	})
	if got := recommendation(perf); !strings.Contains(got, "Continue testing") {
		t.Errorf("recommendation() = %q, want continue testing under 200 sends", got)
	}
}

func TestRecommendationStrongSignal(t *testing.T) {
	perf := buildPerformance([]abtest.Variant{
		{ID: "a", Sends: 200, Replies: 40}, // 20%
		{ID: "b", Sends: 200, Replies: 10}, // 5%
	})
	got := recommendation(perf)
	if !strings.Contains(got, "Strong signal") {
		t.Fatalf("recommendation() = %q, want strong signal", got)
	}
	// (20-5)/5 = 300% outperformance.
	if !strings.Contains(got, "300%") {
		t.Errorf("recommendation() = %q, want 300%% lift named", got)
	}
}

func TestRecommendationOnlyVariantWithReplies(t *testing.T) {
	perf := buildPerformance([]abtest.Variant{
		{ID: "a", Sends: 200, Replies: 20},
		{ID: "b", Sends: 200, Replies: 0},
	})
	got := recommendation(perf)
	if !strings.Contains(got, "only one getting replies") {
		t.Errorf("recommendation() = %q, want zero-reply runner-up case handled", got)
	}
}

func TestRecommendationCloseResults(t *testing.T) {
	perf := buildPerformance([]abtest.Variant{
		{ID: "a", Sends: 200, Replies: 21},
		{ID: "b", Sends: 200, Replies: 20},
	})
	if got := recommendation(perf); !strings.Contains(got, "Results are close") {
		t.Errorf("recommendation() = %q, want close-results verdict", got)
	}
}

func TestAnalyzerThroughStore(t *testing.T) {
	db, err := abtest.Open(t.TempDir() + "/tests.db")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	store := abtest.NewStore(db)

	testID, _ := store.CreateTest("report", abtest.KindSubjectLine, []string{"a", "b"})
	sendID, _ := store.RecordSend(testID+"_v1", "jane@acme.com")
	store.RecordReply(sendID, abtest.SentimentPositive)

	a := NewAnalyzer(store)
	r, err := a.GenerateReport(testID)
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if r.Leader.VariantID != testID+"_v1" {
		t.Errorf("Leader = %q, want %s_v1", r.Leader.VariantID, testID)
	}

	if _, err := a.GenerateReport("missing"); err == nil {
		t.Error("GenerateReport() on unknown test, want error")
	}
}
