// Package analytics turns raw experiment counters into reports,
// recommendations and health alerts.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/foxzi/outreach/internal/abtest"
)

const contentPreviewLen = 50

// VariantPerformance is one variant's counters with derived rates.
// Rates are percentages rounded to two decimals.
type VariantPerformance struct {
	VariantID       string  `json:"variant_id"`
	ContentPreview  string  `json:"content_preview"`
	Sends           int     `json:"sends"`
	Opens           int     `json:"opens"`
	Replies         int     `json:"replies"`
	PositiveReplies int     `json:"positive_replies"`
	OpenRate        float64 `json:"open_rate"`
	ReplyRate       float64 `json:"reply_rate"`
	PositiveRate    float64 `json:"positive_rate"`
}

// Summary aggregates a whole test.
type Summary struct {
	TotalSends       int     `json:"total_sends"`
	TotalOpens       int     `json:"total_opens"`
	TotalReplies     int     `json:"total_replies"`
	OverallOpenRate  float64 `json:"overall_open_rate"`
	OverallReplyRate float64 `json:"overall_reply_rate"`
}

// Leader describes the current best variant by reply rate.
type Leader struct {
	VariantID     string  `json:"variant_id"`
	Content       string  `json:"content"`
	ReplyRate     float64 `json:"reply_rate"`
	LiftVsAverage float64 `json:"lift_vs_average"`
}

// Report is a complete test report.
type Report struct {
	TestID         string               `json:"test_id"`
	GeneratedAt    time.Time            `json:"generated_at"`
	Summary        Summary              `json:"summary"`
	Leader         Leader               `json:"leader"`
	Variants       []VariantPerformance `json:"variants"`
	Recommendation string               `json:"recommendation"`
}

// Analyzer reads experiment data and builds reports.
type Analyzer struct {
	store *abtest.Store
}

// NewAnalyzer creates an analyzer over the experiment store.
func NewAnalyzer(store *abtest.Store) *Analyzer {
	return &Analyzer{store: store}
}

// VariantPerformance returns per-variant stats sorted by reply rate,
// best first.
func (a *Analyzer) VariantPerformance(testID string) ([]VariantPerformance, error) {
	variants, err := a.store.Variants(testID)
	if err != nil {
		return nil, err
	}
	return buildPerformance(variants), nil
}

// GenerateReport builds a complete report for one test.
func (a *Analyzer) GenerateReport(testID string) (*Report, error) {
	variants, err := a.store.Variants(testID)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("test %s: %w", testID, abtest.ErrNotFound)
	}
	return BuildReport(testID, variants, time.Now()), nil
}

// BuildReport assembles a report from a variant snapshot.
func BuildReport(testID string, variants []abtest.Variant, now time.Time) *Report {
	perf := buildPerformance(variants)

	var summary Summary
	for _, p := range perf {
		summary.TotalSends += p.Sends
		summary.TotalOpens += p.Opens
		summary.TotalReplies += p.Replies
	}
	if summary.TotalSends > 0 {
		summary.OverallOpenRate = round2(float64(summary.TotalOpens) / float64(summary.TotalSends) * 100)
		summary.OverallReplyRate = round2(float64(summary.TotalReplies) / float64(summary.TotalSends) * 100)
	}

	// perf is sorted best-first.
	top := perf[0]
	var avgReplyRate float64
	for _, p := range perf {
		avgReplyRate += p.ReplyRate
	}
	avgReplyRate /= float64(len(perf))

	var lift float64
	if avgReplyRate > 0 {
		lift = round1((top.ReplyRate - avgReplyRate) / avgReplyRate * 100)
	}

	var content string
	for _, v := range variants {
		if v.ID == top.VariantID {
			content = v.Content
			break
		}
	}

	return &Report{
		TestID:      testID,
		GeneratedAt: now,
		Summary:     summary,
		Leader: Leader{
			VariantID:     top.VariantID,
			Content:       content,
			ReplyRate:     top.ReplyRate,
			LiftVsAverage: lift,
		},
		Variants:       perf,
		Recommendation: recommendation(perf),
	}
}

func buildPerformance(variants []abtest.Variant) []VariantPerformance {
	perf := make([]VariantPerformance, 0, len(variants))
	for _, v := range variants {
		p := VariantPerformance{
			VariantID:       v.ID,
			ContentPreview:  preview(v.Content),
			Sends:           v.Sends,
			Opens:           v.Opens,
			Replies:         v.Replies,
			PositiveReplies: v.PositiveReplies,
		}
		if v.Sends > 0 {
			p.OpenRate = round2(float64(v.Opens) / float64(v.Sends) * 100)
			p.ReplyRate = round2(float64(v.Replies) / float64(v.Sends) * 100)
		}
		if v.Replies > 0 {
			p.PositiveRate = round2(float64(v.PositiveReplies) / float64(v.Replies) * 100)
		}
		perf = append(perf, p)
	}

	sort.SliceStable(perf, func(i, j int) bool {
		return perf[i].ReplyRate > perf[j].ReplyRate
	})
	return perf
}

// recommendation produces an actionable next step from the current
// standings.
func recommendation(perf []VariantPerformance) string {
	var totalSends int
	for _, p := range perf {
		totalSends += p.Sends
	}

	if totalSends < 200 {
		return "Continue testing - need more volume for reliable results (target: 400+ sends per variant)"
	}

	if len(perf) < 2 {
		return "Insufficient data for recommendation"
	}

	best := perf[0].ReplyRate
	second := perf[1].ReplyRate

	if best > 0 && (best-second)/best > 0.2 {
		if second == 0 {
			return "Strong signal: leading variant is the only one getting replies. Consider promoting to 100% of traffic."
		}
		return fmt.Sprintf("Strong signal: leading variant outperforms by %.0f%%. Consider promoting to 100%% of traffic.",
			(best-second)/second*100)
	}
	return "Results are close - continue testing or consider if variants are meaningfully different"
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= contentPreviewLen {
		return content
	}
	return string(runes[:contentPreviewLen]) + "..."
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
