package abtest

import "time"

// VariantKind is the class of email content being varied.
type VariantKind string

const (
	KindSubjectLine VariantKind = "subject_line"
	KindOpeningLine VariantKind = "opening_line"
	KindCTA         VariantKind = "cta"
	KindFullBody    VariantKind = "full_body"
)

// TestStatus is the lifecycle state of a test. Completed tests are
// immutable.
type TestStatus string

const (
	StatusRunning   TestStatus = "running"
	StatusCompleted TestStatus = "completed"
	StatusPaused    TestStatus = "paused"
)

// Sentiment classifies a reply.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Test is one A/B experiment over a set of content variants.
type Test struct {
	ID        string      `json:"test_id"`
	Name      string      `json:"test_name"`
	Kind      VariantKind `json:"variant_type"`
	Status    TestStatus  `json:"status"`
	WinnerID  string      `json:"winner_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Variant is one candidate content string with its engagement counters.
// Counters only increase and are the authoritative input to the
// significance check.
type Variant struct {
	ID              string `json:"variant_id"`
	TestID          string `json:"test_id"`
	Content         string `json:"content"`
	Sends           int    `json:"sends"`
	Opens           int    `json:"opens"`
	Replies         int    `json:"replies"`
	PositiveReplies int    `json:"positive_replies"`
}

// OpenRate returns opens/sends, zero when nothing was sent.
func (v Variant) OpenRate() float64 {
	if v.Sends == 0 {
		return 0
	}
	return float64(v.Opens) / float64(v.Sends)
}

// ReplyRate returns replies/sends, zero when nothing was sent.
func (v Variant) ReplyRate() float64 {
	if v.Sends == 0 {
		return 0
	}
	return float64(v.Replies) / float64(v.Sends)
}

// Send is a single dispatched message. OpenedAt and RepliedAt are set at
// most once; the first observation wins.
type Send struct {
	ID        string     `json:"send_id"`
	VariantID string     `json:"variant_id"`
	Recipient string     `json:"recipient"`
	SentAt    time.Time  `json:"sent_at"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	RepliedAt *time.Time `json:"replied_at,omitempty"`
	Sentiment Sentiment  `json:"reply_sentiment,omitempty"`
}
