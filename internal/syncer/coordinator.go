// Package syncer pulls engagement events (opens, replies) from the sending
// platform and credits them to the local experiment store exactly once.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/instantly"
	"github.com/foxzi/outreach/internal/metrics"
)

// Summary reports what one sync run did. Errors carries descriptions of
// partial failures: a failed category fetch never aborts the run.
type Summary struct {
	CampaignID     string   `json:"campaign_id"`
	OpensSynced    int      `json:"opens_synced"`
	OpensSkipped   int      `json:"opens_skipped"`
	RepliesSynced  int      `json:"replies_synced"`
	RepliesSkipped int      `json:"replies_skipped"`
	Errors         []string `json:"errors,omitempty"`
}

// Coordinator syncs platform engagement into the experiment store. Runs for
// the same campaign are serialized; different campaigns may sync
// concurrently.
type Coordinator struct {
	client *instantly.Client
	store  *abtest.Store
	db     *bolt.DB
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New creates a coordinator persisting checkpoints in the given bbolt
// database.
func New(client *instantly.Client, store *abtest.Store, db *bolt.DB, logger *slog.Logger) (*Coordinator, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoints)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint bucket: %w", err)
	}

	return &Coordinator{
		client: client,
		store:  store,
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
		now:    time.Now,
	}, nil
}

func (c *Coordinator) campaignLock(campaignID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.locks[campaignID]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[campaignID] = mu
	}
	return mu
}

// Sync fetches opened and replied events for one campaign and records them
// against the sends in sendIDs (recipient email -> send ID). Events for
// recipients outside the map are ignored. The checkpoint guarantees each
// recipient is credited at most once per event type across runs, and its
// LastSyncAt advances even when every category fails.
func (c *Coordinator) Sync(ctx context.Context, campaignID string, sendIDs map[string]string) (*Summary, error) {
	mu := c.campaignLock(campaignID)
	mu.Lock()
	defer mu.Unlock()

	cp, err := c.loadCheckpoint(campaignID)
	if err != nil {
		metrics.ObserveSyncRun(0, 0, 0, 0, 1, true)
		return nil, err
	}

	summary := &Summary{CampaignID: campaignID}

	c.syncOpens(ctx, campaignID, sendIDs, cp, summary)
	c.syncReplies(ctx, campaignID, sendIDs, cp, summary)

	cp.LastSyncAt = c.now()
	if err := c.saveCheckpoint(campaignID, cp); err != nil {
		metrics.ObserveSyncRun(0, 0, 0, 0, 1, true)
		return nil, err
	}

	metrics.ObserveSyncRun(
		summary.OpensSynced, summary.OpensSkipped,
		summary.RepliesSynced, summary.RepliesSkipped,
		len(summary.Errors), false,
	)

	c.logger.Info("engagement sync finished",
		"campaign_id", campaignID,
		"opens_synced", summary.OpensSynced,
		"opens_skipped", summary.OpensSkipped,
		"replies_synced", summary.RepliesSynced,
		"replies_skipped", summary.RepliesSkipped,
		"errors", len(summary.Errors))

	return summary, nil
}

func (c *Coordinator) syncOpens(ctx context.Context, campaignID string, sendIDs map[string]string, cp *Checkpoint, summary *Summary) {
	events, err := c.client.GetLeadActivity(ctx, campaignID, "", "opened")
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("failed to fetch opens: %v", err))
		return
	}

	for _, event := range events {
		email, ok := event["email"].(string)
		if !ok || email == "" {
			continue
		}
		sendID, ok := sendIDs[email]
		if !ok {
			continue
		}
		if cp.OpenedRecipients[email] {
			summary.OpensSkipped++
			continue
		}
		if err := c.store.RecordOpen(sendID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("failed to record open for %s: %v", email, err))
			continue
		}
		cp.OpenedRecipients[email] = true
		summary.OpensSynced++
	}
}

func (c *Coordinator) syncReplies(ctx context.Context, campaignID string, sendIDs map[string]string, cp *Checkpoint, summary *Summary) {
	it := c.client.IterReplies(ctx, campaignID)
	for it.Next() {
		reply := it.Item()
		email, ok := reply["email"].(string)
		if !ok || email == "" {
			continue
		}
		sendID, ok := sendIDs[email]
		if !ok {
			continue
		}
		if cp.RepliedRecipients[email] {
			summary.RepliesSkipped++
			continue
		}
		sentiment := replySentiment(reply)
		if err := c.store.RecordReply(sendID, sentiment); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("failed to record reply for %s: %v", email, err))
			continue
		}
		cp.RepliedRecipients[email] = true
		summary.RepliesSynced++
	}
	if err := it.Err(); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("failed to fetch replies: %v", err))
	}
}

// replySentiment reads the platform's sentiment classification off a reply
// event. Unknown or missing values fall back to neutral.
func replySentiment(reply map[string]any) abtest.Sentiment {
	raw, _ := reply["sentiment"].(string)
	switch abtest.Sentiment(raw) {
	case abtest.SentimentPositive, abtest.SentimentNegative:
		return abtest.Sentiment(raw)
	default:
		return abtest.SentimentNeutral
	}
}
