package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketCheckpoints = []byte("sync_checkpoints")

// Checkpoint is the per-campaign deduplication guard: recipients already
// credited with an open or a reply. It is bookkeeping, not business data.
type Checkpoint struct {
	LastSyncAt        time.Time       `json:"last_sync_at"`
	OpenedRecipients  map[string]bool `json:"opened_recipients"`
	RepliedRecipients map[string]bool `json:"replied_recipients"`
}

func newCheckpoint() *Checkpoint {
	return &Checkpoint{
		OpenedRecipients:  make(map[string]bool),
		RepliedRecipients: make(map[string]bool),
	}
}

// CheckpointStatus is the read-only snapshot exposed to reporting.
type CheckpointStatus struct {
	CampaignID   string    `json:"campaign_id"`
	LastSyncAt   time.Time `json:"last_sync_at"`
	OpenedCount  int       `json:"opened_count"`
	RepliedCount int       `json:"replied_count"`
}

func (c *Coordinator) loadCheckpoint(campaignID string) (*Checkpoint, error) {
	cp := newCheckpoint()
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCheckpoints)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(campaignID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, cp)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp.OpenedRecipients == nil {
		cp.OpenedRecipients = make(map[string]bool)
	}
	if cp.RepliedRecipients == nil {
		cp.RepliedRecipients = make(map[string]bool)
	}
	return cp, nil
}

func (c *Coordinator) saveCheckpoint(campaignID string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put([]byte(campaignID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Reset clears a campaign's checkpoint sets, forcing a full re-credit on
// the next sync. Operators use this after a suspected miss.
func (c *Coordinator) Reset(campaignID string) error {
	mu := c.campaignLock(campaignID)
	mu.Lock()
	defer mu.Unlock()

	cp, err := c.loadCheckpoint(campaignID)
	if err != nil {
		return err
	}
	cp.OpenedRecipients = make(map[string]bool)
	cp.RepliedRecipients = make(map[string]bool)
	return c.saveCheckpoint(campaignID, cp)
}

// Checkpoint returns the reporting snapshot for one campaign.
func (c *Coordinator) Checkpoint(campaignID string) (*CheckpointStatus, error) {
	cp, err := c.loadCheckpoint(campaignID)
	if err != nil {
		return nil, err
	}
	return &CheckpointStatus{
		CampaignID:   campaignID,
		LastSyncAt:   cp.LastSyncAt,
		OpenedCount:  len(cp.OpenedRecipients),
		RepliedCount: len(cp.RepliedRecipients),
	}, nil
}
