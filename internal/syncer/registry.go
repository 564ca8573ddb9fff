package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketRegistrations = []byte("sync_registrations")

// Register records the recipient -> send ID mapping for a campaign so the
// background loop knows which sends to credit. Repeated calls merge: new
// recipients are added, existing ones overwritten.
func (c *Coordinator) Register(campaignID string, sendIDs map[string]string) error {
	if len(sendIDs) == 0 {
		return nil
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketRegistrations)
		if err != nil {
			return err
		}

		merged := make(map[string]string)
		if data := bucket.Get([]byte(campaignID)); data != nil {
			if err := json.Unmarshal(data, &merged); err != nil {
				return err
			}
		}
		for recipient, sendID := range sendIDs {
			merged[recipient] = sendID
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(campaignID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to register sends: %w", err)
	}
	return nil
}

// Registrations returns the stored recipient -> send ID mapping for a
// campaign. Unknown campaigns return an empty map.
func (c *Coordinator) Registrations(campaignID string) (map[string]string, error) {
	sendIDs := make(map[string]string)
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRegistrations)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(campaignID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &sendIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}
	return sendIDs, nil
}

// RegisteredCampaigns lists every campaign with at least one registered send.
func (c *Coordinator) RegisteredCampaigns() ([]string, error) {
	var campaigns []string
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRegistrations)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			campaigns = append(campaigns, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list registered campaigns: %w", err)
	}
	return campaigns, nil
}

// SyncRegistered runs a sync for every registered campaign. One campaign
// failing does not stop the others; the first error is returned after all
// campaigns have been attempted.
func (c *Coordinator) SyncRegistered(ctx context.Context) ([]Summary, error) {
	campaigns, err := c.RegisteredCampaigns()
	if err != nil {
		return nil, err
	}

	var summaries []Summary
	var firstErr error
	for _, campaignID := range campaigns {
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}

		sendIDs, err := c.Registrations(campaignID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		summary, err := c.Sync(ctx, campaignID, sendIDs)
		if err != nil {
			c.logger.Error("campaign sync failed", "campaign_id", campaignID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries, firstErr
}
