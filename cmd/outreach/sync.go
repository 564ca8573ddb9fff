package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/app"
	"github.com/foxzi/outreach/internal/instantly"
	"github.com/foxzi/outreach/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Engagement sync commands",
}

var syncRunCmd = &cobra.Command{
	Use:   "run [campaign_id]",
	Short: "Sync opens and replies for one campaign, or all registered ones",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSyncRun,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status <campaign_id>",
	Short: "Show a campaign's sync checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncStatus,
}

var syncResetCmd = &cobra.Command{
	Use:   "reset <campaign_id>",
	Short: "Clear a campaign's sync checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncReset,
}

func init() {
	syncCmd.AddCommand(syncRunCmd, syncStatusCmd, syncResetCmd)
	rootCmd.AddCommand(syncCmd)
}

func openCoordinator() (*syncer.Coordinator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := abtest.Open(cfg.Storage.TestsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tests database: %w", err)
	}
	store := abtest.NewStore(db)

	boltDB, err := bolt.Open(cfg.Storage.SyncPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to open sync database: %w", err)
	}

	client := instantly.New(instantly.Config{
		APIKey:             cfg.Instantly.APIKey,
		BaseURL:            cfg.Instantly.BaseURL,
		MaxRetries:         cfg.Instantly.MaxRetries,
		MinRequestInterval: cfg.Instantly.MinRequestInterval,
	})

	logger := app.SetupLogger(cfg.Logging)
	coord, err := syncer.New(client, store, boltDB, logger.With("component", "syncer"))
	if err != nil {
		boltDB.Close()
		db.Close()
		return nil, nil, err
	}

	closeAll := func() {
		boltDB.Close()
		db.Close()
	}
	return coord, closeAll, nil
}

func printSummary(s syncer.Summary) {
	fmt.Printf("Campaign %s: %d opens synced (%d skipped), %d replies synced (%d skipped)\n",
		s.CampaignID, s.OpensSynced, s.OpensSkipped, s.RepliesSynced, s.RepliesSkipped)
	for _, e := range s.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func runSyncRun(cmd *cobra.Command, args []string) error {
	coord, closeAll, err := openCoordinator()
	if err != nil {
		return err
	}
	defer closeAll()

	ctx := context.Background()

	if len(args) == 0 {
		summaries, err := coord.SyncRegistered(ctx)
		for _, s := range summaries {
			printSummary(s)
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No registered campaigns")
		}
		return nil
	}

	campaignID := args[0]
	sendIDs, err := coord.Registrations(campaignID)
	if err != nil {
		return err
	}
	if len(sendIDs) == 0 {
		return fmt.Errorf("no registered sends for campaign %s", campaignID)
	}

	summary, err := coord.Sync(ctx, campaignID, sendIDs)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	printSummary(*summary)
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	coord, closeAll, err := openCoordinator()
	if err != nil {
		return err
	}
	defer closeAll()

	status, err := coord.Checkpoint(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Campaign %s\n", status.CampaignID)
	if status.LastSyncAt.IsZero() {
		fmt.Println("  Never synced")
	} else {
		fmt.Printf("  Last sync: %s\n", status.LastSyncAt.Format(time.RFC3339))
	}
	fmt.Printf("  Opens credited: %d\n", status.OpenedCount)
	fmt.Printf("  Replies credited: %d\n", status.RepliedCount)
	return nil
}

func runSyncReset(cmd *cobra.Command, args []string) error {
	coord, closeAll, err := openCoordinator()
	if err != nil {
		return err
	}
	defer closeAll()

	if err := coord.Reset(args[0]); err != nil {
		return err
	}
	fmt.Printf("Checkpoint for %s cleared\n", args[0])
	return nil
}
