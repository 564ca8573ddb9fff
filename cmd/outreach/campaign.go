package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/app"
	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/copygen"
	"github.com/foxzi/outreach/internal/instantly"
	"github.com/foxzi/outreach/internal/leads"
)

var (
	campaignName      string
	campaignProspects string
	campaignValueProp string
	campaignStyle     string
	campaignVariants  int
	campaignManifest  string
	campaignMetric    string
	campaignPushID    string
	campaignCTA       string
	campaignEmailsOut string
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign workflow commands",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign with generated subject and opener tests",
	Long: `Create a campaign: generate copy variants from the prospect list,
register an A/B test per tested element and write a campaign manifest
used by later commands.`,
	RunE: runCampaignCreate,
}

var campaignResultsCmd = &cobra.Command{
	Use:   "results <manifest.json>",
	Short: "Show per-test results and significance for a campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignResults,
}

var campaignPushCmd = &cobra.Command{
	Use:   "push <manifest.json>",
	Short: "Push the campaign's prospects to the sending platform",
	Long: `Push the campaign's prospects as leads to a platform campaign.
The prospect file defaults to the one recorded in the manifest.`,
	Args: cobra.ExactArgs(1),
	RunE: runCampaignPush,
}

var campaignGenerateCmd = &cobra.Command{
	Use:   "generate <manifest.json>",
	Short: "Generate emails for the campaign's prospects and record the sends",
	Long: `Generate one email per prospect, assigning a variant from each of the
campaign's tests and recording a send per assignment. When --campaign-id is
given the recipient-to-send mapping is registered for engagement sync.
Generated emails are written as a JSON array to --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runCampaignGenerate,
}

var campaignAccountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Show sending account health",
	RunE:  runCampaignAccounts,
}

func init() {
	campaignCreateCmd.Flags().StringVar(&campaignName, "name", "", "Campaign name (required)")
	campaignCreateCmd.Flags().StringVar(&campaignProspects, "prospects", "", "Prospect CSV path (required)")
	campaignCreateCmd.Flags().StringVar(&campaignValueProp, "value-prop", "", "Value proposition used in generated copy (required)")
	campaignCreateCmd.Flags().StringVar(&campaignStyle, "style", string(copygen.StyleCasual), "Copy style (casual, professional, provocative)")
	campaignCreateCmd.Flags().IntVar(&campaignVariants, "variants", 3, "Variants per test")
	campaignCreateCmd.Flags().StringVar(&campaignManifest, "out", "campaign.json", "Manifest output path")
	campaignCreateCmd.MarkFlagRequired("name")
	campaignCreateCmd.MarkFlagRequired("prospects")
	campaignCreateCmd.MarkFlagRequired("value-prop")

	campaignResultsCmd.Flags().StringVar(&campaignMetric, "metric", string(abtest.MetricReplies), "Metric for significance (opens, replies)")

	campaignPushCmd.Flags().StringVar(&campaignPushID, "campaign-id", "", "Platform campaign ID (required)")
	campaignPushCmd.MarkFlagRequired("campaign-id")

	campaignGenerateCmd.Flags().StringVar(&campaignProspects, "prospects", "", "Prospect CSV path (defaults to the manifest's)")
	campaignGenerateCmd.Flags().StringVar(&campaignPushID, "campaign-id", "", "Platform campaign ID to register sends under")
	campaignGenerateCmd.Flags().StringVar(&campaignCTA, "cta", string(copygen.CTASoft), "Call-to-action style (soft, hard)")
	campaignGenerateCmd.Flags().StringVar(&campaignEmailsOut, "out", "emails.json", "Generated emails output path")

	campaignCmd.AddCommand(campaignCreateCmd, campaignGenerateCmd, campaignResultsCmd, campaignPushCmd, campaignAccountsCmd)
	rootCmd.AddCommand(campaignCmd)
}

// manifest is the on-disk form of a created campaign, consumed by the
// results and push subcommands.
type manifest struct {
	Campaign  *campaign.Campaign `json:"campaign"`
	Prospects string             `json:"prospects_file"`
}

func openOrchestrator() (*campaign.Orchestrator, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := abtest.Open(cfg.Storage.TestsPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open tests database: %w", err)
	}
	store := abtest.NewStore(db)

	generator := copygen.New(copygen.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})

	client := instantly.New(instantly.Config{
		APIKey:             cfg.Instantly.APIKey,
		BaseURL:            cfg.Instantly.BaseURL,
		MaxRetries:         cfg.Instantly.MaxRetries,
		MinRequestInterval: cfg.Instantly.MinRequestInterval,
	})

	logger := app.SetupLogger(cfg.Logging)
	orch := campaign.New(generator, store, client, logger.With("component", "campaign"))
	return orch, cfg, func() { db.Close() }, nil
}

func loadProspects(path string) ([]leads.Prospect, error) {
	result, err := leads.NewImporter(leads.Options{}).ImportCSV(path)
	if err != nil {
		return nil, fmt.Errorf("failed to import prospects: %w", err)
	}
	if result.Imported == 0 {
		return nil, fmt.Errorf("no valid prospects in %s", path)
	}
	return result.Prospects, nil
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Campaign == nil {
		return nil, fmt.Errorf("manifest %s has no campaign", path)
	}
	return &m, nil
}

func runCampaignCreate(cmd *cobra.Command, args []string) error {
	orch, _, closeStore, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer closeStore()

	prospects, err := loadProspects(campaignProspects)
	if err != nil {
		return err
	}

	opts := campaign.DefaultCreateOptions()
	opts.NumVariants = campaignVariants
	opts.Style = copygen.Style(campaignStyle)

	c, err := orch.CreateCampaign(context.Background(), campaignName, prospects, campaignValueProp, opts)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	data, err := json.MarshalIndent(manifest{Campaign: c, Prospects: campaignProspects}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(campaignManifest, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Printf("Campaign %q created with %d prospects\n", c.Name, c.ProspectCount)
	for kind, ref := range c.Tests {
		fmt.Printf("  %s test %s (%d variants)\n", kind, ref.TestID, len(ref.Variants))
	}
	fmt.Printf("Manifest written to %s\n", campaignManifest)
	return nil
}

func runCampaignGenerate(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	prospectsFile := campaignProspects
	if prospectsFile == "" {
		prospectsFile = m.Prospects
	}

	orch, _, closeStore, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer closeStore()

	prospects, err := loadProspects(prospectsFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	emails := make([]*campaign.Email, 0, len(prospects))
	sendIDs := make(map[string]string, len(prospects))

	for _, p := range prospects {
		email, err := orch.GenerateEmail(ctx, p, m.Campaign, copygen.CTAStyle(campaignCTA))
		if err != nil {
			return fmt.Errorf("failed to generate email for %s: %w", p.Email, err)
		}
		ids, err := orch.RecordSends(email)
		if err != nil {
			return fmt.Errorf("failed to record sends for %s: %w", p.Email, err)
		}
		emails = append(emails, email)

		// Engagement credit attaches to the subject-line send when both
		// elements are tested.
		if id, ok := ids[abtest.KindSubjectLine]; ok {
			sendIDs[p.Email] = id
		} else if id, ok := ids[abtest.KindOpeningLine]; ok {
			sendIDs[p.Email] = id
		}
	}

	data, err := json.MarshalIndent(emails, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(campaignEmailsOut, data, 0644); err != nil {
		return fmt.Errorf("failed to write emails: %w", err)
	}

	if campaignPushID != "" && len(sendIDs) > 0 {
		coord, closeCoord, err := openCoordinator()
		if err != nil {
			return err
		}
		defer closeCoord()
		if err := coord.Register(campaignPushID, sendIDs); err != nil {
			return err
		}
		fmt.Printf("Registered %d sends under campaign %s for engagement sync\n", len(sendIDs), campaignPushID)
	}

	fmt.Printf("Generated %d emails, written to %s\n", len(emails), campaignEmailsOut)
	return nil
}

func runCampaignResults(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	orch, _, closeStore, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer closeStore()

	results, err := orch.Results(m.Campaign, abtest.Metric(campaignMetric))
	if err != nil {
		return fmt.Errorf("failed to collect results: %w", err)
	}

	for kind, result := range results {
		fmt.Printf("%s test %s\n", kind, result.TestID)
		for _, v := range result.Variants {
			fmt.Printf("  %s: %d sends, %d opens, %d replies\n", v.ID, v.Sends, v.Opens, v.Replies)
		}
		if result.Decision.Significant {
			fmt.Printf("  Winner: %s (p = %.4f)\n", result.Decision.WinnerID, result.Decision.PValue)
		} else {
			fmt.Printf("  Not significant: %s\n", result.Decision.Reason)
		}
		fmt.Println()
	}
	return nil
}

func runCampaignPush(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	prospectsFile := campaignProspects
	if prospectsFile == "" {
		prospectsFile = m.Prospects
	}

	orch, _, closeStore, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer closeStore()

	prospects, err := loadProspects(prospectsFile)
	if err != nil {
		return err
	}

	if err := orch.PushLeads(context.Background(), campaignPushID, prospects); err != nil {
		return fmt.Errorf("failed to push leads: %w", err)
	}
	fmt.Printf("Pushed %d prospects to campaign %s\n", len(prospects), campaignPushID)
	return nil
}

func runCampaignAccounts(cmd *cobra.Command, args []string) error {
	orch, _, closeStore, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer closeStore()

	accounts, err := orch.AccountHealth(context.Background())
	if err != nil {
		return fmt.Errorf("failed to check account health: %w", err)
	}

	for _, account := range accounts {
		fmt.Println(account.Email)
		for _, alert := range account.Alerts {
			fmt.Printf("  [%s] %s: %s\n", alert.Level, alert.Metric, alert.Message)
		}
	}
	return nil
}
