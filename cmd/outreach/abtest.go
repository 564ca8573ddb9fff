package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/analytics"
)

var (
	testCreateName     string
	testCreateKind     string
	testCreateVariants []string
	testSigMetric      string
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "A/B test management commands",
}

var testCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an A/B test from explicit variants",
	RunE:  runTestCreate,
}

var testListCmd = &cobra.Command{
	Use:   "list",
	Short: "List A/B tests",
	RunE:  runTestList,
}

var testResultsCmd = &cobra.Command{
	Use:   "results <test_id>",
	Short: "Show a test report with per-variant rates",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestResults,
}

var testSignificanceCmd = &cobra.Command{
	Use:   "significance <test_id>",
	Short: "Run the significance check for a test",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestSignificance,
}

var testCompleteCmd = &cobra.Command{
	Use:   "complete <test_id> <winner_id>",
	Short: "Complete a test and record its winner",
	Args:  cobra.ExactArgs(2),
	RunE:  runTestComplete,
}

var testPauseCmd = &cobra.Command{
	Use:   "pause <test_id>",
	Short: "Pause a running test",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestPause,
}

var testResumeCmd = &cobra.Command{
	Use:   "resume <test_id>",
	Short: "Resume a paused test",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestResume,
}

func init() {
	testCreateCmd.Flags().StringVar(&testCreateName, "name", "", "Test name (required)")
	testCreateCmd.Flags().StringVar(&testCreateKind, "kind", string(abtest.KindSubjectLine), "Variant kind (subject_line, opening_line, cta, full_body)")
	testCreateCmd.Flags().StringArrayVar(&testCreateVariants, "variant", nil, "Variant content (repeatable, at least one required)")
	testCreateCmd.MarkFlagRequired("name")

	testSignificanceCmd.Flags().StringVar(&testSigMetric, "metric", string(abtest.MetricReplies), "Metric to test (opens, replies)")

	testCmd.AddCommand(testCreateCmd, testListCmd, testResultsCmd, testSignificanceCmd, testCompleteCmd, testPauseCmd, testResumeCmd)
	rootCmd.AddCommand(testCmd)
}

func runTestCreate(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	testID, err := store.CreateTest(testCreateName, abtest.VariantKind(testCreateKind), testCreateVariants)
	if err != nil {
		return fmt.Errorf("failed to create test: %w", err)
	}

	fmt.Printf("Created test %s with %d variants\n", testID, len(testCreateVariants))
	return nil
}

func runTestList(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	tests, err := store.ListTests()
	if err != nil {
		return fmt.Errorf("failed to list tests: %w", err)
	}

	if len(tests) == 0 {
		fmt.Println("No tests")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tSTATUS\tWINNER\tCREATED")
	for _, t := range tests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.Kind, t.Status, t.WinnerID,
			t.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func runTestResults(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := analytics.NewAnalyzer(store).GenerateReport(args[0])
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	fmt.Printf("Test %s\n", report.TestID)
	fmt.Printf("  Sends: %d  Opens: %d (%.2f%%)  Replies: %d (%.2f%%)\n",
		report.Summary.TotalSends,
		report.Summary.TotalOpens, report.Summary.OverallOpenRate,
		report.Summary.TotalReplies, report.Summary.OverallReplyRate)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tCONTENT\tSENDS\tOPEN%\tREPLY%\tPOSITIVE%")
	for _, v := range report.Variants {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\n",
			v.VariantID, v.ContentPreview, v.Sends, v.OpenRate, v.ReplyRate, v.PositiveRate)
	}
	w.Flush()

	fmt.Println()
	if report.Leader.VariantID != "" {
		fmt.Printf("Leader: %s (%.2f%% replies, %.1f%% vs average)\n",
			report.Leader.VariantID, report.Leader.ReplyRate, report.Leader.LiftVsAverage)
	}
	fmt.Printf("Recommendation: %s\n", report.Recommendation)
	return nil
}

func runTestSignificance(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	decision, err := store.CheckSignificance(args[0], abtest.Metric(testSigMetric))
	if err != nil {
		return fmt.Errorf("significance check failed: %w", err)
	}

	if decision.Significant {
		fmt.Printf("Significant (p = %.4f)\n", decision.PValue)
		fmt.Printf("Winner: %s (%.2f%%)\n", decision.WinnerID, decision.WinnerRate*100)
	} else {
		fmt.Printf("Not significant: %s\n", decision.Reason)
	}

	ids := make([]string, 0, len(decision.VariantRates))
	for id := range decision.VariantRates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %s: %.2f%%\n", id, decision.VariantRates[id]*100)
	}
	return nil
}

func runTestComplete(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.CompleteTest(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to complete test: %w", err)
	}
	fmt.Printf("Test %s completed, winner %s\n", args[0], args[1])
	return nil
}

func runTestPause(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.PauseTest(args[0]); err != nil {
		return fmt.Errorf("failed to pause test: %w", err)
	}
	fmt.Printf("Test %s paused\n", args[0])
	return nil
}

func runTestResume(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.ResumeTest(args[0]); err != nil {
		return fmt.Errorf("failed to resume test: %w", err)
	}
	fmt.Printf("Test %s resumed\n", args[0])
	return nil
}
