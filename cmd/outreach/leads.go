package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/leads"
)

var (
	leadsSource      string
	leadsKeepGeneric bool
	leadsMappings    []string
	leadsShowRows    bool
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Prospect list commands",
}

var leadsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import a prospect CSV and report the outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadsImport,
}

var leadsValidateCmd = &cobra.Command{
	Use:   "validate <file.csv>",
	Short: "Check a prospect CSV without importing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadsValidate,
}

func init() {
	leadsImportCmd.Flags().StringVar(&leadsSource, "source", "generic", "CSV source format (generic, apollo, clay)")
	leadsImportCmd.Flags().BoolVar(&leadsKeepGeneric, "keep-generic", false, "Keep role addresses (info@, sales@, ...)")
	leadsImportCmd.Flags().StringArrayVar(&leadsMappings, "map", nil, "Extra header mapping as header=field (repeatable)")
	leadsImportCmd.Flags().BoolVar(&leadsShowRows, "show", false, "Print imported prospects")

	leadsCmd.AddCommand(leadsImportCmd, leadsValidateCmd)
	rootCmd.AddCommand(leadsCmd)
}

func newImporter() (*leads.Importer, error) {
	switch leadsSource {
	case "apollo":
		return leads.NewApolloImporter(), nil
	case "clay":
		return leads.NewClayImporter(), nil
	case "generic", "":
	default:
		return nil, fmt.Errorf("unknown source %q (want generic, apollo or clay)", leadsSource)
	}

	mappings := make(map[string]string, len(leadsMappings))
	for _, m := range leadsMappings {
		header, field, ok := strings.Cut(m, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mapping %q (want header=field)", m)
		}
		mappings[header] = field
	}

	return leads.NewImporter(leads.Options{
		CustomMappings:    mappings,
		KeepGenericEmails: leadsKeepGeneric,
	}), nil
}

func runLeadsImport(cmd *cobra.Command, args []string) error {
	importer, err := newImporter()
	if err != nil {
		return err
	}

	result, err := importer.ImportCSV(args[0])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Println(result.Summary())
	for _, rowErr := range result.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Reason)
	}

	if leadsShowRows && len(result.Prospects) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tNAME\tCOMPANY\tTITLE")
		for _, p := range result.Prospects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Email, p.FullName(), p.Company, p.Title)
		}
		w.Flush()
	}
	return nil
}

func runLeadsValidate(cmd *cobra.Command, args []string) error {
	importer, err := newImporter()
	if err != nil {
		return err
	}

	ok, issues := importer.ValidateFile(args[0])
	if ok {
		fmt.Println("File looks valid")
		return nil
	}

	fmt.Println("File has issues:")
	for _, issue := range issues {
		fmt.Printf("  - %s\n", issue)
	}
	os.Exit(1)
	return nil
}
