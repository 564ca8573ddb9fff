// Package leads imports prospect lists from CSV exports of common
// enrichment tools (Apollo, Clay, LinkedIn Sales Navigator and the like),
// with validation and email-level deduplication.
package leads

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Prospect is one importable contact. CustomFields carries any CSV columns
// that did not map to a standard field.
type Prospect struct {
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Company      string            `json:"company"`
	Title        string            `json:"title,omitempty"`
	Industry     string            `json:"industry,omitempty"`
	CompanySize  string            `json:"company_size,omitempty"`
	LinkedInURL  string            `json:"linkedin_url,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// FullName returns the prospect's display name.
func (p Prospect) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// RowError describes one rejected CSV row.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult is the outcome of one import run.
type ImportResult struct {
	Imported   int        `json:"imported"`
	Duplicates int        `json:"duplicates"`
	Invalid    int        `json:"invalid"`
	Prospects  []Prospect `json:"prospects"`
	Errors     []RowError `json:"errors,omitempty"`
}

// TotalProcessed returns the number of data rows seen.
func (r *ImportResult) TotalProcessed() int {
	return r.Imported + r.Duplicates + r.Invalid
}

// Summary returns a one-line human description of the run.
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("Import complete: %d imported, %d duplicates skipped, %d invalid rows",
		r.Imported, r.Duplicates, r.Invalid)
}

// columnMappings normalizes header names seen across export tools to
// standard field names.
var columnMappings = map[string]string{
	"email":               "email",
	"email_address":       "email",
	"work_email":          "email",
	"contact_email":       "email",
	"primary_email":       "email",
	"first_name":          "first_name",
	"firstname":           "first_name",
	"first":               "first_name",
	"given_name":          "first_name",
	"last_name":           "last_name",
	"lastname":            "last_name",
	"last":                "last_name",
	"surname":             "last_name",
	"family_name":         "last_name",
	"company":             "company",
	"company_name":        "company",
	"organization":        "company",
	"org":                 "company",
	"account_name":        "company",
	"title":               "title",
	"job_title":           "title",
	"position":            "title",
	"role":                "title",
	"industry":            "industry",
	"company_industry":    "industry",
	"sector":              "industry",
	"company_size":        "company_size",
	"employees":           "company_size",
	"employee_count":      "company_size",
	"headcount":           "company_size",
	"size":                "company_size",
	"linkedin_url":        "linkedin_url",
	"linkedin":            "linkedin_url",
	"linkedin_profile":    "linkedin_url",
	"person_linkedin_url": "linkedin_url",
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Role-based and throwaway addresses that are pointless to cold-email.
var (
	genericDomains  = []string{"example.com", "test.com", "mailinator.com"}
	genericPrefixes = []string{"test@", "noreply@", "no-reply@", "info@", "contact@", "sales@", "support@"}
)

// Options configures an Importer.
type Options struct {
	// CustomMappings adds or overrides header-to-field mappings. Keys are
	// normalized headers (lowercase, underscores).
	CustomMappings map[string]string

	// KeepGenericEmails disables the role-address filter (info@, sales@...).
	KeepGenericEmails bool
}

// Importer reads prospect CSVs.
type Importer struct {
	mappings    map[string]string
	skipGeneric bool
}

// NewImporter creates an importer. A zero Options value gives the default
// behavior: standard mappings, generic addresses skipped.
func NewImporter(opts Options) *Importer {
	mappings := make(map[string]string, len(columnMappings)+len(opts.CustomMappings))
	for k, v := range columnMappings {
		mappings[k] = v
	}
	for k, v := range opts.CustomMappings {
		mappings[k] = v
	}
	return &Importer{
		mappings:    mappings,
		skipGeneric: !opts.KeepGenericEmails,
	}
}

// NewApolloImporter creates an importer tuned for Apollo.io exports.
func NewApolloImporter() *Importer {
	return NewImporter(Options{CustomMappings: map[string]string{
		"#_employees":         "company_size",
		"person_linkedin_url": "linkedin_url",
	}})
}

// NewClayImporter creates an importer tuned for Clay exports.
func NewClayImporter() *Importer {
	return NewImporter(Options{CustomMappings: map[string]string{
		"companyname": "company",
		"firstname":   "first_name",
		"lastname":    "last_name",
	}})
}

// ImportCSV imports prospects from a CSV file. Invalid rows are collected
// into the result rather than aborting the run.
func (im *Importer) ImportCSV(path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	return im.importReader(f)
}

func (im *Importer) importReader(r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file has no headers")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	// Excel exports prepend a BOM to the first header.
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")

	fields := im.mapHeaders(headers)

	result := &ImportResult{Prospects: []Prospect{}}
	seen := make(map[string]bool)

	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowNum, err)
		}

		prospect, reason := im.processRow(record, fields)
		if reason != "" {
			result.Invalid++
			result.Errors = append(result.Errors, RowError{Row: rowNum, Reason: reason})
			continue
		}
		if seen[prospect.Email] {
			result.Duplicates++
			continue
		}
		seen[prospect.Email] = true

		result.Prospects = append(result.Prospects, prospect)
		result.Imported++
	}

	return result, nil
}

// mapHeaders resolves each CSV column to a standard field name. Unknown
// columns become custom_<name> and land in Prospect.CustomFields.
func (im *Importer) mapHeaders(headers []string) []string {
	fields := make([]string, len(headers))
	for i, header := range headers {
		normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
		if field, ok := im.mappings[normalized]; ok {
			fields[i] = field
		} else {
			fields[i] = "custom_" + normalized
		}
	}
	return fields
}

// processRow converts one record into a Prospect. A non-empty reason means
// the row is invalid.
func (im *Importer) processRow(record []string, fields []string) (Prospect, string) {
	mapped := make(map[string]string)
	custom := make(map[string]string)

	for i, value := range record {
		if i >= len(fields) {
			break
		}
		value = strings.TrimSpace(value)
		if name, ok := strings.CutPrefix(fields[i], "custom_"); ok {
			if value != "" {
				custom[name] = value
			}
		} else {
			mapped[fields[i]] = value
		}
	}

	email := strings.ToLower(mapped["email"])
	switch {
	case email == "":
		return Prospect{}, "missing email address"
	case !emailRegex.MatchString(email):
		return Prospect{}, fmt.Sprintf("invalid email format: %s", email)
	case im.skipGeneric && isGenericEmail(email):
		return Prospect{}, fmt.Sprintf("generic email skipped: %s", email)
	}

	if mapped["first_name"] == "" {
		return Prospect{}, "missing first name"
	}
	if mapped["last_name"] == "" {
		return Prospect{}, "missing last name"
	}
	if mapped["company"] == "" {
		return Prospect{}, "missing company name"
	}

	p := Prospect{
		Email:       email,
		FirstName:   mapped["first_name"],
		LastName:    mapped["last_name"],
		Company:     mapped["company"],
		Title:       mapped["title"],
		Industry:    mapped["industry"],
		CompanySize: mapped["company_size"],
		LinkedInURL: mapped["linkedin_url"],
	}
	if len(custom) > 0 {
		p.CustomFields = custom
	}
	return p, ""
}

func isGenericEmail(email string) bool {
	for _, prefix := range genericPrefixes {
		if strings.HasPrefix(email, prefix) {
			return true
		}
	}
	for _, domain := range genericDomains {
		if strings.HasSuffix(email, "@"+domain) {
			return true
		}
	}
	return false
}

// ValidateFile checks a CSV file without importing it, returning the issues
// found. Only the first few data rows are sampled.
func (im *Importer) ValidateFile(path string) (bool, []string) {
	f, err := os.Open(path)
	if err != nil {
		return false, []string{"file not found"}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return false, []string{"no headers found"}
	}
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	fields := im.mapHeaders(headers)

	var issues []string

	present := make(map[string]bool, len(fields))
	for _, f := range fields {
		present[f] = true
	}
	for _, required := range []string{"email", "first_name", "last_name", "company"} {
		if !present[required] {
			issues = append(issues, fmt.Sprintf("missing required column: %s", required))
		}
	}

	emailIdx := -1
	for i, f := range fields {
		if f == "email" {
			emailIdx = i
			break
		}
	}

	for i := 0; i < 5; i++ {
		record, err := reader.Read()
		if err != nil {
			break
		}
		if emailIdx < 0 || emailIdx >= len(record) {
			continue
		}
		email := strings.ToLower(strings.TrimSpace(record[emailIdx]))
		if email != "" && !emailRegex.MatchString(email) {
			issues = append(issues, fmt.Sprintf("row %d: invalid email format", i+2))
		}
	}

	return len(issues) == 0, issues
}
