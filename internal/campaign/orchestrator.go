// Package campaign connects copy generation, experiment tracking and the
// sending platform into one outbound campaign workflow.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/analytics"
	"github.com/foxzi/outreach/internal/copygen"
	"github.com/foxzi/outreach/internal/instantly"
	"github.com/foxzi/outreach/internal/leads"
	"github.com/foxzi/outreach/internal/metrics"
)

// TestRef ties a campaign to one of its experiments.
type TestRef struct {
	TestID   string   `json:"test_id"`
	Variants []string `json:"variants"`
}

// Campaign is the configuration of one outbound campaign.
type Campaign struct {
	Name          string                         `json:"name"`
	CreatedAt     time.Time                      `json:"created_at"`
	ValueProp     string                         `json:"value_prop"`
	ProspectCount int                            `json:"prospects_count"`
	Tests         map[abtest.VariantKind]TestRef `json:"tests"`
}

// Email is a generated, ready-to-send email for one prospect.
// VariantsUsed maps each tested element to the assigned variant ID.
type Email struct {
	ProspectEmail string                        `json:"prospect_email"`
	Subject       string                        `json:"subject"`
	OpeningLine   string                        `json:"opening_line"`
	Body          string                        `json:"body"`
	VariantsUsed  map[abtest.VariantKind]string `json:"variants_used"`
}

// TestResult is one experiment's current standing within a campaign.
type TestResult struct {
	TestID   string           `json:"test_id"`
	Variants []abtest.Variant `json:"variants"`
	Decision *abtest.Decision `json:"significance"`
}

// AccountHealth is the health roll-up for one sending account.
type AccountHealth struct {
	Email  string            `json:"email"`
	Alerts []analytics.Alert `json:"alerts"`
}

// CreateOptions controls campaign setup.
type CreateOptions struct {
	TestSubjectLines bool
	TestOpeningLines bool
	NumVariants      int
	Style            copygen.Style
}

// DefaultCreateOptions tests subjects and openers with three variants each.
func DefaultCreateOptions() CreateOptions {
	return CreateOptions{
		TestSubjectLines: true,
		TestOpeningLines: true,
		NumVariants:      3,
	}
}

// Orchestrator drives the campaign workflow.
type Orchestrator struct {
	generator copygen.Generator
	store     *abtest.Store
	platform  *instantly.Client
	monitor   *analytics.HealthMonitor
	logger    *slog.Logger

	now func() time.Time
}

// New creates an orchestrator. The platform client may be nil when only
// local operations (create, generate, results) are needed.
func New(generator copygen.Generator, store *abtest.Store, platform *instantly.Client, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		store:     store,
		platform:  platform,
		monitor:   analytics.NewHealthMonitor(analytics.Thresholds{}),
		logger:    logger,
		now:       time.Now,
	}
}

// CreateCampaign generates copy variants from the first prospect and
// registers an experiment per tested element.
func (o *Orchestrator) CreateCampaign(ctx context.Context, name string, prospects []leads.Prospect, valueProp string, opts CreateOptions) (*Campaign, error) {
	if len(prospects) == 0 {
		return nil, fmt.Errorf("campaign %q: at least one prospect is required", name)
	}
	if opts.NumVariants == 0 {
		opts.NumVariants = 3
	}

	c := &Campaign{
		Name:          name,
		CreatedAt:     o.now(),
		ValueProp:     valueProp,
		ProspectCount: len(prospects),
		Tests:         make(map[abtest.VariantKind]TestRef),
	}

	// The first prospect serves as the template for variant generation.
	sample := prospects[0]

	if opts.TestSubjectLines {
		subjects, err := o.generator.SubjectLines(ctx, sample, valueProp, opts.NumVariants, opts.Style)
		if err != nil {
			return nil, fmt.Errorf("failed to generate subject lines: %w", err)
		}
		testID, err := o.store.CreateTest(name+"_subjects", abtest.KindSubjectLine, subjects)
		if err != nil {
			return nil, err
		}
		c.Tests[abtest.KindSubjectLine] = TestRef{TestID: testID, Variants: subjects}
	}

	if opts.TestOpeningLines {
		openers, err := o.generator.OpeningLines(ctx, sample, opts.NumVariants)
		if err != nil {
			return nil, fmt.Errorf("failed to generate opening lines: %w", err)
		}
		testID, err := o.store.CreateTest(name+"_openers", abtest.KindOpeningLine, openers)
		if err != nil {
			return nil, err
		}
		c.Tests[abtest.KindOpeningLine] = TestRef{TestID: testID, Variants: openers}
	}

	o.logger.Info("campaign created",
		"name", name,
		"prospects", len(prospects),
		"tests", len(c.Tests))

	return c, nil
}

// GenerateEmail produces a personalized email for one prospect, drawing
// subject and opener from the campaign's running experiments. Elements
// without an experiment are generated one-off.
func (o *Orchestrator) GenerateEmail(ctx context.Context, p leads.Prospect, c *Campaign, cta copygen.CTAStyle) (*Email, error) {
	email := &Email{
		ProspectEmail: p.Email,
		VariantsUsed:  make(map[abtest.VariantKind]string),
	}

	if ref, ok := c.Tests[abtest.KindSubjectLine]; ok {
		variantID, subject, err := o.store.AssignVariant(ref.TestID)
		if err != nil {
			return nil, err
		}
		email.Subject = subject
		email.VariantsUsed[abtest.KindSubjectLine] = variantID
	} else {
		subjects, err := o.generator.SubjectLines(ctx, p, c.ValueProp, 1, "")
		if err != nil {
			return nil, fmt.Errorf("failed to generate subject line: %w", err)
		}
		email.Subject = subjects[0]
	}

	if ref, ok := c.Tests[abtest.KindOpeningLine]; ok {
		variantID, opener, err := o.store.AssignVariant(ref.TestID)
		if err != nil {
			return nil, err
		}
		email.OpeningLine = opener
		email.VariantsUsed[abtest.KindOpeningLine] = variantID
	} else {
		openers, err := o.generator.OpeningLines(ctx, p, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to generate opening line: %w", err)
		}
		email.OpeningLine = openers[0]
	}

	body, err := o.generator.FullEmail(ctx, p, c.ValueProp, email.Subject, email.OpeningLine, cta)
	if err != nil {
		return nil, fmt.Errorf("failed to generate email body: %w", err)
	}
	email.Body = body

	return email, nil
}

// RecordSends records one send per assigned variant and returns the send
// IDs keyed by variant kind. Callers keep these to credit engagement later.
func (o *Orchestrator) RecordSends(email *Email) (map[abtest.VariantKind]string, error) {
	sendIDs := make(map[abtest.VariantKind]string, len(email.VariantsUsed))
	for kind, variantID := range email.VariantsUsed {
		sendID, err := o.store.RecordSend(variantID, email.ProspectEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to record send for %s: %w", kind, err)
		}
		sendIDs[kind] = sendID
		metrics.IncSend(string(kind))
	}
	return sendIDs, nil
}

// Results returns the current standings of every experiment in the
// campaign.
func (o *Orchestrator) Results(c *Campaign, metric abtest.Metric) (map[abtest.VariantKind]TestResult, error) {
	results := make(map[abtest.VariantKind]TestResult, len(c.Tests))
	for kind, ref := range c.Tests {
		variants, err := o.store.Variants(ref.TestID)
		if err != nil {
			return nil, err
		}
		decision, err := o.store.CheckSignificance(ref.TestID, metric)
		if err != nil {
			return nil, err
		}
		results[kind] = TestResult{
			TestID:   ref.TestID,
			Variants: variants,
			Decision: decision,
		}
	}
	return results, nil
}

// PushLeads uploads prospects into a platform campaign, skipping addresses
// already present in the workspace.
func (o *Orchestrator) PushLeads(ctx context.Context, campaignID string, prospects []leads.Prospect) error {
	if o.platform == nil {
		return fmt.Errorf("no platform client configured")
	}

	platformLeads := make([]instantly.Lead, 0, len(prospects))
	for _, p := range prospects {
		lead := instantly.Lead{
			Email:       p.Email,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			CompanyName: p.Company,
		}
		if len(p.CustomFields) > 0 || p.Title != "" {
			custom := make(map[string]any, len(p.CustomFields)+1)
			for k, v := range p.CustomFields {
				custom[k] = v
			}
			if p.Title != "" {
				custom["title"] = p.Title
			}
			lead.CustomFields = custom
		}
		platformLeads = append(platformLeads, lead)
	}

	if _, err := o.platform.AddLeads(ctx, campaignID, platformLeads, true); err != nil {
		return fmt.Errorf("failed to push leads: %w", err)
	}

	o.logger.Info("leads pushed to platform", "campaign_id", campaignID, "count", len(platformLeads))
	return nil
}

// AccountHealth rolls up health alerts for every sending account on the
// platform workspace.
func (o *Orchestrator) AccountHealth(ctx context.Context) ([]AccountHealth, error) {
	if o.platform == nil {
		return nil, fmt.Errorf("no platform client configured")
	}

	accounts, err := o.platform.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var out []AccountHealth
	for _, account := range accounts {
		email, _ := account["email"].(string)
		if email == "" {
			continue
		}

		stats := analytics.AccountStats{
			Email:      email,
			DailyLimit: intField(account, "daily_limit"),
			SentToday:  intField(account, "sent_today"),
			Reputation: 100,
		}

		if warmup, err := o.platform.GetWarmupStatus(ctx, email); err == nil {
			stats.WarmupDay = intField(warmup, "warmup_day")
			if rep := intField(warmup, "reputation"); rep > 0 {
				stats.Reputation = rep
			}
		} else {
			o.logger.Warn("failed to fetch warmup status", "email", email, "error", err)
		}

		out = append(out, AccountHealth{
			Email:  email,
			Alerts: o.monitor.CheckAccountHealth(stats),
		})
	}
	return out, nil
}

// intField reads a numeric field from a decoded JSON object. JSON numbers
// arrive as float64.
func intField(obj map[string]any, key string) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
