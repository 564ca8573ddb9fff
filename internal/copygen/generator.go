// Package copygen produces personalized cold-email copy with an LLM.
//
// The guiding rules are baked into the prompts: emails should sound human,
// personalization should be specific, and short beats long for cold
// outreach.
package copygen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/foxzi/outreach/internal/leads"
)

// Style selects the tone for subject-line generation.
type Style string

const (
	StyleCasual       Style = "casual"
	StyleProfessional Style = "professional"
	StyleProvocative  Style = "provocative"
)

// CTAStyle selects how the email closes.
type CTAStyle string

const (
	// CTASoft ends with a low-commitment interest check.
	CTASoft CTAStyle = "soft"
	// CTAHard ends with a concrete meeting request.
	CTAHard CTAStyle = "hard"
)

// Generator produces email copy variants for a prospect.
type Generator interface {
	SubjectLines(ctx context.Context, p leads.Prospect, valueProp string, n int, style Style) ([]string, error)
	OpeningLines(ctx context.Context, p leads.Prospect, n int) ([]string, error)
	FullEmail(ctx context.Context, p leads.Prospect, valueProp, subject, opening string, cta CTAStyle) (string, error)
}

// prospectContext formats prospect data for the model.
func prospectContext(p leads.Prospect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s %s\n", p.FirstName, p.LastName)
	fmt.Fprintf(&b, "Title: %s\n", orUnknown(p.Title))
	fmt.Fprintf(&b, "Company: %s\n", p.Company)
	fmt.Fprintf(&b, "Industry: %s\n", orUnknown(p.Industry))
	fmt.Fprintf(&b, "Company Size: %s", orUnknown(p.CompanySize))

	keys := make([]string, 0, len(p.CustomFields))
	for k := range p.CustomFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, p.CustomFields[k])
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func subjectLinesPrompt(p leads.Prospect, valueProp string, n int, style Style) string {
	return fmt.Sprintf(`Generate %d cold email subject lines for this prospect.

PROSPECT:
%s

VALUE PROP: %s

STYLE: %s

RULES:
- Max 6 words (short subject lines win)
- No spam trigger words (free, guarantee, act now)
- No ALL CAPS
- Lowercase can work well
- Questions can work but don't overuse
- Reference something specific when possible (company, role, industry)

Return ONLY the subject lines, one per line, no numbering or explanation.`,
		n, prospectContext(p), valueProp, style)
}

func openingLinesPrompt(p leads.Prospect, n int) string {
	return fmt.Sprintf(`Generate %d opening lines for a cold email to this prospect.

PROSPECT:
%s

RULES:
- Reference something specific about them or their company
- No "I hope this finds you well" or similar
- No "My name is..." openers
- Should feel like you actually looked them up
- One sentence max
- Don't be creepy (avoid referencing personal social media)

GOOD EXAMPLES:
- "Saw %s just expanded into APAC - congrats on the growth."
- "Your post on rethinking sales comp was spot on."
- "Noticed you're hiring 3 AEs - guessing pipeline gen is top of mind."

Return ONLY the opening lines, one per line.`,
		n, prospectContext(p), p.Company)
}

var ctaGuidance = map[CTAStyle]string{
	CTASoft: "End with a low-commitment ask like 'worth exploring?' or 'make sense to chat?'",
	CTAHard: "End with a specific meeting request like 'Do you have 15 min Tuesday or Wednesday?'",
}

func fullEmailPrompt(p leads.Prospect, valueProp, subject, opening string, cta CTAStyle) string {
	guidance, ok := ctaGuidance[cta]
	if !ok {
		guidance = ctaGuidance[CTASoft]
	}

	return fmt.Sprintf(`Write a cold email body for this prospect.

PROSPECT:
%s

VALUE PROP: %s
SUBJECT LINE: %s
OPENING LINE: %s

CTA STYLE: %s

RULES:
- Start with the opening line provided
- Max 75 words total (shorter is better)
- One clear value prop, not a feature list
- No "I" as the first word
- No attachments or "see below"
- Sound like a human, not a sales bot
- End with the CTA, nothing after

Return ONLY the email body.`,
		prospectContext(p), valueProp, subject, opening, guidance)
}

// parseLines splits a model response into at most n non-empty lines.
func parseLines(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
