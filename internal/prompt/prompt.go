// Package prompt builds the per-security generation prompts.
package prompt

import (
	"strings"

	"github.com/sells-group/commentary-cli/internal/model"
)

// DefaultDeveloperPrompt steers the model toward factual, cited commentary.
const DefaultDeveloperPrompt = "Write a single, concise paragraph explaining the recent performance drivers " +
	"for the requested security. Focus on material news, earnings, sector trends, " +
	"or market events. Present only factual information and cite your sources."

// DefaultTemplate is the user-message template. Placeholders: {ticker},
// {security_name}, {period}, {source_instructions}.
const DefaultTemplate = `You are a financial analyst assistant. Write a single, concise paragraph explaining the recent performance of {security_name} ({ticker}) during the period {period}.

Focus on:
- Key business developments, earnings, or news that drove the stock's performance
- Industry or sector trends affecting the company
- Any significant company-specific events (product launches, management changes, M&A activity)

Requirements:
- Write exactly ONE paragraph (3-5 sentences)
- Be factual and cite specific events when possible
- Use professional financial language
- Do not speculate beyond what can be verified through news sources

{source_instructions}`

const (
	sourceInstructionsWithPriority = "Prioritize information from these reputable sources: %s. Include citations for key facts."
	sourceInstructionsDefault      = "Include citations from reputable financial news sources for key facts."
)

// DefaultPreferredDomains lists reputable financial news sources used when
// the operator configures none.
func DefaultPreferredDomains() []string {
	return []string{
		"reuters.com",
		"bloomberg.com",
		"wsj.com",
		"ft.com",
		"cnbc.com",
		"seekingalpha.com",
		"marketwatch.com",
		"finance.yahoo.com",
	}
}

// Config controls prompt generation.
type Config struct {
	Template               string
	PreferredDomains       []string
	AdditionalInstructions string
	// PrioritizeSources toggles the source-priority sentence entirely.
	PrioritizeSources bool
}

// Builder renders prompts for selected securities.
type Builder struct {
	cfg Config
}

// NewBuilder creates a prompt builder; zero-value fields fall back to the
// defaults above.
func NewBuilder(cfg Config) *Builder {
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	return &Builder{cfg: cfg}
}

// SourceInstructions returns the source-priority sentence for the current
// configuration, or "" when prioritization is off.
func (b *Builder) SourceInstructions() string {
	if !b.cfg.PrioritizeSources {
		return ""
	}
	if len(b.cfg.PreferredDomains) > 0 {
		return strings.Replace(sourceInstructionsWithPriority, "%s", strings.Join(b.cfg.PreferredDomains, ", "), 1)
	}
	return sourceInstructionsDefault
}

// Build renders the prompt for one security. The attribution block, when the
// workbook carried one, is appended as market context.
func (b *Builder) Build(sec model.SecurityRow, period, attribution string) string {
	r := strings.NewReplacer(
		"{ticker}", sec.Ticker,
		"{security_name}", sec.SecurityName,
		"{period}", period,
		"{source_instructions}", b.SourceInstructions(),
	)
	p := r.Replace(b.cfg.Template)

	if attribution != "" {
		p += "\n\nPortfolio attribution context for the period:\n" + attribution
	}
	if b.cfg.AdditionalInstructions != "" {
		p += "\n\nAdditional instructions: " + b.cfg.AdditionalInstructions
	}
	return p
}
