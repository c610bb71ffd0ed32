// Package run orchestrates one end-to-end commentary run: selection, key
// assignment, concurrent generation, validation and ordered merge-back.
// Portfolios are processed sequentially; securities within a portfolio are
// dispatched concurrently.
package run

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/commentary-cli/internal/config"
	"github.com/sells-group/commentary-cli/internal/dispatch"
	"github.com/sells-group/commentary-cli/internal/keyvault"
	"github.com/sells-group/commentary-cli/internal/merge"
	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/output"
	"github.com/sells-group/commentary-cli/internal/parser"
	"github.com/sells-group/commentary-cli/internal/prompt"
	"github.com/sells-group/commentary-cli/internal/resilience"
	"github.com/sells-group/commentary-cli/internal/selection"
	"github.com/sells-group/commentary-cli/internal/validate"
	"github.com/sells-group/commentary-cli/pkg/openai"
)

// Result is everything a run produces before it is written to disk.
type Result struct {
	Sheets   []output.PortfolioSheet
	Failures []output.FailureRecord
	Warnings []string
}

// Runner executes commentary runs. One Runner may serve several runs; the
// key vault is created fresh per run and discarded with it.
type Runner struct {
	cfg    *config.Config
	client openai.Client
}

// New creates a runner over the given generation client.
func New(cfg *config.Config, client openai.Client) *Runner {
	return &Runner{cfg: cfg, client: client}
}

// Run generates commentary for every parsed portfolio. Per-security failures
// are recorded in the result, not returned as errors; the returned error is
// reserved for run-level faults such as a broken merge.
func (r *Runner) Run(ctx context.Context, portfolios []*model.PortfolioData) (*Result, error) {
	vault := keyvault.New()
	dispatcher := dispatch.New(r.dispatchConfig())
	builder := prompt.NewBuilder(r.promptConfig())

	res := &Result{}
	for _, p := range portfolios {
		res.Warnings = append(res.Warnings, p.Warnings...)

		sheet, failures, err := r.runPortfolio(ctx, p, vault, dispatcher, builder)
		if err != nil {
			return nil, err
		}
		res.Sheets = append(res.Sheets, sheet)
		res.Failures = append(res.Failures, failures...)
	}
	return res, nil
}

func (r *Runner) runPortfolio(
	ctx context.Context,
	p *model.PortfolioData,
	vault *keyvault.Vault,
	dispatcher *dispatch.Dispatcher,
	builder *prompt.Builder,
) (output.PortfolioSheet, []output.FailureRecord, error) {
	sel := selection.Select(p, selection.Options{
		Mode:            model.Mode(r.cfg.Selection.Mode),
		TopN:            r.cfg.Selection.TopN,
		SortByMagnitude: r.cfg.Selection.SortByMagnitude,
	})

	zap.L().Info("portfolio selected",
		zap.String("portcode", p.Portcode),
		zap.String("period", p.Period),
		zap.Int("securities", len(sel.Securities)))

	keyed := merge.AssignKeys(vault, sel)
	attribution := attributionContext(p)

	items := make([]dispatch.Item, 0, len(keyed))
	for _, ks := range keyed {
		items = append(items, dispatch.Item{
			Key:          ks.Key,
			Ticker:       ks.Security.Ticker,
			SecurityName: ks.Security.SecurityName,
			Prompt:       builder.Build(ks.Security, p.Period, attribution),
		})
	}

	outcomes := dispatcher.Run(ctx, items, r.worker())

	results := make(map[keyvault.Key]model.Commentary, len(outcomes))
	for key, outcome := range outcomes {
		results[key] = validate.Validate(outcome, r.cfg.Prompt.RequireCitations)
	}

	rows, err := merge.Rows(keyed, results)
	if err != nil {
		return output.PortfolioSheet{}, nil, err
	}

	failures, err := collectFailures(vault, keyed, results)
	if err != nil {
		return output.PortfolioSheet{}, nil, err
	}

	return output.PortfolioSheet{Portcode: p.Portcode, Rows: rows}, failures, nil
}

// worker issues one generation attempt. The outbound request carries the
// ticker and name inside the prompt but never the portfolio code or key.
func (r *Runner) worker() dispatch.Worker {
	return func(ctx context.Context, item dispatch.Item) (*model.RawResponse, error) {
		return r.client.Generate(ctx, openai.Request{
			DeveloperPrompt:  prompt.DefaultDeveloperPrompt,
			Prompt:           item.Prompt,
			Effort:           r.cfg.OpenAI.Effort,
			WebSearch:        r.cfg.OpenAI.WebSearch,
			PreferredDomains: r.preferredDomains(),
		})
	}
}

func (r *Runner) preferredDomains() []string {
	if !r.cfg.Prompt.PrioritizeSources || !r.cfg.OpenAI.WebSearch {
		return nil
	}
	if len(r.cfg.Prompt.PreferredDomains) > 0 {
		return r.cfg.Prompt.PreferredDomains
	}
	return prompt.DefaultPreferredDomains()
}

func (r *Runner) dispatchConfig() dispatch.Config {
	d := r.cfg.Dispatch
	backoff := resilience.DefaultBackoffConfig()
	if d.InitialBackoffMs > 0 {
		backoff.Initial = msToDuration(d.InitialBackoffMs)
	}
	if d.MaxBackoffMs > 0 {
		backoff.Max = msToDuration(d.MaxBackoffMs)
	}
	if d.JitterFraction > 0 {
		backoff.JitterFraction = d.JitterFraction
	}
	return dispatch.Config{
		Concurrency:       d.Concurrency,
		MaxAttempts:       d.MaxAttempts,
		Backoff:           backoff,
		RequestsPerSecond: d.RequestsPerSecond,
		OnProgress: func(ticker string, done, total int) {
			zap.L().Info("commentary settled",
				zap.String("ticker", ticker),
				zap.Int("done", done),
				zap.Int("total", total))
		},
	}
}

func (r *Runner) promptConfig() prompt.Config {
	domains := r.cfg.Prompt.PreferredDomains
	if len(domains) == 0 {
		domains = prompt.DefaultPreferredDomains()
	}
	return prompt.Config{
		Template:               r.cfg.Prompt.Template,
		PreferredDomains:       domains,
		AdditionalInstructions: r.cfg.Prompt.AdditionalInstructions,
		PrioritizeSources:      r.cfg.Prompt.PrioritizeSources,
	}
}

// attributionContext renders the workbook's attribution tabs as markdown for
// the prompt, or "" when the workbook carried none.
func attributionContext(p *model.PortfolioData) string {
	var parts []string
	if md := parser.AttributionMarkdown(p.SectorAttribution); md != "" {
		parts = append(parts, md)
	}
	if md := parser.AttributionMarkdown(p.CountryAttribution); md != "" {
		parts = append(parts, md)
	}
	return strings.Join(parts, "\n\n")
}

// collectFailures resolves each failed security back to its identifying pair
// for the run log. Keys stay inside the process.
func collectFailures(vault *keyvault.Vault, keyed []merge.KeyedSecurity, results map[keyvault.Key]model.Commentary) ([]output.FailureRecord, error) {
	var failures []output.FailureRecord
	for _, ks := range keyed {
		c := results[ks.Key]
		if !c.Failed {
			continue
		}
		id, err := vault.Resolve(ks.Key)
		if err != nil {
			return nil, err
		}
		failures = append(failures, output.FailureRecord{
			Portcode: id.Portcode,
			Ticker:   id.Ticker,
			Kind:     c.Reason,
			Reason:   strings.TrimPrefix(c.Text, "ERROR: "),
		})
	}
	return failures, nil
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
