package run

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commentary-cli/internal/config"
	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/resilience"
	"github.com/sells-group/commentary-cli/pkg/openai"
)

// clientFunc adapts a function to the openai.Client interface.
type clientFunc func(ctx context.Context, req openai.Request) (*model.RawResponse, error)

func (f clientFunc) Generate(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
	return f(ctx, req)
}

func testConfig() *config.Config {
	return &config.Config{
		OpenAI:    config.OpenAIConfig{Key: "sk-test", Effort: "medium", WebSearch: true},
		Selection: config.SelectionConfig{Mode: "top_bottom", TopN: 2, SortByMagnitude: true},
		Dispatch:  config.DispatchConfig{Concurrency: 4, MaxAttempts: 2, InitialBackoffMs: 1, MaxBackoffMs: 5, JitterFraction: 0.2},
		Prompt:    config.PromptConfig{PrioritizeSources: true, RequireCitations: true},
		Output:    config.OutputConfig{Dir: "output"},
	}
}

func testPortfolio() *model.PortfolioData {
	return &model.PortfolioData{
		Portcode: "GROWTH1",
		Period:   "Q2 2026",
		Securities: []model.SecurityRow{
			{Ticker: "AAPL", SecurityName: "Apple Inc", ContributionToReturn: 1.3, PortEndingWeight: 5.2, GICS: "Information Technology"},
			{Ticker: "MSFT", SecurityName: "Microsoft", ContributionToReturn: 0.9, PortEndingWeight: 4.8, GICS: "Information Technology"},
			{Ticker: "NVDA", SecurityName: "NVIDIA", ContributionToReturn: 0.4, PortEndingWeight: 3.0, GICS: "Information Technology"},
			{Ticker: "XOM", SecurityName: "Exxon Mobil", ContributionToReturn: -0.8, PortEndingWeight: 1.1, GICS: "Energy"},
			{Ticker: "PFE", SecurityName: "Pfizer", ContributionToReturn: -0.3, PortEndingWeight: 0.9, GICS: "Health Care"},
		},
	}
}

// okResponse builds a cited response naming whatever the prompt asked about.
func okResponse(req openai.Request) *model.RawResponse {
	return &model.RawResponse{
		Kind: model.PlainWithAnnotations,
		Text: "Performance commentary for the requested security.",
		Annotations: []model.Annotation{
			{URL: "https://reuters.com/article", Title: "Reuters", StartIndex: 10},
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	var mu sync.Mutex
	var prompts []string
	client := clientFunc(func(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
		mu.Lock()
		prompts = append(prompts, req.Prompt)
		mu.Unlock()
		return okResponse(req), nil
	})

	res, err := New(testConfig(), client).Run(context.Background(), []*model.PortfolioData{testPortfolio()})

	require.NoError(t, err)
	require.Len(t, res.Sheets, 1)
	assert.Empty(t, res.Failures)

	sheet := res.Sheets[0]
	assert.Equal(t, "GROWTH1", sheet.Portcode)
	require.Len(t, sheet.Rows, 4) // top 2 + bottom 2

	// Contributors first in contribution order, then detractors.
	assert.Equal(t, "AAPL", sheet.Rows[0].Security.Ticker)
	assert.Equal(t, model.Contributor, sheet.Rows[0].Type)
	assert.Equal(t, "MSFT", sheet.Rows[1].Security.Ticker)
	assert.Equal(t, "XOM", sheet.Rows[2].Security.Ticker)
	assert.Equal(t, model.Detractor, sheet.Rows[2].Type)
	assert.Equal(t, "PFE", sheet.Rows[3].Security.Ticker)

	for _, row := range sheet.Rows {
		assert.False(t, row.Commentary.Failed)
		require.Len(t, row.Commentary.Citations, 1)
		assert.Equal(t, 1, row.Commentary.Citations[0].Index)
	}

	// Outbound prompts identify the security but never the portfolio.
	require.Len(t, prompts, 4)
	for _, p := range prompts {
		assert.NotContains(t, p, "GROWTH1")
		assert.Contains(t, p, "Q2 2026")
	}
}

func TestRunRecordsPerSecurityFailures(t *testing.T) {
	client := clientFunc(func(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
		if strings.Contains(req.Prompt, "(XOM)") {
			return nil, resilience.NewPermanentError(assert.AnError, 400)
		}
		return okResponse(req), nil
	})

	res, err := New(testConfig(), client).Run(context.Background(), []*model.PortfolioData{testPortfolio()})

	require.NoError(t, err)
	require.Len(t, res.Sheets, 1)
	require.Len(t, res.Sheets[0].Rows, 4)

	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, "GROWTH1", f.Portcode)
	assert.Equal(t, "XOM", f.Ticker)
	assert.Equal(t, "permanent_request", f.Kind)

	// The failed row still appears in place with an error message.
	var xom model.MergedRow
	for _, row := range res.Sheets[0].Rows {
		if row.Security.Ticker == "XOM" {
			xom = row
		}
	}
	assert.True(t, xom.Commentary.Failed)
	assert.Contains(t, xom.Commentary.Text, "ERROR:")
}

func TestRunRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	client := clientFunc(func(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if strings.Contains(req.Prompt, "(AAPL)") {
			calls["AAPL"]++
			if calls["AAPL"] == 1 {
				return nil, resilience.NewTransientError(assert.AnError, 503)
			}
		}
		return okResponse(req), nil
	})

	res, err := New(testConfig(), client).Run(context.Background(), []*model.PortfolioData{testPortfolio()})

	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 2, calls["AAPL"])
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := clientFunc(func(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
		return okResponse(req), nil
	})

	res, err := New(testConfig(), client).Run(ctx, []*model.PortfolioData{testPortfolio()})

	require.NoError(t, err)
	require.Len(t, res.Sheets, 1)
	require.Len(t, res.Sheets[0].Rows, 4) // every selected security still gets a row
	for _, row := range res.Sheets[0].Rows {
		assert.True(t, row.Commentary.Failed)
		assert.Equal(t, "cancelled", row.Commentary.Reason)
	}
	assert.Len(t, res.Failures, 4)
}

func TestRunCitationPolicy(t *testing.T) {
	uncited := clientFunc(func(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
		return &model.RawResponse{Kind: model.PlainWithAnnotations, Text: "No sources here."}, nil
	})

	strict := testConfig()
	res, err := New(strict, uncited).Run(context.Background(), []*model.PortfolioData{testPortfolio()})
	require.NoError(t, err)
	require.Len(t, res.Failures, 4)
	assert.Equal(t, "validation_failure", res.Failures[0].Kind)

	lenient := testConfig()
	lenient.Prompt.RequireCitations = false
	res, err = New(lenient, uncited).Run(context.Background(), []*model.PortfolioData{testPortfolio()})
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "No sources here.", res.Sheets[0].Rows[0].Commentary.Text)
}

func TestRunMultiplePortfolios(t *testing.T) {
	client := clientFunc(func(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
		return okResponse(req), nil
	})

	second := testPortfolio()
	second.Portcode = "VALUE2"

	res, err := New(testConfig(), client).Run(context.Background(), []*model.PortfolioData{testPortfolio(), second})

	require.NoError(t, err)
	require.Len(t, res.Sheets, 2)
	assert.Equal(t, "GROWTH1", res.Sheets[0].Portcode)
	assert.Equal(t, "VALUE2", res.Sheets[1].Portcode)
}

func TestRunSurfacesParserWarnings(t *testing.T) {
	client := clientFunc(func(ctx context.Context, req openai.Request) (*model.RawResponse, error) {
		return okResponse(req), nil
	})

	p := testPortfolio()
	p.Warnings = []string{"attribution tab AttributionbySector not found"}

	res, err := New(testConfig(), client).Run(context.Background(), []*model.PortfolioData{p})

	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "AttributionbySector")
}
