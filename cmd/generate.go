package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/output"
	"github.com/sells-group/commentary-cli/internal/parser"
	"github.com/sells-group/commentary-cli/internal/run"
	"github.com/sells-group/commentary-cli/pkg/openai"
)

var (
	genMode        string
	genTopN        int
	genEffort      string
	genOutDir      string
	genConcurrency int
	genNoCitations bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [workbooks or directories]",
	Short: "Generate commentary for one or more contribution workbooks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyGenerateFlags(cmd)

		if err := cfg.Validate(); err != nil {
			return err
		}

		inputs, err := collectInputs(args)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return eris.New("no .xlsx workbooks found in the given paths")
		}

		started := time.Now()
		portfolios := make([]*model.PortfolioData, 0, len(inputs))
		for _, path := range inputs {
			p, err := parser.ParseFile(path)
			if err != nil {
				return eris.Wrapf(err, "parse %s", filepath.Base(path))
			}
			zap.L().Info("workbook parsed",
				zap.String("portcode", p.Portcode),
				zap.String("period", p.Period),
				zap.Int("securities", len(p.Securities)))
			portfolios = append(portfolios, p)
		}

		client := openai.NewClient(cfg.OpenAI.Key,
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithModel(cfg.OpenAI.Model))

		result, err := run.New(cfg, client).Run(ctx, portfolios)
		if err != nil {
			return eris.Wrap(err, "commentary run")
		}

		for _, w := range result.Warnings {
			zap.L().Warn("parser warning", zap.String("warning", w))
		}

		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return eris.Wrap(err, "create output dir")
		}
		outPath := filepath.Join(cfg.Output.Dir, output.WorkbookFilename(time.Now()))
		if err := output.WriteWorkbook(outPath, result.Sheets); err != nil {
			return err
		}

		logPath, err := output.WriteRunLog(cfg.Output.Dir, output.RunSummary{
			Started:    started,
			Finished:   time.Now(),
			InputFiles: inputs,
			OutputFile: outPath,
			Failures:   result.Failures,
		})
		if err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.Int("portfolios", len(result.Sheets)),
			zap.Int("failures", len(result.Failures)),
			zap.String("workbook", outPath),
			zap.String("run_log", logPath))

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d portfolios, %d failures)\n",
			outPath, len(result.Sheets), len(result.Failures))
		return nil
	},
}

// applyGenerateFlags lets explicit flags override file and env configuration.
func applyGenerateFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("mode") {
		cfg.Selection.Mode = genMode
	}
	if cmd.Flags().Changed("top-n") {
		cfg.Selection.TopN = genTopN
	}
	if cmd.Flags().Changed("effort") {
		cfg.OpenAI.Effort = genEffort
	}
	if cmd.Flags().Changed("out") {
		cfg.Output.Dir = genOutDir
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Dispatch.Concurrency = genConcurrency
	}
	if cmd.Flags().Changed("no-citations") {
		cfg.Prompt.RequireCitations = !genNoCitations
	}
}

// collectInputs expands directories into their .xlsx members and returns a
// sorted list. Excel lock files (~$...) are skipped.
func collectInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "stat %s", arg)
		}
		if !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "read dir %s", arg)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".xlsx") || strings.HasPrefix(name, "~$") {
				continue
			}
			inputs = append(inputs, filepath.Join(arg, name))
		}
	}
	sort.Strings(inputs)
	return inputs, nil
}

func init() {
	generateCmd.Flags().StringVar(&genMode, "mode", "top_bottom", "selection mode: top_bottom or all_holdings")
	generateCmd.Flags().IntVar(&genTopN, "top-n", 5, "contributors and detractors to select per portfolio")
	generateCmd.Flags().StringVar(&genEffort, "effort", "medium", "reasoning effort: low, medium, high")
	generateCmd.Flags().StringVar(&genOutDir, "out", "output", "output directory")
	generateCmd.Flags().IntVar(&genConcurrency, "concurrency", 20, "max in-flight requests")
	generateCmd.Flags().BoolVar(&genNoCitations, "no-citations", false, "accept commentary without citations")
	rootCmd.AddCommand(generateCmd)
}
