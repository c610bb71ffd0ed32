package main

import (
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/parser"
	"github.com/sells-group/commentary-cli/internal/selection"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [workbook]",
	Short: "Parse a workbook and show what would be selected, without calling the API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parser.ParseFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "parse %s", filepath.Base(args[0]))
		}

		sel := selection.Select(p, selection.Options{
			Mode:            model.Mode(cfg.Selection.Mode),
			TopN:            cfg.Selection.TopN,
			SortByMagnitude: cfg.Selection.SortByMagnitude,
		})

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Portfolio: %s\n", p.Portcode)
		fmt.Fprintf(out, "Period:    %s\n", p.Period)
		fmt.Fprintf(out, "Rows:      %d parsed, %d after cash/fee filter\n\n", len(p.Securities), len(p.FilteredSecurities()))

		fmt.Fprintf(out, "Selected (%s):\n", sel.Mode)
		for _, rs := range sel.Securities {
			rank := ""
			if rs.Rank > 0 {
				rank = fmt.Sprintf("#%d ", rs.Rank)
			}
			fmt.Fprintf(out, "  %s%-11s %-8s %-30s contrib %+.4f  weight %.2f\n",
				rank, rs.Type, rs.Security.Ticker, rs.Security.SecurityName,
				rs.Security.ContributionToReturn, rs.Security.PortEndingWeight)
		}

		for _, w := range p.Warnings {
			fmt.Fprintf(out, "\nWarning: %s\n", w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
