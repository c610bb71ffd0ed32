// Package selection ranks portfolio holdings and picks which securities
// receive commentary requests.
package selection

import (
	"math"
	"sort"

	"github.com/sells-group/commentary-cli/internal/model"
)

// Options controls the selection pass.
type Options struct {
	Mode model.Mode
	// TopN bounds each side in top/bottom mode. Ignored for all-holdings.
	TopN int
	// SortByMagnitude orders all-holdings output by |contribution| descending
	// instead of preserving row order.
	SortByMagnitude bool
}

// Select produces the ordered selection for one portfolio. The input rows
// must already exclude cash and fee lines. Sorting is stable and tie-breaks
// are fixed, so identical inputs always yield identical output.
func Select(p *model.PortfolioData, opts Options) model.SelectionResult {
	rows := p.FilteredSecurities()

	var ranked []model.RankedSecurity
	if opts.Mode == model.ModeTopBottom {
		contributors, detractors := topBottom(rows, opts.TopN)
		ranked = append(contributors, detractors...)
	} else {
		ranked = allHoldings(rows, opts.SortByMagnitude)
	}

	return model.SelectionResult{
		Portcode:   p.Portcode,
		Period:     p.Period,
		Mode:       opts.Mode,
		Securities: ranked,
		SourceFile: p.SourceFile,
	}
}

// topBottom returns up to n top contributors and up to n worst detractors,
// each ranked 1..k within its group. Short sides are returned as-is.
func topBottom(rows []model.SecurityRow, n int) (contributors, detractors []model.RankedSecurity) {
	var positive, negative []model.SecurityRow
	for _, r := range rows {
		switch {
		case r.ContributionToReturn > 0:
			positive = append(positive, r)
		case r.ContributionToReturn < 0:
			negative = append(negative, r)
		}
	}

	// Contributors: largest contribution first; detractors: most negative
	// first. Equal contributions fall back to ending weight descending.
	sort.SliceStable(positive, func(i, j int) bool {
		if positive[i].ContributionToReturn != positive[j].ContributionToReturn {
			return positive[i].ContributionToReturn > positive[j].ContributionToReturn
		}
		return positive[i].PortEndingWeight > positive[j].PortEndingWeight
	})
	sort.SliceStable(negative, func(i, j int) bool {
		if negative[i].ContributionToReturn != negative[j].ContributionToReturn {
			return negative[i].ContributionToReturn < negative[j].ContributionToReturn
		}
		return negative[i].PortEndingWeight > negative[j].PortEndingWeight
	})

	if n > 0 && len(positive) > n {
		positive = positive[:n]
	}
	if n > 0 && len(negative) > n {
		negative = negative[:n]
	}

	for i, r := range positive {
		contributors = append(contributors, model.RankedSecurity{Security: r, Rank: i + 1, Type: model.Contributor})
	}
	for i, r := range negative {
		detractors = append(detractors, model.RankedSecurity{Security: r, Rank: i + 1, Type: model.Detractor})
	}
	return contributors, detractors
}

// allHoldings includes every row with no rank, classified by sign.
func allHoldings(rows []model.SecurityRow, byMagnitude bool) []model.RankedSecurity {
	ordered := make([]model.SecurityRow, len(rows))
	copy(ordered, rows)

	if byMagnitude {
		sort.SliceStable(ordered, func(i, j int) bool {
			return math.Abs(ordered[i].ContributionToReturn) > math.Abs(ordered[j].ContributionToReturn)
		})
	}

	ranked := make([]model.RankedSecurity, 0, len(ordered))
	for _, r := range ordered {
		ranked = append(ranked, model.RankedSecurity{
			Security: r,
			Type:     model.Classify(r.ContributionToReturn),
		})
	}
	return ranked
}
