// Package model holds the domain types shared across the commentary pipeline.
package model

// SecurityRow is a single security row parsed from a contribution workbook.
// Rows are read-only once parsed.
type SecurityRow struct {
	Ticker               string  `json:"ticker"`
	SecurityName         string  `json:"security_name"`
	PortEndingWeight     float64 `json:"port_ending_weight"`
	ContributionToReturn float64 `json:"contribution_to_return"`
	GICS                 string  `json:"gics"`
}

// IsCashOrFee reports whether the row is a cash or fee line rather than a
// holding. FactSet marks these with a missing or placeholder GICS sector.
func (s SecurityRow) IsCashOrFee() bool {
	switch s.GICS {
	case "", "NA", "—", "--":
		return true
	}
	return false
}

// PortfolioData is the parsed content of one portfolio workbook.
type PortfolioData struct {
	Portcode   string        `json:"portcode"`
	Period     string        `json:"period"`
	Securities []SecurityRow `json:"securities"`
	SourceFile string        `json:"source_file"`

	SectorAttribution  *AttributionTable `json:"sector_attribution,omitempty"`
	CountryAttribution *AttributionTable `json:"country_attribution,omitempty"`
	Warnings           []string          `json:"warnings,omitempty"`
}

// FilteredSecurities returns the holdings rows, excluding cash and fees.
func (p *PortfolioData) FilteredSecurities() []SecurityRow {
	out := make([]SecurityRow, 0, len(p.Securities))
	for _, s := range p.Securities {
		if !s.IsCashOrFee() {
			out = append(out, s)
		}
	}
	return out
}

// AttributionRow is one category row from an attribution sheet.
type AttributionRow struct {
	Category string             `json:"category"`
	Metrics  map[string]float64 `json:"metrics"`
}

// AttributionTable is a parsed sector or country attribution sheet. It is
// injected into prompts as supporting context.
type AttributionTable struct {
	SheetName      string           `json:"sheet_name"`
	CategoryHeader string           `json:"category_header"`
	MetricHeaders  []string         `json:"metric_headers"`
	Rows           []AttributionRow `json:"rows"`
	Total          *AttributionRow  `json:"total,omitempty"`
}

// HasData reports whether the table carries usable attribution content.
func (t *AttributionTable) HasData() bool {
	return t != nil && (len(t.Rows) > 0 || t.Total != nil)
}
