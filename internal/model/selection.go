package model

// Mode selects which holdings receive commentary requests.
type Mode string

const (
	ModeTopBottom   Mode = "top_bottom"   // top N contributors + bottom N detractors
	ModeAllHoldings Mode = "all_holdings" // every holding
)

// Classification tags a security by the sign of its contribution to return.
type Classification string

const (
	Contributor Classification = "Contributor"
	Detractor   Classification = "Detractor"
	Neutral     Classification = "Neutral"
)

// Classify derives the classification from a contribution value.
func Classify(contribution float64) Classification {
	switch {
	case contribution > 0:
		return Contributor
	case contribution < 0:
		return Detractor
	default:
		return Neutral
	}
}

// RankedSecurity is a selected security with its rank and classification.
// Rank is 1-based within its classification group and 0 in all-holdings mode.
type RankedSecurity struct {
	Security SecurityRow    `json:"security"`
	Rank     int            `json:"rank"`
	Type     Classification `json:"type"`
}

// SelectionResult is the ordered selection for one portfolio. The order of
// Securities is the output order: contributors block then detractors block
// in top/bottom mode, row or magnitude order in all-holdings mode.
type SelectionResult struct {
	Portcode   string           `json:"portcode"`
	Period     string           `json:"period"`
	Mode       Mode             `json:"mode"`
	Securities []RankedSecurity `json:"securities"`
	SourceFile string           `json:"source_file"`
}
