package model

// ResponseKind identifies the shape a generation response arrived in.
type ResponseKind string

const (
	// PlainWithAnnotations is free text carrying url_citation annotations
	// produced by the web search tool.
	PlainWithAnnotations ResponseKind = "plain_with_annotations"
	// StructuredJSON is a JSON body with explicit commentary and citations
	// fields, returned when web search is disabled.
	StructuredJSON ResponseKind = "structured_json"
)

// Annotation is a single url_citation marker attached to response text.
type Annotation struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index"`
}

// RawResponse is the normalized generation response. The API client resolves
// the wire shape into this form once, so validation never touches transport
// details.
type RawResponse struct {
	Kind        ResponseKind `json:"kind"`
	Text        string       `json:"text"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Citation is a numbered supporting source. Index is 1-based, assigned by
// first appearance.
type Citation struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Commentary is the validated per-security result. When Failed is set, Text
// holds a short operator-readable error string and Citations is empty.
type Commentary struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	Failed    bool       `json:"failed"`
	Reason    string     `json:"reason,omitempty"`
}

// MergedRow pairs a ranked security with its validated commentary, ready for
// rendering.
type MergedRow struct {
	RankedSecurity
	Commentary Commentary `json:"commentary"`
}
