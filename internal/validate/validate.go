// Package validate turns raw dispatch outcomes into final per-security
// commentary: it enforces the non-empty and citation policies, numbers
// citations by first appearance, and rewrites inline links to footnote
// markers. It never touches the network.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/commentary-cli/internal/dispatch"
	"github.com/sells-group/commentary-cli/internal/model"
)

// Failure kinds recorded on failed results, used by the run log.
const (
	KindRetryableTransport = "retryable_transport"
	KindPermanentRequest   = "permanent_request"
	KindValidationFailure  = "validation_failure"
	KindCancelled          = "cancelled"
)

// Validate produces the final result for one security. Dispatch failures and
// policy violations become in-place error strings; they never abort the run.
func Validate(outcome dispatch.Outcome, requireCitations bool) model.Commentary {
	switch outcome.Status {
	case dispatch.StatusSuccess:
		return validateSuccess(outcome.Response, requireCitations)
	case dispatch.StatusRetryableFailure:
		return failed(KindRetryableTransport,
			fmt.Sprintf("ERROR: request failed after %d attempts: %s", outcome.Attempts, outcome.Reason))
	case dispatch.StatusPermanentFailure:
		return failed(KindPermanentRequest, "ERROR: request rejected: "+outcome.Reason)
	case dispatch.StatusCancelled:
		return failed(KindCancelled, "ERROR: run cancelled before commentary was generated")
	default:
		return failed(KindValidationFailure, "ERROR: unknown dispatch outcome")
	}
}

func validateSuccess(resp *model.RawResponse, requireCitations bool) model.Commentary {
	if resp == nil {
		return failed(KindValidationFailure, "ERROR: empty response from generation service")
	}

	citations := ExtractCitations(resp.Annotations)

	text := strings.TrimSpace(resp.Text)
	if resp.Kind == model.PlainWithAnnotations {
		text = cleanInlineCitations(text, citations)
	}

	if text == "" {
		return failed(KindValidationFailure, "ERROR: empty commentary in response")
	}
	if requireCitations && len(citations) == 0 {
		return failed(KindValidationFailure, "ERROR: no citations found in response (citations are required)")
	}

	return model.Commentary{Text: text, Citations: citations}
}

func failed(kind, message string) model.Commentary {
	return model.Commentary{Text: message, Failed: true, Reason: kind}
}

// ExtractCitations numbers annotations by first appearance in the text,
// deduplicating by URL. Numbering starts at 1.
func ExtractCitations(annotations []model.Annotation) []model.Citation {
	ordered := make([]model.Annotation, len(annotations))
	copy(ordered, annotations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartIndex < ordered[j].StartIndex
	})

	var citations []model.Citation
	seen := make(map[string]bool)
	for _, a := range ordered {
		if a.URL == "" || seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		citations = append(citations, model.Citation{
			Index: len(citations) + 1,
			URL:   a.URL,
			Title: a.Title,
		})
	}
	return citations
}

// FormatSources renders citations as one "[n] url" line per citation, in
// citation order.
func FormatSources(citations []model.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	lines := make([]string, 0, len(citations))
	for _, c := range citations {
		lines = append(lines, fmt.Sprintf("[%d] %s", c.Index, c.URL))
	}
	return strings.Join(lines, "\n")
}
