package openai

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/resilience"
)

// wire shapes for a completed response

type responseEnvelope struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Error  *apiError    `json:"error,omitempty"`
	Output []outputItem `json:"output"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Content []contentItem `json:"content"`
}

type contentItem struct {
	Type        string           `json:"type"`
	Text        string           `json:"text"`
	Annotations []wireAnnotation `json:"annotations,omitempty"`
}

type wireAnnotation struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index"`
}

// structuredBody is the JSON shape returned when web search is off and the
// model emits structured output instead of annotated text.
type structuredBody struct {
	Commentary string `json:"commentary"`
	Citations  []struct {
		URL   string `json:"url"`
		Title string `json:"title,omitempty"`
	} `json:"citations,omitempty"`
}

// normalize resolves the wire envelope into the one response shape the
// validator consumes. The variant choice happens here, once, at the boundary.
func normalize(env *responseEnvelope) (*model.RawResponse, error) {
	switch env.Status {
	case "failed", "cancelled", "expired":
		msg := "response " + env.Status
		if env.Error != nil && env.Error.Message != "" {
			msg += ": " + env.Error.Message
		}
		// Terminal server-side states are not worth retrying with the same
		// request.
		return nil, resilience.NewPermanentError(eris.New("openai: "+msg), 0)
	}

	text, annotations := extractText(env.Output)
	if text == "" {
		return nil, resilience.NewPermanentError(eris.New("openai: no output text in response"), 0)
	}

	if len(annotations) > 0 {
		return &model.RawResponse{
			Kind:        model.PlainWithAnnotations,
			Text:        text,
			Annotations: annotations,
		}, nil
	}

	// No annotations: the model may have answered with the structured JSON
	// schema instead.
	if sb, ok := parseStructured(text); ok {
		resp := &model.RawResponse{Kind: model.StructuredJSON, Text: sb.Commentary}
		for i, c := range sb.Citations {
			if c.URL == "" {
				continue
			}
			resp.Annotations = append(resp.Annotations, model.Annotation{
				URL:        c.URL,
				Title:      c.Title,
				StartIndex: i,
			})
		}
		return resp, nil
	}

	return &model.RawResponse{Kind: model.PlainWithAnnotations, Text: text}, nil
}

// extractText finds the first message output_text block and its url_citation
// annotations.
func extractText(output []outputItem) (string, []model.Annotation) {
	for _, item := range output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type != "output_text" && content.Type != "text" {
				continue
			}
			if strings.TrimSpace(content.Text) == "" {
				continue
			}

			var annotations []model.Annotation
			for _, a := range content.Annotations {
				if a.Type != "url_citation" {
					continue
				}
				annotations = append(annotations, model.Annotation{
					URL:        a.URL,
					Title:      a.Title,
					StartIndex: a.StartIndex,
				})
			}
			return content.Text, annotations
		}
	}
	return "", nil
}

func parseStructured(text string) (*structuredBody, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var sb structuredBody
	if err := json.Unmarshal([]byte(trimmed), &sb); err != nil {
		return nil, false
	}
	if strings.TrimSpace(sb.Commentary) == "" {
		return nil, false
	}
	return &sb, true
}
