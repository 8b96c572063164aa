// -----------------------------------------------------------------------
// Model Output Parser
// Vision models return the requested JSON wrapped in prose, markdown
// fences, or both. This extracts the first JSON object from the raw
// completion and maps it tolerantly onto the insight schema.
// -----------------------------------------------------------------------

package vision

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/feedvault/feedvault/internal/models"
)

var (
	// ErrNoJSONObject means the completion contained no braces at all.
	ErrNoJSONObject = errors.New("model output contains no JSON object")
	// ErrInvalidJSON means braces were found but nothing inside them parsed.
	ErrInvalidJSON = errors.New("model output contains malformed JSON")
)

// rawInsight tolerates schema drift in the model output: fields may be
// missing, and objects_detected arrives as either an array or a single
// string.
type rawInsight struct {
	DetectedText      string          `json:"detected_text"`
	SceneDescription  string          `json:"scene_description"`
	ObjectsDetected   json.RawMessage `json:"objects_detected"`
	AdditionalContext string          `json:"additional_context"`
}

// ParseInsight extracts the insight object from a raw model completion.
func ParseInsight(completion string) (*models.ImageInsight, error) {
	payload, err := extractJSONObject(completion)
	if err != nil {
		return nil, err
	}

	var raw rawInsight
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrInvalidJSON
	}

	insight := &models.ImageInsight{
		DetectedText:      strings.TrimSpace(raw.DetectedText),
		SceneDescription:  strings.TrimSpace(raw.SceneDescription),
		AdditionalContext: strings.TrimSpace(raw.AdditionalContext),
		ObjectsDetected:   parseObjectList(raw.ObjectsDetected),
	}
	return insight, nil
}

// extractJSONObject returns the outermost balanced JSON object in the text.
// Markdown fences and surrounding prose are ignored.
func extractJSONObject(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, ErrInvalidJSON
}

func parseObjectList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return trimNonEmpty(list)
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return trimNonEmpty(strings.Split(single, ","))
	}
	return nil
}

func trimNonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
