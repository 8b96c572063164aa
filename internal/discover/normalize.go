package discover

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/feedvault/feedvault/internal/dates"
	"github.com/feedvault/feedvault/internal/models"
)

// Normalize converts one post-shaped JSON node into canonical posts. A plain
// post yields one entry; a carousel parent expands into one entry per slide,
// each suffixed "_c1", "_c2", ... and sharing the parent's caption and date.
// Nodes without a usable identifier yield nothing.
func Normalize(node map[string]interface{}, sourceURL string) []models.Post {
	identifier := extractIdentifier(node)
	if identifier == "" {
		return nil
	}

	published := extractTimestamp(node)
	caption := extractCaption(node)
	comments := extractComments(node)
	postURL := extractPostURL(node)

	if slides, ok := firstListValue(node, carouselKeys); ok {
		posts := make([]models.Post, 0, len(slides))
		for i, slide := range slides {
			slideNode, ok := slide.(map[string]interface{})
			if !ok {
				continue
			}
			mediaURL, _ := extractMedia(slideNode)
			posts = append(posts, models.Post{
				Identifier:    fmt.Sprintf("%s_c%d", identifier, i+1),
				SourceURL:     sourceURL,
				PostURL:       postURL,
				MediaURL:      mediaURL,
				MediaType:     models.MediaTypeCarousel,
				CaptionText:   caption,
				Comments:      comments,
				PublishedAt:   published,
				CarouselIndex: i + 1,
				RawFragment:   rawFragment(slideNode),
			})
		}
		return posts
	}

	mediaURL, mediaType := extractMedia(node)
	return []models.Post{{
		Identifier:  identifier,
		SourceURL:   sourceURL,
		PostURL:     postURL,
		MediaURL:    mediaURL,
		MediaType:   mediaType,
		CaptionText: caption,
		Comments:    comments,
		PublishedAt: published,
		RawFragment: rawFragment(node),
	}}
}

func extractIdentifier(node map[string]interface{}) string {
	raw, ok := firstValue(node, identifierKeys)
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func extractTimestamp(node map[string]interface{}) time.Time {
	raw, ok := firstValue(node, timestampKeys)
	if !ok {
		return time.Time{}
	}
	return dates.Parse(raw)
}

// extractCaption resolves the caption through its observed shapes: a plain
// string, a nested object with a text field, or an edge-wrapped list.
func extractCaption(node map[string]interface{}) string {
	raw, ok := firstValue(node, captionKeys)
	if !ok {
		return ""
	}
	return captionText(raw, 0)
}

func captionText(raw interface{}, depth int) string {
	if depth > 4 {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		if inner, ok := firstValue(v, []string{"text", "edges", "node"}); ok {
			return captionText(inner, depth+1)
		}
	case []interface{}:
		if len(v) > 0 {
			return captionText(v[0], depth+1)
		}
	}
	return ""
}

// extractComments collects the comments attached to a post node. The observed
// shapes are an edge-wrapped list ({"edges": [{"node": {...}}]}) or a plain
// list of comment objects; the author sits either on the comment itself or on
// a nested owner/user object.
func extractComments(node map[string]interface{}) []models.Comment {
	raw, ok := firstValue(node, commentKeys)
	if !ok {
		return nil
	}
	return commentList(raw, 0)
}

func commentList(raw interface{}, depth int) []models.Comment {
	if depth > 3 {
		return nil
	}
	switch v := raw.(type) {
	case []interface{}:
		var comments []models.Comment
		for _, item := range v {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if inner, ok := entry[nodeWrapperKey].(map[string]interface{}); ok {
				entry = inner
			}
			text, _ := entry["text"].(string)
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			comments = append(comments, models.Comment{
				Username: commentUsername(entry),
				Text:     text,
			})
		}
		return comments
	case map[string]interface{}:
		if inner, ok := firstValue(v, []string{"edges", "data", "nodes"}); ok {
			return commentList(inner, depth+1)
		}
	}
	return nil
}

func commentUsername(entry map[string]interface{}) string {
	if s, ok := entry["username"].(string); ok {
		return s
	}
	for _, key := range []string{"owner", "user"} {
		if author, ok := entry[key].(map[string]interface{}); ok {
			if s, ok := author["username"].(string); ok {
				return s
			}
		}
	}
	return ""
}

// extractMedia returns the best media URL in the node and whether it is a
// video. Candidate lists pick the widest entry rather than trusting the
// API's ordering.
func extractMedia(node map[string]interface{}) (string, models.MediaType) {
	mediaType := models.MediaTypeImage
	if isVideoNode(node) {
		mediaType = models.MediaTypeVideo
	}

	if raw, ok := firstValue(node, mediaURLKeys); ok {
		if s, ok := raw.(string); ok && s != "" {
			return s, mediaType
		}
	}

	// image_versions2.candidates[{url, width, height}, ...]
	if versions, ok := node["image_versions2"].(map[string]interface{}); ok {
		if candidates, ok := versions["candidates"].([]interface{}); ok {
			bestURL := ""
			bestWidth := -1.0
			for _, candidate := range candidates {
				entry, ok := candidate.(map[string]interface{})
				if !ok {
					continue
				}
				url, ok := entry["url"].(string)
				if !ok || url == "" {
					continue
				}
				if width := numericValue(entry["width"]); width > bestWidth {
					bestURL = url
					bestWidth = width
				}
			}
			if bestURL != "" {
				return bestURL, mediaType
			}
		}
	}
	return "", mediaType
}

func numericValue(raw interface{}) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case int:
		return float64(v)
	}
	return 0
}

func isVideoNode(node map[string]interface{}) bool {
	if _, ok := node["video_url"]; ok {
		return true
	}
	if b, ok := node["is_video"].(bool); ok && b {
		return true
	}
	switch n := node["media_type"].(type) {
	case json.Number:
		return n.String() == "2"
	case float64:
		return n == 2
	}
	return false
}

func extractPostURL(node map[string]interface{}) string {
	if s, ok := node["permalink"].(string); ok && s != "" {
		return s
	}
	if code, ok := node["shortcode"].(string); ok && code != "" {
		return "/p/" + code + "/"
	}
	if code, ok := node["code"].(string); ok && code != "" {
		return "/p/" + code + "/"
	}
	return ""
}

func rawFragment(node map[string]interface{}) []byte {
	data, err := json.Marshal(node)
	if err != nil {
		return nil
	}
	return data
}
