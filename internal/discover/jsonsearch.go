// -----------------------------------------------------------------------
// JSON Post Search
// Feed APIs bury post objects at unpredictable depths inside envelope
// structures that change between deployments. Rather than binding to any
// one schema, this walks the decoded tree and recognizes post-shaped
// nodes by the keys they carry.
// -----------------------------------------------------------------------

package discover

import (
	"bytes"
	"encoding/json"
)

const maxSearchDepth = 12

// Key vocabularies observed across feed API payloads. Order matters: earlier
// entries win when normalizing.
var (
	identifierKeys = []string{"id", "pk", "post_id", "media_id", "shortcode", "code"}
	timestampKeys  = []string{"taken_at", "taken_at_timestamp", "created_time", "created_at", "published_at", "timestamp", "date"}
	mediaURLKeys   = []string{"display_url", "display_src", "video_url", "media_url", "thumbnail_src", "image_url"}
	captionKeys    = []string{"caption", "text", "title", "message"}
	carouselKeys   = []string{"carousel_media", "sidecar_children", "children"}
	commentKeys    = []string{"edge_media_to_parent_comment", "edge_media_to_comment", "comments", "preview_comments"}
	nodeWrapperKey = "node"
)

// LooksLikePost reports whether a JSON object carries the minimal shape of a
// feed post: some identifier plus either a timestamp or a media reference.
func LooksLikePost(node map[string]interface{}) bool {
	if !hasAnyKey(node, identifierKeys) {
		return false
	}
	return hasAnyKey(node, timestampKeys) || hasAnyKey(node, mediaURLKeys) || hasAnyKey(node, carouselKeys)
}

// FindPostNodes decodes an API response body and returns every post-shaped
// object in it, in document order. Non-JSON and post-free payloads return
// nil without error — most intercepted responses are noise.
func FindPostNodes(body []byte) []map[string]interface{} {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var root interface{}
	if err := decoder.Decode(&root); err != nil {
		return nil
	}

	var found []map[string]interface{}
	walk(root, 0, &found)
	return found
}

// walk descends the decoded tree. A matched post node is collected without
// further descent: its children (carousel slides, nested comments) belong to
// normalization, not discovery.
func walk(value interface{}, depth int, found *[]map[string]interface{}) {
	if depth > maxSearchDepth {
		return
	}

	switch v := value.(type) {
	case map[string]interface{}:
		// Edge wrappers ({"edges": [{"node": {...}}]}) are pure envelope.
		if inner, ok := v[nodeWrapperKey].(map[string]interface{}); ok && len(v) <= 2 {
			walk(inner, depth+1, found)
			return
		}
		if LooksLikePost(v) {
			*found = append(*found, v)
			return
		}
		for _, child := range v {
			walk(child, depth+1, found)
		}

	case []interface{}:
		for _, child := range v {
			walk(child, depth+1, found)
		}
	}
}

func hasAnyKey(node map[string]interface{}, keys []string) bool {
	for _, k := range keys {
		if v, ok := node[k]; ok && v != nil {
			return true
		}
	}
	return false
}

func firstValue(node map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := node[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstListValue(node map[string]interface{}, keys []string) ([]interface{}, bool) {
	for _, k := range keys {
		if list, ok := node[k].([]interface{}); ok && len(list) > 0 {
			return list, true
		}
	}
	return nil, false
}
