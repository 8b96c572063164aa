package discover

import (
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/models"
)

// NetworkSource discovers posts from intercepted feed API responses. The
// interception goroutines push bodies in through HandleResponse; the
// orchestrator drains normalized posts out once per scroll tick.
type NetworkSource struct {
	sourceURL string
	markers   []string
	logger    arbor.ILogger

	mu       sync.Mutex
	seen     map[string]struct{}
	pending  []models.Post
	rawCount int
}

func NewNetworkSource(sourceURL string, apiPathMarkers []string, logger arbor.ILogger) *NetworkSource {
	markers := make([]string, 0, len(apiPathMarkers))
	for _, m := range apiPathMarkers {
		if m != "" {
			markers = append(markers, strings.ToLower(m))
		}
	}
	return &NetworkSource{
		sourceURL: sourceURL,
		markers:   markers,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
}

// Qualify is the interception filter: a response is worth reading when its
// URL carries a configured API path marker, it succeeded, and it looks like
// JSON. Write requests against marked paths qualify too — some feeds page
// through POSTed GraphQL queries.
func (n *NetworkSource) Qualify(url, method, mimeType string, status int64) bool {
	if status < 200 || status >= 300 {
		return false
	}
	lower := strings.ToLower(url)
	marked := false
	for _, marker := range n.markers {
		if strings.Contains(lower, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return false
	}
	if strings.Contains(mimeType, "json") || mimeType == "" {
		return true
	}
	return method == "POST"
}

// HandleResponse parses one response body. Called from interception
// goroutines; never touches the page.
func (n *NetworkSource) HandleResponse(url string, body []byte) {
	nodes := FindPostNodes(body)
	if len(nodes) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	fresh := 0
	for _, node := range nodes {
		n.rawCount++
		for _, post := range Normalize(node, n.sourceURL) {
			if _, ok := n.seen[post.Identifier]; ok {
				continue
			}
			n.seen[post.Identifier] = struct{}{}
			n.pending = append(n.pending, post)
			fresh++
		}
	}

	if fresh > 0 {
		n.logger.Debug().
			Str("url", truncateResponseURL(url)).
			Int("nodes", len(nodes)).
			Int("new_posts", fresh).
			Msg("Feed response yielded posts")
	}
}

// Drain hands the buffered posts to the caller and resets the buffer.
func (n *NetworkSource) Drain() []models.Post {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.pending
	n.pending = nil
	return out
}

// Total reports the raw count of post nodes observed across all intercepted
// responses, duplicates included.
func (n *NetworkSource) Total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rawCount
}

func truncateResponseURL(url string) string {
	if idx := strings.IndexByte(url, '?'); idx > 0 {
		return url[:idx]
	}
	return url
}
