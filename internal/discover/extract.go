// -----------------------------------------------------------------------
// DOM Extraction
// Parses the outerHTML of one rendered post element into a canonical
// post. Runs off-browser on snapshot strings so the heuristics stay
// unit-testable without a live page.
// -----------------------------------------------------------------------

package discover

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/feedvault/feedvault/internal/dates"
	"github.com/feedvault/feedvault/internal/models"
)

// loadMorePhrases mark interactive stubs inside comment lists, not comments.
var loadMorePhrases = []string{"load more", "view all", "show more", "see more", "view replies"}

// ExtractFromHTML parses one post element's outerHTML snapshot.
func ExtractFromHTML(identifier, html, sourceURL string) (models.Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.Post{}, fmt.Errorf("failed to parse post markup: %w", err)
	}

	mediaURL, mediaType := extractDOMMedia(doc)
	post := models.Post{
		Identifier:  identifier,
		SourceURL:   sourceURL,
		PostURL:     extractDOMPostURL(doc),
		MediaURL:    mediaURL,
		MediaType:   mediaType,
		CaptionText: extractDOMCaption(doc),
		Comments:    extractDOMComments(doc),
		PublishedAt: extractDOMTimestamp(doc),
		RawFragment: []byte(html),
	}
	return post, nil
}

// StableIdentifier derives a repeatable post ID from rendered markup: the
// permalink slug when one exists, otherwise a truncated media source. Posts
// with neither are indistinguishable between ticks and are skipped.
func StableIdentifier(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if slug := permalinkSlug(doc); slug != "" {
		return slug
	}

	src, _ := extractDOMMedia(doc)
	if src == "" {
		return ""
	}
	if idx := strings.IndexByte(src, '?'); idx > 0 {
		src = src[:idx]
	}
	if len(src) > 96 {
		src = src[len(src)-96:]
	}
	return "media:" + src
}

func permalinkSlug(doc *goquery.Document) string {
	slug := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		for _, prefix := range []string{"/p/", "/post/", "/reel/", "/status/"} {
			idx := strings.Index(href, prefix)
			if idx < 0 {
				continue
			}
			rest := strings.Trim(href[idx+len(prefix):], "/")
			if cut := strings.IndexAny(rest, "/?#"); cut > 0 {
				rest = rest[:cut]
			}
			if rest != "" {
				slug = rest
				return false
			}
		}
		return true
	})
	return slug
}

func extractDOMPostURL(doc *goquery.Document) string {
	url := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		for _, prefix := range []string{"/p/", "/post/", "/reel/", "/status/"} {
			if strings.Contains(href, prefix) {
				url = href
				return false
			}
		}
		return true
	})
	return url
}

// extractDOMMedia prefers the highest-resolution srcset candidate, then the
// plain img src, then a video poster or source.
func extractDOMMedia(doc *goquery.Document) (string, models.MediaType) {
	video := doc.Find("video").First()
	if video.Length() > 0 {
		if src, ok := video.Attr("src"); ok && src != "" {
			return src, models.MediaTypeVideo
		}
		if src, ok := video.Find("source").First().Attr("src"); ok && src != "" {
			return src, models.MediaTypeVideo
		}
		if poster, ok := video.Attr("poster"); ok && poster != "" {
			return poster, models.MediaTypeVideo
		}
		return "", models.MediaTypeVideo
	}

	img := doc.Find("img").First()
	if img.Length() == 0 {
		return "", models.MediaTypeImage
	}
	if srcset, ok := img.Attr("srcset"); ok {
		if best := bestSrcsetCandidate(srcset); best != "" {
			return best, models.MediaTypeImage
		}
	}
	src, _ := img.Attr("src")
	return src, models.MediaTypeImage
}

// bestSrcsetCandidate picks the candidate with the largest width descriptor.
func bestSrcsetCandidate(srcset string) string {
	bestURL := ""
	bestWidth := -1
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		width := 0
		if len(fields) > 1 && strings.HasSuffix(fields[1], "w") {
			width, _ = strconv.Atoi(strings.TrimSuffix(fields[1], "w"))
		}
		if width > bestWidth {
			bestWidth = width
			bestURL = fields[0]
		}
	}
	return bestURL
}

// extractDOMCaption tries, in order: an element explicitly marked as caption,
// a heading, then the first substantial text span outside the comment list.
func extractDOMCaption(doc *goquery.Document) string {
	for _, selector := range []string{"[data-caption]", ".caption", "figcaption"} {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	if text := strings.TrimSpace(doc.Find("h1,h2,h3").First().Text()); text != "" {
		return text
	}

	caption := ""
	doc.Find("span,p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.ParentsFiltered("ul,ol").Length() > 0 {
			return true // inside the comment subtree
		}
		text := strings.TrimSpace(sel.Text())
		if len(text) > 5 {
			caption = text
			return false
		}
		return true
	})
	return caption
}

func extractDOMComments(doc *goquery.Document) []models.Comment {
	var comments []models.Comment
	doc.Find("ul li, ol li").Each(func(_ int, sel *goquery.Selection) {
		if sel.Find("li").Length() > 0 {
			return // container item, its children will be visited
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" || isLoadMoreStub(text) {
			return
		}
		comment := models.Comment{Text: text}
		if username := strings.TrimSpace(sel.Find("a").First().Text()); username != "" {
			comment.Username = username
			comment.Text = strings.TrimSpace(strings.TrimPrefix(text, username))
		}
		if comment.Text == "" {
			return
		}
		comments = append(comments, comment)
	})
	return comments
}

func isLoadMoreStub(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range loadMorePhrases {
		if strings.HasPrefix(lower, phrase) {
			return true
		}
	}
	return false
}

func extractDOMTimestamp(doc *goquery.Document) time.Time {
	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		return dates.Parse(dt)
	}
	if title, ok := doc.Find("time").First().Attr("title"); ok {
		return dates.Parse(title)
	}
	return time.Time{}
}
