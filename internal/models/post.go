package models

import (
	"time"
)

// MediaType identifies what kind of media a post carries.
type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeCarousel MediaType = "carousel-slide"
)

// Comment is a single comment attached to a post. Username may be empty when
// the source markup or payload does not expose the author.
type Comment struct {
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// ImageInsight is the structured result of running vision inference over a
// post's image. All fields default to their zero value when the model omits
// them.
type ImageInsight struct {
	DetectedText      string   `json:"detected_text"`
	SceneDescription  string   `json:"scene_description"`
	ObjectsDetected   []string `json:"objects_detected"`
	AdditionalContext string   `json:"additional_context"`
}

// Post is the canonical, normalized representation of one content unit.
// Identifier is the idempotency key for storage: one row per identifier, ever.
// A carousel parent expands into one Post per slide, each sharing the parent
// identifier as a prefix with a "_cN" suffix.
type Post struct {
	Identifier    string        `json:"identifier" badgerhold:"unique"`
	SessionID     string        `json:"session_id"`
	SourceURL     string        `json:"source_url" badgerhold:"index"`
	PostURL       string        `json:"post_url,omitempty"`
	MediaURL      string        `json:"media_url,omitempty"`
	MediaType     MediaType     `json:"media_type"`
	MediaPath     string        `json:"media_path,omitempty"`
	CaptionText   string        `json:"caption_text"`
	Comments      []Comment     `json:"comments,omitempty"`
	PublishedAt   time.Time     `json:"published_at" badgerhold:"index"`
	CarouselIndex int           `json:"carousel_index,omitempty"`
	Insight       *ImageInsight `json:"insight,omitempty"`

	// RawFragment holds the source JSON or HTML the post was extracted from.
	// It is dropped before persistence to bound memory and storage size.
	RawFragment []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// HasDate reports whether the post carries a parseable publish instant.
func (p *Post) HasDate() bool {
	return !p.PublishedAt.IsZero()
}

// DropTransient discards large payloads that must not outlive the pipeline.
func (p *Post) DropTransient() {
	p.RawFragment = nil
}
