package discover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/models"
)

const samplePostHTML = `
<article>
  <header><a href="/u/gardener">gardener</a></header>
  <div>
    <img src="https://cdn.example/img-640.jpg"
         srcset="https://cdn.example/img-320.jpg 320w, https://cdn.example/img-1080.jpg 1080w, https://cdn.example/img-640.jpg 640w">
  </div>
  <p>First tomatoes of the season, straight from the greenhouse</p>
  <ul>
    <li><a>marta</a> beautiful colour!</li>
    <li><a>jon</a> recipe please</li>
    <li>View all 12 comments</li>
    <li></li>
  </ul>
  <a href="/p/Cabc123/"><time datetime="2023-06-15T14:30:00Z">June 15</time></a>
</article>`

func TestExtractFromHTML(t *testing.T) {
	post, err := ExtractFromHTML("Cabc123", samplePostHTML, "https://feed.example/u/gardener")
	require.NoError(t, err)

	assert.Equal(t, "Cabc123", post.Identifier)
	assert.Equal(t, "https://cdn.example/img-1080.jpg", post.MediaURL, "largest srcset candidate wins")
	assert.Equal(t, models.MediaTypeImage, post.MediaType)
	assert.Equal(t, "First tomatoes of the season, straight from the greenhouse", post.CaptionText)
	assert.Equal(t, "/p/Cabc123/", post.PostURL)
	assert.Equal(t, "2023-06-15T14:30:00Z", post.PublishedAt.UTC().Format(time.RFC3339))

	require.Len(t, post.Comments, 2, "empty items and load-more stubs are not comments")
	assert.Equal(t, "marta", post.Comments[0].Username)
	assert.Equal(t, "beautiful colour!", post.Comments[0].Text)
	assert.Equal(t, "jon", post.Comments[1].Username)
}

func TestExtractFromHTMLVideo(t *testing.T) {
	html := `<article>
	  <video poster="https://cdn.example/poster.jpg">
	    <source src="https://cdn.example/clip.mp4" type="video/mp4">
	  </video>
	</article>`

	post, err := ExtractFromHTML("v1", html, "https://feed.example")
	require.NoError(t, err)
	assert.Equal(t, models.MediaTypeVideo, post.MediaType)
	assert.Equal(t, "https://cdn.example/clip.mp4", post.MediaURL)
}

func TestExtractFromHTMLNoDate(t *testing.T) {
	html := `<article><img src="https://cdn.example/x.jpg"><p>caption text here</p></article>`
	post, err := ExtractFromHTML("x", html, "https://feed.example")
	require.NoError(t, err)
	assert.False(t, post.HasDate())
}

func TestStableIdentifierPrefersPermalink(t *testing.T) {
	assert.Equal(t, "Cabc123", StableIdentifier(samplePostHTML))
}

func TestStableIdentifierFallsBackToMediaSource(t *testing.T) {
	html := `<article><img src="https://cdn.example/img.jpg?token=ephemeral123"></article>`
	id := StableIdentifier(html)
	require.NotEmpty(t, id)
	assert.Equal(t, "media:https://cdn.example/img.jpg", id, "volatile query string is stripped")

	// Same element, different ephemeral token, same identity.
	html2 := `<article><img src="https://cdn.example/img.jpg?token=other456"></article>`
	assert.Equal(t, id, StableIdentifier(html2))
}

func TestStableIdentifierEmptyWhenNothingUsable(t *testing.T) {
	assert.Empty(t, StableIdentifier(`<article><p>text only, no media or links</p></article>`))
}

type scriptedPage struct {
	snapshots [][]domSnapshot
	call      int
}

func (s *scriptedPage) Evaluate(_ context.Context, _ string, out interface{}) error {
	target := out.(*[]domSnapshot)
	if s.call < len(s.snapshots) {
		*target = s.snapshots[s.call]
	}
	s.call++
	return nil
}

func TestDOMSourceSkipsAlreadySeenElements(t *testing.T) {
	first := []domSnapshot{{HTML: samplePostHTML}}
	second := []domSnapshot{
		{HTML: samplePostHTML}, // still rendered from last tick
		{HTML: `<article><a href="/p/Cnew99/">x</a><img src="https://cdn.example/n.jpg"><p>fresh post caption</p></article>`},
	}
	page := &scriptedPage{snapshots: [][]domSnapshot{first, second}}
	source := NewDOMSource("article", "https://feed.example", page, arbor.NewLogger())

	posts, err := source.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Cabc123", posts[0].Identifier)
	assert.Equal(t, 1, source.Total())

	posts, err = source.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1, "recycled elements are not re-emitted")
	assert.Equal(t, "Cnew99", posts[0].Identifier)
	assert.Equal(t, 2, source.Total())
}
