package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/models"
	"github.com/feedvault/feedvault/internal/storage"
)

func openTestStore(t *testing.T) storage.Gateway {
	t.Helper()
	store, err := NewArchiveStore(t.TempDir()+"/archive", arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func archivedPost(id, sourceURL string, published time.Time) *models.Post {
	return &models.Post{
		Identifier:  id,
		SessionID:   "session-1",
		SourceURL:   sourceURL,
		CaptionText: "caption for " + id,
		PublishedAt: published,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestInsertPostIdempotent(t *testing.T) {
	store := openTestStore(t)
	published := time.Date(2023, 6, 15, 14, 30, 0, 0, time.UTC)

	inserted, err := store.InsertPost(archivedPost("p1", "https://feed.example", published))
	require.NoError(t, err)
	assert.True(t, inserted, "first insert wins")

	replay := archivedPost("p1", "https://feed.example", published)
	replay.CaptionText = "mutated caption"
	inserted, err = store.InsertPost(replay)
	require.NoError(t, err)
	assert.False(t, inserted, "re-insert reports false without error")
}

func TestInsertPostRequiresIdentifier(t *testing.T) {
	store := openTestStore(t)
	_, err := store.InsertPost(&models.Post{})
	assert.Error(t, err)
}

func TestLatestPublishedAt(t *testing.T) {
	store := openTestStore(t)
	source := "https://feed.example/u/gardener"
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	checkpoint, err := store.LatestPublishedAt(source)
	require.NoError(t, err)
	assert.True(t, checkpoint.IsZero(), "empty source has no checkpoint")

	for i, id := range []string{"a", "b", "c"} {
		_, err := store.InsertPost(archivedPost(id, source, base.AddDate(0, 0, i*3)))
		require.NoError(t, err)
	}
	// A different source must not influence the checkpoint.
	_, err = store.InsertPost(archivedPost("other", "https://feed.example/u/other", base.AddDate(1, 0, 0)))
	require.NoError(t, err)

	checkpoint, err = store.LatestPublishedAt(source)
	require.NoError(t, err)
	assert.Equal(t, base.AddDate(0, 0, 6), checkpoint.UTC())
}

func TestPostDateRange(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"x", "y", "z"} {
		_, err := store.InsertPost(archivedPost(id, "https://feed.example", base.AddDate(0, 0, i)))
		require.NoError(t, err)
	}

	oldest, newest, err := store.PostDateRange("session-1")
	require.NoError(t, err)
	assert.Equal(t, base, oldest.UTC())
	assert.Equal(t, base.AddDate(0, 0, 2), newest.UTC())

	oldest, newest, err = store.PostDateRange("unknown-session")
	require.NoError(t, err)
	assert.True(t, oldest.IsZero())
	assert.True(t, newest.IsZero())
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)

	session := &models.ScrapeSession{
		ID:        "run-1",
		SourceURL: "https://feed.example",
	}
	require.NoError(t, store.CreateSession(session))
	assert.Equal(t, models.SessionStatusRunning, session.Status)
	assert.False(t, session.StartedAt.IsZero())

	session.Status = models.SessionStatusCompleted
	session.Stats.Stored = 12
	require.NoError(t, store.FinalizeSession(session))
	assert.False(t, session.CompletedAt.IsZero())
}

func TestPostCount(t *testing.T) {
	store := openTestStore(t)

	count, err := store.PostCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.InsertPost(archivedPost("p1", "https://feed.example", time.Now().UTC()))
	require.NoError(t, err)
	_, err = store.InsertPost(archivedPost("p1", "https://feed.example", time.Now().UTC()))
	require.NoError(t, err)

	count, err = store.PostCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "replayed inserts do not inflate the count")
}
