package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/models"
)

type fakeDownloader struct {
	mu     sync.Mutex
	calls  int
	err    error
	failOn map[string]bool
}

func (f *fakeDownloader) Download(_ context.Context, post *models.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil || f.failOn[post.Identifier] {
		if f.err != nil {
			return "", f.err
		}
		return "", errors.New("connection reset")
	}
	return "/media/" + post.Identifier + ".jpg", nil
}

type fakeInferrer struct {
	enabled   bool
	err       error
	failFirst int

	mu    sync.Mutex
	calls int
}

func (f *fakeInferrer) Enabled() bool { return f.enabled }

func (f *fakeInferrer) Infer(_ context.Context, _ string) (*models.ImageInsight, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.err != nil && (f.failFirst == 0 || call <= f.failFirst) {
		return nil, f.err
	}
	return &models.ImageInsight{SceneDescription: "a harbor at dusk"}, nil
}

func (f *fakeInferrer) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fastRetryPolicy keeps backoff sleeps out of test runtime.
func fastRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

type fakeStore struct {
	mu       sync.Mutex
	inserted map[string]*models.Post
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{inserted: make(map[string]*models.Post)}
}

func (f *fakeStore) InsertPost(post *models.Post) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.inserted[post.Identifier]; ok {
		return false, nil
	}
	clone := *post
	f.inserted[post.Identifier] = &clone
	return true, nil
}

func (f *fakeStore) get(id string) *models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserted[id]
}

func mediaPost(id string) *models.Post {
	return &models.Post{
		Identifier:  id,
		MediaURL:    "https://cdn.example/" + id + ".jpg",
		MediaType:   models.MediaTypeImage,
		RawFragment: []byte(`{"id":"` + id + `"}`),
	}
}

func TestPoolProcessesAndDrains(t *testing.T) {
	store := newFakeStore()
	pool := NewPool(3, &fakeDownloader{}, &fakeInferrer{enabled: true}, store, arbor.NewLogger())
	pool.Start()

	for i := 0; i < 20; i++ {
		pool.Submit(mediaPost(fmt.Sprintf("p%d", i)))
	}
	pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, 20, stats.Stored)
	assert.Equal(t, 20, stats.ImagesDownloaded)
	assert.Zero(t, stats.Errors)

	stored := store.get("p7")
	require.NotNil(t, stored)
	assert.Equal(t, "/media/p7.jpg", stored.MediaPath)
	assert.NotNil(t, stored.Insight)
	assert.Nil(t, stored.RawFragment, "raw payloads must not reach storage")
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestPoolPersistsPostWhenDownloadFails(t *testing.T) {
	store := newFakeStore()
	dl := &fakeDownloader{failOn: map[string]bool{"bad": true}}
	pool := NewPool(2, dl, nil, store, arbor.NewLogger())
	pool.Start()

	pool.Submit(mediaPost("good"))
	pool.Submit(mediaPost("bad"))
	pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Stored, "a failed download still persists the post")
	assert.Equal(t, 1, stats.ImagesDownloaded)
	assert.Equal(t, 1, stats.ImagesFailed)

	bad := store.get("bad")
	require.NotNil(t, bad)
	assert.Empty(t, bad.MediaPath)
}

func TestPoolPersistsPostWhenInferenceFails(t *testing.T) {
	store := newFakeStore()
	inf := &fakeInferrer{enabled: true, err: errors.New("model overloaded")}
	pool := NewPool(1, &fakeDownloader{}, inf, store, arbor.NewLogger())
	pool.retry = fastRetryPolicy()
	pool.Start()

	pool.Submit(mediaPost("p1"))
	pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Stored)
	assert.Equal(t, 1, stats.InferenceFailed)
	assert.Equal(t, 3, inf.attempts(), "inference is retried before giving up")

	stored := store.get("p1")
	require.NotNil(t, stored)
	assert.Nil(t, stored.Insight)
	assert.Equal(t, "/media/p1.jpg", stored.MediaPath, "media survives an inference failure")
}

func TestPoolInferenceRecoversOnRetry(t *testing.T) {
	store := newFakeStore()
	inf := &fakeInferrer{enabled: true, err: errors.New("model overloaded"), failFirst: 1}
	pool := NewPool(1, &fakeDownloader{}, inf, store, arbor.NewLogger())
	pool.retry = fastRetryPolicy()
	pool.Start()

	pool.Submit(mediaPost("p1"))
	pool.Stop()

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Stored)
	assert.Zero(t, stats.InferenceFailed)
	assert.Equal(t, 2, inf.attempts())

	stored := store.get("p1")
	require.NotNil(t, stored)
	require.NotNil(t, stored.Insight)
	assert.Equal(t, "a harbor at dusk", stored.Insight.SceneDescription)
}

func TestPoolSkipsInferenceForVideos(t *testing.T) {
	store := newFakeStore()
	inf := &fakeInferrer{enabled: true}
	pool := NewPool(1, &fakeDownloader{}, inf, store, arbor.NewLogger())
	pool.Start()

	post := mediaPost("v1")
	post.MediaType = models.MediaTypeVideo
	pool.Submit(post)
	pool.Stop()

	stored := store.get("v1")
	require.NotNil(t, stored)
	assert.Nil(t, stored.Insight)
}

func TestPoolCountsCrossRunDuplicates(t *testing.T) {
	store := newFakeStore()
	store.inserted["seen-before"] = &models.Post{Identifier: "seen-before"}

	pool := NewPool(1, &fakeDownloader{}, nil, store, arbor.NewLogger())
	pool.Start()
	pool.Submit(mediaPost("seen-before"))
	pool.Stop()

	stats := pool.Stats()
	assert.Zero(t, stats.Stored)
	assert.Equal(t, 1, stats.CrossRunDupes)
	assert.Zero(t, stats.Errors, "an idempotent re-insert is not an error")
}

func TestPoolCountsStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk full")

	pool := NewPool(1, &fakeDownloader{}, nil, store, arbor.NewLogger())
	pool.Start()
	pool.Submit(mediaPost("p1"))
	pool.Stop()

	assert.Equal(t, 1, pool.Stats().Errors)
}

func TestPoolSkipsDownloadWithoutMediaURL(t *testing.T) {
	store := newFakeStore()
	dl := &fakeDownloader{}
	pool := NewPool(1, dl, nil, store, arbor.NewLogger())
	pool.Start()

	pool.Submit(&models.Post{Identifier: "text-only"})
	pool.Stop()

	assert.Zero(t, dl.calls)
	assert.Equal(t, 1, pool.Stats().Stored)
}
