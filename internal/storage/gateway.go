package storage

import (
	"time"

	"github.com/feedvault/feedvault/internal/models"
)

// Gateway is the persistence boundary for the archive. Implementations must
// make InsertPost idempotent on post identifier: the first insert wins and
// re-inserts report false with no error and no mutation.
type Gateway interface {
	// CreateSession records a new run in running state.
	CreateSession(session *models.ScrapeSession) error

	// FinalizeSession writes the terminal status and stats. Called exactly
	// once per run, on success and on failure alike.
	FinalizeSession(session *models.ScrapeSession) error

	// InsertPost persists one post. Returns true when the post was newly
	// inserted, false when the identifier already exists.
	InsertPost(post *models.Post) (bool, error)

	// LatestPublishedAt returns the newest publish instant archived for a
	// source, or the zero time when the source has no posts.
	LatestPublishedAt(sourceURL string) (time.Time, error)

	// PostDateRange returns the oldest and newest publish instants stored by
	// one session. Zero times when the session stored nothing.
	PostDateRange(sessionID string) (oldest, newest time.Time, err error)

	// PostCount returns the total number of archived posts.
	PostCount() (int, error)

	Close() error
}
