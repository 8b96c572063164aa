// -----------------------------------------------------------------------
// Archive Store
// Badger-backed implementation of the storage gateway. Post inserts are
// idempotent on identifier; sessions are append-only run records.
// -----------------------------------------------------------------------

package badger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/feedvault/feedvault/internal/models"
	"github.com/feedvault/feedvault/internal/storage"
)

// ArchiveStore implements storage.Gateway over a BadgerDB connection.
type ArchiveStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArchiveStore opens the database at path and returns the gateway.
func NewArchiveStore(path string, logger arbor.ILogger) (storage.Gateway, error) {
	db, err := NewBadgerDB(path, logger)
	if err != nil {
		return nil, err
	}
	return &ArchiveStore{db: db, logger: logger}, nil
}

func (s *ArchiveStore) CreateSession(session *models.ScrapeSession) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	session.Status = models.SessionStatusRunning
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if err := s.db.Store().Insert(session.ID, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *ArchiveStore) FinalizeSession(session *models.ScrapeSession) error {
	if session.CompletedAt.IsZero() {
		session.CompletedAt = time.Now().UTC()
	}
	if err := s.db.Store().Update(session.ID, session); err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	return nil
}

// InsertPost persists one post, first insert wins. A replayed identifier
// reports false without touching the stored row.
func (s *ArchiveStore) InsertPost(post *models.Post) (bool, error) {
	if post.Identifier == "" {
		return false, fmt.Errorf("post identifier is required")
	}
	if err := s.db.Store().Insert(post.Identifier, post); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert post: %w", err)
	}
	return true, nil
}

// LatestPublishedAt returns the resume checkpoint for a source: the newest
// publish instant among its archived posts.
func (s *ArchiveStore) LatestPublishedAt(sourceURL string) (time.Time, error) {
	var posts []models.Post
	query := badgerhold.Where("SourceURL").Eq(sourceURL).
		SortBy("PublishedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&posts, query); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest post: %w", err)
	}
	if len(posts) == 0 {
		return time.Time{}, nil
	}
	return posts[0].PublishedAt, nil
}

func (s *ArchiveStore) PostDateRange(sessionID string) (time.Time, time.Time, error) {
	var oldest, newest time.Time
	err := s.db.Store().ForEach(badgerhold.Where("SessionID").Eq(sessionID), func(post *models.Post) error {
		if !post.HasDate() {
			return nil
		}
		if oldest.IsZero() || post.PublishedAt.Before(oldest) {
			oldest = post.PublishedAt
		}
		if newest.IsZero() || post.PublishedAt.After(newest) {
			newest = post.PublishedAt
		}
		return nil
	})
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to scan session posts: %w", err)
	}
	return oldest, newest, nil
}

func (s *ArchiveStore) PostCount() (int, error) {
	count, err := s.db.Store().Count(&models.Post{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return int(count), nil
}

func (s *ArchiveStore) Close() error {
	if err := s.db.RunGC(); err != nil {
		s.logger.Debug().Err(err).Msg("Value log GC skipped")
	}
	return s.db.Close()
}
