package models

import (
	"time"
)

// SessionStatus tracks the lifecycle of a scrape session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// SessionStats holds the counters accumulated over one run. Mutated only by
// the orchestrator at finalize time.
type SessionStats struct {
	Scanned          int `json:"scanned"`
	Stored           int `json:"stored"`
	Skipped          int `json:"skipped"`
	Duplicates       int `json:"duplicates"`
	NoDate           int `json:"no_date"`
	TooNew           int `json:"too_new"`
	TooOld           int `json:"too_old"`
	AlreadyArchived  int `json:"already_archived"`
	KeywordMiss      int `json:"keyword_miss"`
	ImagesDownloaded int `json:"images_downloaded"`
	ImagesFailed     int `json:"images_failed"`
	InferenceFailed  int `json:"inference_failed"`
	Errors           int `json:"errors"`
}

// ScrapeSession is the append-only record of one run. Created at run start,
// finalized exactly once, immutable afterward.
type ScrapeSession struct {
	ID          string        `json:"id" badgerhold:"unique"`
	SourceURL   string        `json:"source_url" badgerhold:"index"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	Status      SessionStatus `json:"status"`
	Stats       SessionStats  `json:"stats"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Duration returns the wall-clock runtime of the session.
func (s *ScrapeSession) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// RunSummary is the user-facing report produced at the end of a run.
type RunSummary struct {
	SessionID      string       `json:"session_id"`
	SourceURL      string       `json:"source_url"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	Stats          SessionStats `json:"stats"`
	OldestStored   time.Time    `json:"oldest_stored,omitempty"`
	NewestStored   time.Time    `json:"newest_stored,omitempty"`
	RuntimeSeconds float64      `json:"runtime_seconds"`
}
