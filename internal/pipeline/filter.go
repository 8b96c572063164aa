// -----------------------------------------------------------------------
// Post Filter
// Single in-line gate between discovery and the worker pool. Applies the
// rejection rules in fixed order so every discarded post is charged to
// exactly one counter. Runs on the orchestrator goroutine only.
// -----------------------------------------------------------------------

package pipeline

import (
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/models"
)

// Rejection reasons, one per rule.
const (
	ReasonAccepted        = "accepted"
	ReasonDuplicate       = "duplicate"
	ReasonNoDate          = "no_date"
	ReasonTooNew          = "too_new"
	ReasonTooOld          = "too_old"
	ReasonAlreadyArchived = "already_archived"
	ReasonKeywordMiss     = "keyword_miss"
)

// Decision is the outcome of filtering one post. BelowStart is set only when
// the post predates the window start; the orchestrator uses it to detect the
// feed scrolling past the window boundary.
type Decision struct {
	Accepted   bool
	BelowStart bool
	Reason     string
}

// Filter applies the per-post acceptance rules and keeps the per-run
// counters.
type Filter struct {
	start      time.Time
	end        time.Time
	checkpoint time.Time
	keywords   []string
	logger     arbor.ILogger

	seen  map[string]struct{}
	stats models.SessionStats
}

// NewFilter builds a filter for one run. checkpoint is the newest publish
// instant already archived for this source; zero disables resume skipping.
func NewFilter(start, end, checkpoint time.Time, keywords []string, logger arbor.ILogger) *Filter {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			lowered = append(lowered, strings.ToLower(k))
		}
	}
	return &Filter{
		start:      start,
		end:        end,
		checkpoint: checkpoint,
		keywords:   lowered,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// Check runs one post through the rules. Order is fixed: duplicate, no-date,
// too-new, too-old, already-archived, keyword miss. The first failing rule
// decides.
func (f *Filter) Check(post *models.Post) Decision {
	f.stats.Scanned++

	if _, dup := f.seen[post.Identifier]; dup {
		f.stats.Duplicates++
		return f.reject(post, ReasonDuplicate)
	}
	f.seen[post.Identifier] = struct{}{}

	if !post.HasDate() {
		f.stats.NoDate++
		return f.reject(post, ReasonNoDate)
	}

	if !f.end.IsZero() && post.PublishedAt.After(f.end) {
		f.stats.TooNew++
		return f.reject(post, ReasonTooNew)
	}

	if !f.start.IsZero() && post.PublishedAt.Before(f.start) {
		f.stats.TooOld++
		d := f.reject(post, ReasonTooOld)
		d.BelowStart = true
		return d
	}

	if !f.checkpoint.IsZero() && !post.PublishedAt.After(f.checkpoint) {
		f.stats.AlreadyArchived++
		return f.reject(post, ReasonAlreadyArchived)
	}

	if !f.matchesKeywords(post.CaptionText) {
		f.stats.KeywordMiss++
		return f.reject(post, ReasonKeywordMiss)
	}

	return Decision{Accepted: true, Reason: ReasonAccepted}
}

func (f *Filter) reject(post *models.Post, reason string) Decision {
	f.stats.Skipped++
	f.logger.Debug().
		Str("identifier", post.Identifier).
		Str("reason", reason).
		Msg("Post rejected")
	return Decision{Reason: reason}
}

func (f *Filter) matchesKeywords(caption string) bool {
	if len(f.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(caption)
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Stats returns a copy of the counters accumulated so far.
func (f *Filter) Stats() models.SessionStats { return f.stats }
