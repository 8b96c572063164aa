// -----------------------------------------------------------------------
// Scrape Orchestrator
// Owns one run end to end: browser session, scroll loop, discovery,
// filtering, and the ingest pool. The page is only ever touched from
// this goroutine; interception and workers run on their own.
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/browser"
	"github.com/feedvault/feedvault/internal/common"
	"github.com/feedvault/feedvault/internal/discover"
	"github.com/feedvault/feedvault/internal/fetch"
	"github.com/feedvault/feedvault/internal/models"
	"github.com/feedvault/feedvault/internal/pipeline"
	"github.com/feedvault/feedvault/internal/scroll"
	"github.com/feedvault/feedvault/internal/storage"
	"github.com/feedvault/feedvault/internal/vision"
)

// Service coordinates one archive run.
type Service struct {
	config *common.Config
	store  storage.Gateway
	logger arbor.ILogger
}

func NewService(config *common.Config, store storage.Gateway, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		store:  store,
		logger: logger,
	}
}

// Run executes a full scrape and returns its summary. Navigation failure is
// the one fatal error class; everything after a successful navigation
// degrades and still produces a finalized session.
func (s *Service) Run(ctx context.Context) (*models.RunSummary, error) {
	startBound, endBound, err := s.config.ParseDateBounds()
	if err != nil {
		return nil, err
	}

	session := &models.ScrapeSession{
		ID:        common.NewSessionID(),
		SourceURL: s.config.Source.URL,
		StartDate: startBound,
		EndDate:   endBound,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to record session: %w", err)
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Str("url", s.config.Source.URL).
		Str("mode", s.config.Source.Mode).
		Msg("Starting archive run")

	summary, runErr := s.run(ctx, session, startBound, endBound)
	if runErr != nil {
		session.Status = models.SessionStatusFailed
		session.Error = runErr.Error()
		if err := s.store.FinalizeSession(session); err != nil {
			s.logger.Error().Err(err).Msg("Failed to finalize failed session")
		}
		return nil, runErr
	}
	return summary, nil
}

func (s *Service) run(ctx context.Context, session *models.ScrapeSession, startBound, endBound time.Time) (*models.RunSummary, error) {
	checkpoint := s.loadCheckpoint()

	authState, err := browser.LoadAuthState(s.config.Source.AuthStateFile)
	if err != nil {
		return nil, err
	}

	page, err := browser.NewSession(s.config.Browser, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer page.Close()

	if err := page.SetCookies(authState.Cookies); err != nil {
		return nil, fmt.Errorf("failed to apply auth cookies: %w", err)
	}

	mode := s.config.Source.Mode
	var networkSource *discover.NetworkSource
	var interceptor *browser.Interceptor
	if mode != "dom" {
		networkSource = discover.NewNetworkSource(s.config.Source.URL, s.config.Source.APIPathMarkers, s.logger)
		interceptor = browser.NewInterceptor(s.logger)
		if err := interceptor.Attach(page, networkSource.Qualify, networkSource.HandleResponse); err != nil {
			return nil, fmt.Errorf("failed to attach network interception: %w", err)
		}
	}

	var domSource *discover.DOMSource
	if mode != "network" {
		domSource = discover.NewDOMSource(s.config.Source.PostSelector, s.config.Source.URL, page, s.logger)
	}

	// Navigation failure, including a login-wall redirect, aborts the run.
	if err := page.Navigate(ctx, s.config.Source.URL); err != nil {
		return nil, err
	}

	downloader, err := fetch.NewClient(s.config.Workers, s.config.Browser, s.config.Storage.MediaDir, authState, s.logger)
	if err != nil {
		return nil, err
	}
	inferrer, err := vision.NewService(s.config.Vision, s.logger)
	if err != nil {
		return nil, err
	}

	filter := pipeline.NewFilter(startBound, endBound, checkpoint, s.config.Source.Keywords, s.logger)
	pool := pipeline.NewPool(s.config.Workers.Count, downloader, inferrer, s.store, s.logger)
	pool.Start()

	stopReason := s.scrollLoop(ctx, session.ID, page, interceptor, domSource, networkSource, filter, pool)

	// Drain: every accepted post is fully processed before finalize.
	pool.Stop()

	return s.finalize(session, filter.Stats(), pool.Stats(), stopReason)
}

// scrollLoop drives the feed until a stop condition fires and reports which
// one did. All page access happens here.
func (s *Service) scrollLoop(
	ctx context.Context,
	sessionID string,
	page *browser.Session,
	interceptor *browser.Interceptor,
	domSource *discover.DOMSource,
	networkSource *discover.NetworkSource,
	filter *pipeline.Filter,
	pool *pipeline.Pool,
) scroll.StopReason {
	var quiesce scroll.QuiesceFunc
	if interceptor != nil {
		quiesce = interceptor.WaitQuiescence
	}
	driver := scroll.NewDriver(s.config.Scroll, page, quiesce, s.logger)

	oldStreak := 0
	for {
		if reason, stop := driver.Advance(ctx); stop {
			return reason
		}

		posts := s.harvest(ctx, domSource, networkSource)
		for i := range posts {
			decision := filter.Check(&posts[i])
			switch {
			case decision.Accepted:
				oldStreak = 0
				posts[i].SessionID = sessionID
				pool.Submit(&posts[i])
			case decision.BelowStart:
				oldStreak++
				if oldStreak >= s.config.Scroll.OldPostStreak {
					s.logger.Info().
						Int("streak", oldStreak).
						Msg("Feed scrolled past the window start")
					return scroll.StopDateBoundary
				}
			default:
				oldStreak = 0
			}
		}

		if driver.RecordTotal(s.discoveredTotal(domSource, networkSource)) {
			return scroll.StopFeedExhausted
		}
		if driver.EndOfFeed(ctx, s.config.Source.EndOfFeedMarkers) {
			return scroll.StopEndOfFeed
		}
	}
}

func (s *Service) harvest(ctx context.Context, domSource *discover.DOMSource, networkSource *discover.NetworkSource) []models.Post {
	var posts []models.Post
	if networkSource != nil {
		posts = append(posts, networkSource.Drain()...)
	}
	if domSource != nil {
		domPosts, err := domSource.Harvest(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("DOM harvest failed this tick")
		}
		posts = append(posts, domPosts...)
	}
	return posts
}

func (s *Service) discoveredTotal(domSource *discover.DOMSource, networkSource *discover.NetworkSource) int {
	total := 0
	if domSource != nil {
		total += domSource.Total()
	}
	if networkSource != nil {
		total += networkSource.Total()
	}
	return total
}

func (s *Service) loadCheckpoint() time.Time {
	if s.config.Filter.DisableResume {
		return time.Time{}
	}
	checkpoint, err := s.store.LatestPublishedAt(s.config.Source.URL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load resume checkpoint, archiving from scratch")
		return time.Time{}
	}
	if !checkpoint.IsZero() {
		s.logger.Info().
			Str("checkpoint", checkpoint.Format(time.RFC3339)).
			Msg("Resuming after last archived post")
	}
	return checkpoint
}

func (s *Service) finalize(session *models.ScrapeSession, filterStats models.SessionStats, poolStats pipeline.PoolStats, stopReason scroll.StopReason) (*models.RunSummary, error) {
	stats := filterStats
	stats.Stored = poolStats.Stored
	stats.Duplicates += poolStats.CrossRunDupes
	stats.Skipped += poolStats.CrossRunDupes
	stats.ImagesDownloaded = poolStats.ImagesDownloaded
	stats.ImagesFailed = poolStats.ImagesFailed
	stats.InferenceFailed = poolStats.InferenceFailed
	stats.Errors = poolStats.Errors

	session.Stats = stats
	session.Status = models.SessionStatusCompleted
	session.CompletedAt = time.Now().UTC()
	if err := s.store.FinalizeSession(session); err != nil {
		return nil, fmt.Errorf("failed to finalize session: %w", err)
	}

	oldest, newest, err := s.store.PostDateRange(session.ID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to compute stored date range")
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Str("stop_reason", string(stopReason)).
		Int("scanned", stats.Scanned).
		Int("stored", stats.Stored).
		Int("skipped", stats.Skipped).
		Dur("runtime", session.Duration()).
		Msg("Archive run complete")

	return &models.RunSummary{
		SessionID:      session.ID,
		SourceURL:      session.SourceURL,
		StartDate:      session.StartDate,
		EndDate:        session.EndDate,
		Stats:          stats,
		OldestStored:   oldest,
		NewestStored:   newest,
		RuntimeSeconds: session.Duration().Seconds(),
	}, nil
}
