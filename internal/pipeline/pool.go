// -----------------------------------------------------------------------
// Ingest Pool
// Bounded worker pool that carries accepted posts through download,
// optional vision inference, and persistence. Failures degrade: a post
// whose media cannot be fetched or described is still persisted.
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/models"
)

// Downloader fetches a post's media to local storage and returns the stored
// path. Implementations retry internally; an error here is final.
type Downloader interface {
	Download(ctx context.Context, post *models.Post) (string, error)
}

// Inferrer runs vision inference over a stored media file.
type Inferrer interface {
	Enabled() bool
	Infer(ctx context.Context, mediaPath string) (*models.ImageInsight, error)
}

// PostStore persists posts idempotently. The bool reports whether the post
// was newly inserted.
type PostStore interface {
	InsertPost(post *models.Post) (bool, error)
}

// PoolStats are the counters the pool accumulates across its workers.
type PoolStats struct {
	Stored           int
	CrossRunDupes    int
	ImagesDownloaded int
	ImagesFailed     int
	InferenceFailed  int
	Errors           int
}

// Pool is the bounded ingest worker pool. Submit blocks when all workers are
// busy and the queue is full, which backpressures discovery naturally.
type Pool struct {
	workers    int
	downloader Downloader
	inferrer   Inferrer
	store      PostStore
	retry      *RetryPolicy
	logger     arbor.ILogger

	jobQueue chan *models.Post
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	stats PoolStats
}

// NewPool sizes the pool. The queue holds twice the worker count before
// Submit blocks.
func NewPool(workers int, downloader Downloader, inferrer Inferrer, store PostStore, logger arbor.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers:    workers,
		downloader: downloader,
		inferrer:   inferrer,
		store:      store,
		retry:      NewRetryPolicy(),
		logger:     logger,
		jobQueue:   make(chan *models.Post, workers*2),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.logger.Info().Int("num_workers", p.workers).Msg("Starting ingest pool")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues one accepted post. Blocks until a worker slot frees or the
// pool shuts down.
func (p *Pool) Submit(post *models.Post) {
	select {
	case p.jobQueue <- post:
	case <-p.ctx.Done():
		p.logger.Warn().Str("identifier", post.Identifier).Msg("Pool shut down, post dropped")
	}
}

// Stop drains the queue: no new posts are accepted, every queued post is
// processed, then the workers exit.
func (p *Pool) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	p.cancel()
	p.logger.Info().
		Int("stored", p.Stats().Stored).
		Msg("Ingest pool drained")
}

// Abort cancels in-flight work without draining the queue.
func (p *Pool) Abort() {
	p.cancel()
	p.wg.Wait()
}

// Stats returns a copy of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()
	p.logger.Debug().Int("worker_id", workerID).Msg("Ingest worker started")

	for post := range p.jobQueue {
		if p.ctx.Err() != nil {
			return
		}
		p.process(workerID, post)
	}
}

func (p *Pool) process(workerID int, post *models.Post) {
	start := time.Now()

	if post.MediaURL != "" {
		path, err := p.downloader.Download(p.ctx, post)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("identifier", post.Identifier).
				Msg("Media download failed, persisting post without media")
			p.count(func(s *PoolStats) { s.ImagesFailed++ })
		} else {
			post.MediaPath = path
			p.count(func(s *PoolStats) { s.ImagesDownloaded++ })
		}
	}

	if post.MediaPath != "" && p.inferrer != nil && p.inferrer.Enabled() && post.MediaType != models.MediaTypeVideo {
		var insight *models.ImageInsight
		err := p.retry.Execute(p.ctx, p.logger, func() error {
			var inferErr error
			insight, inferErr = p.inferrer.Infer(p.ctx, post.MediaPath)
			return inferErr
		})
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("identifier", post.Identifier).
				Msg("Vision inference failed, persisting post without insight")
			p.count(func(s *PoolStats) { s.InferenceFailed++ })
		} else {
			post.Insight = insight
		}
	}

	post.DropTransient()
	post.CreatedAt = time.Now().UTC()

	inserted, err := p.store.InsertPost(post)
	switch {
	case err != nil:
		p.logger.Error().
			Err(err).
			Str("identifier", post.Identifier).
			Msg("Failed to persist post")
		p.count(func(s *PoolStats) { s.Errors++ })
	case !inserted:
		// Archived by an earlier run; filter checkpoints cannot catch posts
		// whose dates were edited after archiving.
		p.count(func(s *PoolStats) { s.CrossRunDupes++ })
	default:
		p.count(func(s *PoolStats) { s.Stored++ })
		p.logger.Debug().
			Int("worker_id", workerID).
			Str("identifier", post.Identifier).
			Dur("duration", time.Since(start)).
			Msg("Post archived")
	}
}

func (p *Pool) count(fn func(*PoolStats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}
