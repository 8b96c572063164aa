// -----------------------------------------------------------------------
// Scroll Driver
// Advances an infinite-scroll feed one tick at a time: scroll to the
// bottom, let the page settle, wait for the network to go quiet, then
// let the caller harvest. Tracks content-growth stability so the run
// stops when the feed stops producing.
// -----------------------------------------------------------------------

package scroll

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/common"
)

// StopReason records why the scroll loop ended.
type StopReason string

const (
	StopFeedExhausted StopReason = "feed_exhausted"
	StopEndOfFeed     StopReason = "end_of_feed_marker"
	StopMaxTicks      StopReason = "max_ticks"
	StopDateBoundary  StopReason = "date_boundary"
	StopPageGone      StopReason = "page_gone"
	StopCancelled     StopReason = "cancelled"
)

// Page is the slice of the browser session the driver touches. All calls are
// made from the single orchestrator goroutine.
type Page interface {
	ScrollToBottom(ctx context.Context) error
	KeepAlive(ctx context.Context) error
	ContainsText(ctx context.Context, markers []string) (bool, error)
	Alive() bool
}

// QuiesceFunc waits for in-flight network activity to settle. It reports
// false on timeout, which is informational, not an error.
type QuiesceFunc func(ctx context.Context, timeout time.Duration) bool

// Driver runs the per-tick scroll mechanics and stability accounting.
type Driver struct {
	config  common.ScrollConfig
	page    Page
	quiesce QuiesceFunc
	logger  arbor.ILogger

	ticks       int
	stableTicks int
	lastTotal   int
}

// NewDriver builds a driver over an open page. quiesce may be nil when no
// network interception is attached.
func NewDriver(config common.ScrollConfig, page Page, quiesce QuiesceFunc, logger arbor.ILogger) *Driver {
	return &Driver{
		config:  config,
		page:    page,
		quiesce: quiesce,
		logger:  logger,
	}
}

// Ticks returns how many scroll ticks have run.
func (d *Driver) Ticks() int { return d.ticks }

// Advance performs one scroll tick: scroll to bottom, settle, wait for
// network quiet. Scroll failures on a live page are logged and swallowed —
// a single failed scroll must not end the run. A dead page returns
// StopPageGone.
func (d *Driver) Advance(ctx context.Context) (StopReason, bool) {
	if !d.page.Alive() {
		return StopPageGone, true
	}
	if d.config.MaxTicks > 0 && d.ticks >= d.config.MaxTicks {
		return StopMaxTicks, true
	}
	if err := ctx.Err(); err != nil {
		return StopCancelled, true
	}

	d.ticks++

	if err := d.page.ScrollToBottom(ctx); err != nil {
		if !d.page.Alive() {
			return StopPageGone, true
		}
		d.logger.Warn().Err(err).Int("tick", d.ticks).Msg("Scroll failed, retrying next tick")
		return "", false
	}

	settle := d.config.SettleDelay
	if d.ticks == 1 && d.config.FirstTickWarmup > settle {
		// The first batch of lazy content loads slower than steady-state
		// pagination.
		settle = d.config.FirstTickWarmup
	}
	if !sleepCtx(ctx, settle) {
		return StopCancelled, true
	}

	if d.quiesce != nil {
		if quiet := d.quiesce(ctx, d.config.QuiesceTimeout); !quiet {
			d.logger.Debug().Int("tick", d.ticks).Msg("Network still active after quiesce timeout")
		}
	}

	if err := d.page.KeepAlive(ctx); err != nil && !d.page.Alive() {
		return StopPageGone, true
	}
	return "", false
}

// RecordTotal feeds the post-harvest discovery total back into the stability
// counter. It reports true once the total has not grown for the configured
// number of consecutive ticks.
func (d *Driver) RecordTotal(total int) bool {
	if total > d.lastTotal {
		d.lastTotal = total
		d.stableTicks = 0
		return false
	}

	d.stableTicks++
	d.logger.Debug().
		Int("tick", d.ticks).
		Int("total", total).
		Int("stable_ticks", d.stableTicks).
		Msg("No new content this tick")
	return d.stableTicks >= d.config.MaxStableTicks
}

// EndOfFeed checks the page for explicit end-of-content markers. Errors are
// swallowed: a failed text probe on a live page just means "not proven done".
func (d *Driver) EndOfFeed(ctx context.Context, markers []string) bool {
	if len(markers) == 0 || !d.page.Alive() {
		return false
	}
	found, err := d.page.ContainsText(ctx, markers)
	if err != nil {
		d.logger.Debug().Err(err).Msg("End-of-feed probe failed")
		return false
	}
	return found
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
