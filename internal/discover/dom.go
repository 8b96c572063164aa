package discover

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/models"
)

// PageEvaluator runs a script in the live page. Satisfied by browser.Session.
type PageEvaluator interface {
	Evaluate(ctx context.Context, script string, out interface{}) error
}

type domSnapshot struct {
	HTML string `json:"html"`
}

// DOMSource discovers posts by reading rendered elements off the page each
// tick. Elements already harvested in a previous tick are skipped via a
// seen-set keyed on stable identifiers, so virtualized feeds that recycle
// DOM nodes do not produce duplicates.
type DOMSource struct {
	selector  string
	sourceURL string
	page      PageEvaluator
	logger    arbor.ILogger

	seen        map[string]struct{}
	warnedEmpty bool
}

func NewDOMSource(selector, sourceURL string, page PageEvaluator, logger arbor.ILogger) *DOMSource {
	return &DOMSource{
		selector:  selector,
		sourceURL: sourceURL,
		page:      page,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
}

// Harvest snapshots every matching element and extracts the ones not seen
// before. Runs on the orchestrator goroutine only.
func (d *DOMSource) Harvest(ctx context.Context) ([]models.Post, error) {
	selector, err := json.Marshal(d.selector)
	if err != nil {
		return nil, fmt.Errorf("invalid post selector %q: %w", d.selector, err)
	}
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(el => ({html: el.outerHTML}))`,
		selector,
	)

	var snapshots []domSnapshot
	if err := d.page.Evaluate(ctx, script, &snapshots); err != nil {
		return nil, fmt.Errorf("post element snapshot failed: %w", err)
	}

	if len(snapshots) == 0 && !d.warnedEmpty {
		d.warnedEmpty = true
		d.logger.Warn().
			Str("selector", d.selector).
			Msg("Selector matched no elements; check post_selector against the page")
	}

	var posts []models.Post
	for _, snap := range snapshots {
		identifier := StableIdentifier(snap.HTML)
		if identifier == "" {
			continue
		}
		if _, ok := d.seen[identifier]; ok {
			continue
		}
		d.seen[identifier] = struct{}{}

		post, err := ExtractFromHTML(identifier, snap.HTML, d.sourceURL)
		if err != nil {
			d.logger.Debug().Err(err).Str("identifier", identifier).Msg("Post extraction failed")
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// Total reports how many distinct posts have been discovered so far. The
// scroll driver keys feed-growth stability off this number.
func (d *DOMSource) Total() int { return len(d.seen) }
