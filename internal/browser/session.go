// -----------------------------------------------------------------------
// Browser Session
// Owns the chromedp allocator and tab used to drive the target feed.
// All page-touching calls are serialized by the orchestrator; this type
// never spawns its own page work.
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/common"
)

// NavigationError is the fatal error class for reaching the target feed:
// timeouts, network failures, and redirects to a login wall.
type NavigationError struct {
	URL    string
	Reason string
	Err    error
}

func (e *NavigationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigation to %s failed: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("navigation to %s failed: %s", e.URL, e.Reason)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Session wraps one browser tab and its allocator.
type Session struct {
	config        common.BrowserConfig
	logger        arbor.ILogger
	ctx           context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewSession launches a browser instance and verifies it responds before
// returning. The caller owns the session and must Close it.
func NewSession(config common.BrowserConfig, logger arbor.ILogger) (*Session, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", config.DisableGPU),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(config.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup test: a browser that cannot reach about:blank is unusable.
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	logger.Debug().
		Bool("headless", config.Headless).
		Str("user_agent", config.UserAgent).
		Msg("Browser session started")

	return &Session{
		config:        config,
		logger:        logger,
		ctx:           browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Context exposes the tab context for interception listeners.
func (s *Session) Context() context.Context { return s.ctx }

// run ties one page call to the caller's lifetime: chromedp needs the tab
// context, but cancelling the caller (signal shutdown) must still interrupt
// an in-flight call rather than wait for it to return.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := linkContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// linkContext derives a cancellable child of tab that is also cancelled when
// caller ends.
func linkContext(tab, caller context.Context) (context.Context, context.CancelFunc) {
	linked, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(caller, cancel)
	return linked, func() {
		stop()
		cancel()
	}
}

// Alive reports whether the underlying tab is still usable.
func (s *Session) Alive() bool { return s.ctx.Err() == nil }

// SetCookies replays stored session cookies into the browser before
// navigation.
func (s *Session) SetCookies(cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	err := chromedp.Run(s.ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				setter := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly)
				if c.Expires > 0 {
					expires := cdp.TimeSinceEpoch(time.Unix(c.Expires, 0))
					setter = setter.WithExpires(&expires)
				}
				if err := setter.Do(ctx); err != nil {
					return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}
	s.logger.Debug().Int("cookie_count", len(cookies)).Msg("Session cookies applied")
	return nil
}

// Navigate loads the target URL. Timeouts, network errors, and redirects to
// a login page all surface as *NavigationError — the one fatal error class
// of a run.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	linked, cancelLink := linkContext(s.ctx, ctx)
	defer cancelLink()
	navCtx, cancel := context.WithTimeout(linked, s.config.NavigateTimeout)
	defer cancel()

	var location string
	err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return &NavigationError{URL: targetURL, Reason: "page load failed", Err: err}
	}

	if isLoginWall(location) {
		return &NavigationError{URL: targetURL, Reason: fmt.Sprintf("redirected to login page %s", location)}
	}

	s.logger.Info().Str("url", targetURL).Str("location", location).Msg("Navigation complete")
	return nil
}

func isLoginWall(location string) bool {
	lower := strings.ToLower(location)
	return strings.Contains(lower, "/login") || strings.Contains(lower, "/accounts/login") ||
		strings.Contains(lower, "/signin")
}

// ScrollToBottom advances the viewport to the current bottom of the page.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	)
}

// KeepAlive jiggles the viewport to defeat idle-detection heuristics that
// pause lazy loading in background tabs.
func (s *Session) KeepAlive(ctx context.Context) error {
	return s.run(ctx,
		chromedp.Evaluate(`window.scrollBy(0, -80); window.scrollBy(0, 80)`, nil),
	)
}

// ContainsText reports whether any of the markers appears in the page's
// visible text.
func (s *Session) ContainsText(ctx context.Context, markers []string) (bool, error) {
	if len(markers) == 0 {
		return false, nil
	}
	var text string
	if err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return false, err
	}
	lower := strings.ToLower(text)
	for _, marker := range markers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true, nil
		}
	}
	return false, nil
}

// Evaluate runs a script in the page and unmarshals its result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}

// Close tears down the tab and the allocator.
func (s *Session) Close() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.logger.Debug().Msg("Browser session closed")
}
