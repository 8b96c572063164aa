// -----------------------------------------------------------------------
// Media Fetch Client
// Independent HTTP client for post media. Never touches the browser:
// it replays the session cookies and user agent, paces itself with a
// rate limiter, and stores bodies content-addressed so re-downloads of
// identical media dedupe on disk.
// -----------------------------------------------------------------------

package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/feedvault/feedvault/internal/browser"
	"github.com/feedvault/feedvault/internal/common"
	"github.com/feedvault/feedvault/internal/models"
	"github.com/feedvault/feedvault/internal/pipeline"
)

// Client downloads post media to the local media directory.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *pipeline.RetryPolicy
	cookies    []*http.Cookie
	mediaDir   string
	maxSize    int64
	userAgent  string
	timeout    time.Duration
	logger     arbor.ILogger
}

// NewClient builds the media client. auth may be nil for unauthenticated
// feeds.
func NewClient(config common.WorkersConfig, browserConfig common.BrowserConfig, mediaDir string, auth *browser.AuthState, logger arbor.ILogger) (*Client, error) {
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", mediaDir, err)
	}

	ratePerSec := config.DownloadRate
	if ratePerSec <= 0 {
		ratePerSec = 2
	}

	var cookies []*http.Cookie
	if auth != nil {
		cookies = auth.HTTPCookies()
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.DownloadTimeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
		retry:      pipeline.NewRetryPolicy(),
		cookies:    cookies,
		mediaDir:   mediaDir,
		maxSize:    config.MaxMediaSize,
		userAgent:  browserConfig.UserAgent,
		timeout:    config.DownloadTimeout,
		logger:     logger,
	}, nil
}

// Download fetches the post's media and returns the stored path.
func (c *Client) Download(ctx context.Context, post *models.Post) (string, error) {
	if post.MediaURL == "" {
		return "", fmt.Errorf("post %s has no media URL", post.Identifier)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var body []byte
	_, err := c.retry.ExecuteWithRetry(ctx, c.logger, func() (int, error) {
		status, data, err := c.fetch(ctx, post)
		if err != nil {
			return status, err
		}
		body = data
		return status, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to download media for %s: %w", post.Identifier, err)
	}

	return c.storeBody(post, body)
}

func (c *Client) fetch(ctx context.Context, post *models.Post) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, post.MediaURL, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,video/*,*/*;q=0.8")
	if post.SourceURL != "" {
		req.Header.Set("Referer", post.SourceURL)
	}
	c.applyCookies(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, c.maxSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if int64(len(data)) > c.maxSize {
		return resp.StatusCode, nil, fmt.Errorf("media exceeds size limit of %d bytes", c.maxSize)
	}
	return resp.StatusCode, data, nil
}

// applyCookies adds stored session cookies whose domain covers the request
// host.
func (c *Client) applyCookies(req *http.Request) {
	host := req.URL.Hostname()
	for _, cookie := range c.cookies {
		if domainMatches(host, cookie.Domain) {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}
}

func domainMatches(host, domain string) bool {
	if domain == "" {
		return true
	}
	domain = strings.TrimPrefix(domain, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// storeBody writes the media content-addressed: <dir>/<hh>/<hash><ext>.
// Identical content lands on the same path, so duplicate media across posts
// stores once.
func (c *Client) storeBody(post *models.Post, body []byte) (string, error) {
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	target := filepath.Join(c.mediaDir, hash[:2], hash+mediaExtension(post))
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create media subdirectory: %w", err)
	}
	if err := os.WriteFile(target, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	c.logger.Debug().
		Str("identifier", post.Identifier).
		Str("path", target).
		Int("bytes", len(body)).
		Msg("Media stored")
	return target, nil
}

func mediaExtension(post *models.Post) string {
	if u, err := url.Parse(post.MediaURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); validExtension(ext) {
			return ext
		}
	}
	if post.MediaType == models.MediaTypeVideo {
		return ".mp4"
	}
	return ".jpg"
}

func validExtension(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4", ".webm", ".mov":
		return true
	}
	return false
}
