package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/feedvault/feedvault/internal/common"
)

// ResponseFilter decides whether an observed response body is worth reading.
type ResponseFilter func(url, method, mimeType string, status int64) bool

// ResponseHandler receives qualifying response bodies. It runs on an
// interception goroutine and must not touch the page.
type ResponseHandler func(url string, body []byte)

// Interceptor observes the tab's network traffic: it forwards qualifying
// response bodies to a handler and tracks in-flight requests so callers can
// wait for the network to settle between scroll ticks.
type Interceptor struct {
	logger   arbor.ILogger
	attached sync.Once

	mu       sync.Mutex
	inflight int
	methods  map[network.RequestID]string
}

// NewInterceptor creates an interceptor for the session's tab.
func NewInterceptor(logger arbor.ILogger) *Interceptor {
	return &Interceptor{
		logger:  logger,
		methods: make(map[network.RequestID]string),
	}
}

// Attach enables the network domain and registers the CDP event listener.
// Body reads happen on short-lived goroutines because GetResponseBody cannot
// run inside the event callback.
func (i *Interceptor) Attach(s *Session, filter ResponseFilter, handler ResponseHandler) error {
	if err := chromedp.Run(s.Context(), network.Enable()); err != nil {
		return err
	}

	i.attached.Do(func() {
		chromedp.ListenTarget(s.Context(), func(ev interface{}) {
			switch evt := ev.(type) {
			case *network.EventRequestWillBeSent:
				i.trackRequest(evt.RequestID, evt.Request.Method)

			case *network.EventLoadingFinished:
				i.finishRequest(evt.RequestID)

			case *network.EventLoadingFailed:
				i.finishRequest(evt.RequestID)

			case *network.EventResponseReceived:
				if handler == nil || filter == nil {
					return
				}
				resp := evt.Response
				if !filter(resp.URL, i.methodFor(evt.RequestID), resp.MimeType, resp.Status) {
					return
				}
				common.SafeGo(i.logger, "readResponseBody", func() {
					i.readBody(s.Context(), evt.RequestID, resp.URL, handler)
				})
			}
		})
	})
	return nil
}

func (i *Interceptor) trackRequest(id network.RequestID, method string) {
	i.mu.Lock()
	i.inflight++
	i.methods[id] = method
	i.mu.Unlock()
}

func (i *Interceptor) finishRequest(id network.RequestID) {
	i.mu.Lock()
	if i.inflight > 0 {
		i.inflight--
	}
	delete(i.methods, id)
	i.mu.Unlock()
}

func (i *Interceptor) methodFor(id network.RequestID) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if m, ok := i.methods[id]; ok {
		return m
	}
	return "GET"
}

func (i *Interceptor) inflightCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inflight
}

func (i *Interceptor) readBody(tabCtx context.Context, requestID network.RequestID, url string, handler ResponseHandler) {
	readCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer cancel()

	var body []byte
	err := chromedp.Run(readCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(requestID).Do(ctx)
		return err
	}))
	if err != nil {
		// Bodies evicted from the browser cache before we read them are
		// routine on busy feeds.
		i.logger.Debug().Err(err).Str("url", truncateURL(url)).Msg("Response body unavailable")
		return
	}
	handler(url, body)
}

// WaitQuiescence blocks until no requests are in flight or the timeout
// elapses. Long-lived connections keep feeds permanently "active", so hitting
// the timeout is expected and reported as false, never as an error.
func (i *Interceptor) WaitQuiescence(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if i.inflightCount() <= 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func truncateURL(url string) string {
	if idx := strings.IndexByte(url, '?'); idx > 0 {
		return url[:idx]
	}
	if len(url) > 120 {
		return url[:120]
	}
	return url
}
