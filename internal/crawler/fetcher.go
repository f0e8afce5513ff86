// Package crawler is the Crawl Pipeline: concurrent page fetching with
// depth/pattern filtering, content-hash skip, failed-page tracking, and
// heartbeat emission (spec.md §4.2).
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"codedox/internal/apperr"
)

// FetchResult is what a PageFetcher returns for one URL.
type FetchResult struct {
	HTML     string
	Links    []string
	FinalURL string
}

// PageFetcher is the external collaborator abstracting the headless
// browser (or a plain HTTP client) used to render a page and discover
// its outbound links.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResult, error)
}

// RodFetcher renders pages with a headless Chromium instance via
// go-rod/rod, honoring a polite delay between fetches.
type RodFetcher struct {
	Timeout     time.Duration
	UserAgent   string
	PoliteDelay time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// NewRodFetcher constructs a RodFetcher. Retries follow the same
// exponential-backoff shape as annotate.Pool.runBatchWithRetry (spec.md
// §4.2: up to 3 retries with exponential backoff on network errors).
func NewRodFetcher(timeout time.Duration, userAgent string, politeDelay time.Duration) *RodFetcher {
	return &RodFetcher{Timeout: timeout, UserAgent: userAgent, PoliteDelay: politeDelay, MaxRetries: 3, RetryDelay: time.Second}
}

func (f *RodFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.Fetch("invalid url", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	if f.PoliteDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, apperr.Cancelled("fetch cancelled", ctx.Err())
		case <-time.After(f.PoliteDelay):
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperr.Cancelled("fetch cancelled", ctx.Err())
			case <-time.After(f.RetryDelay * time.Duration(1<<(attempt-1))):
			}
		}
		result, err := f.fetchOnce(ctx, u)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// fetchOnce renders the page in a fresh browser instance. Rendering a
// page has no equivalent of an HTTP status line, so any failure here
// (launch, navigation, load) is treated as the spec's "network error"
// bucket and is always retried by Fetch, unlike HTTPFetcher's 4xx/5xx
// split.
func (f *RodFetcher) fetchOnce(ctx context.Context, u *url.URL) (*FetchResult, error) {
	browser, err := newLocalRodBrowser(ctx, f.Timeout)
	if err != nil {
		return nil, apperr.Fetch("launch browser", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, apperr.Fetch("open page", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.WaitLoad(); err != nil {
		return nil, apperr.Fetch("wait load", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, apperr.Fetch("read html", err)
	}

	info, err := page.Info()
	finalURL := u.String()
	if err == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	links := extractLinks(html, u)
	return &FetchResult{HTML: html, Links: links, FinalURL: finalURL}, nil
}

func newLocalRodBrowser(ctx context.Context, timeout time.Duration) (*rod.Browser, error) {
	var l *launcher.Launcher
	if path, has := launcher.LookPath(); has {
		l = launcher.New().Bin(path)
	} else {
		l = launcher.New()
	}
	l = l.Headless(true).NoSandbox(true)

	u, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(u).Context(ctx).Timeout(timeout)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, err
	}
	return browser, nil
}

// HTTPDoer is satisfied by *http.Client; narrowed so tests can fake it
// with a RoundTripper-backed stub instead of a live server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFetcher is a plain net/http fallback fetcher used when no headless
// browser is configured, or for static pages that need no JS rendering.
type HTTPFetcher struct {
	Client     HTTPDoer
	UserAgent  string
	MaxRetries int
	RetryDelay time.Duration
}

// NewHTTPFetcher constructs an HTTPFetcher with the given timeout.
// Retries follow spec.md §4.2: up to 3 retries with exponential backoff
// on 5xx responses and network errors; 4xx responses other than
// 408/429 are never retried; 408/429 respect a Retry-After header when
// present instead of the exponential schedule.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}, UserAgent: userAgent, MaxRetries: 3, RetryDelay: time.Second}
}

// httpFetchError carries the classification Fetch needs to decide
// whether (and how long) to wait before retrying, alongside the
// apperr.Error ultimately returned to the caller.
type httpFetchError struct {
	err        error
	retryable  bool
	retryAfter time.Duration
}

func (e *httpFetchError) Error() string { return e.err.Error() }
func (e *httpFetchError) Unwrap() error { return e.err }

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.Fetch("invalid url", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	maxRetries := f.MaxRetries
	retryDelay := f.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	var lastErr *httpFetchError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := retryDelay * time.Duration(1<<(attempt-1))
			if lastErr.retryAfter > 0 {
				wait = lastErr.retryAfter
			}
			select {
			case <-ctx.Done():
				return nil, apperr.Cancelled("fetch cancelled", ctx.Err())
			case <-time.After(wait):
			}
		}

		result, fe := f.fetchOnce(ctx, u)
		if fe == nil {
			return result, nil
		}
		if cerr, ok := fe.err.(interface{ isCancelled() bool }); ok && cerr.isCancelled() {
			return nil, fe.err
		}
		if !fe.retryable {
			return nil, fe.err
		}
		lastErr = fe
	}
	return nil, lastErr.err
}

// fetchOnce performs a single attempt, classifying any failure for
// Fetch's retry loop.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL) (*FetchResult, *httpFetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &httpFetchError{err: apperr.Fetch("build request", err)}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &httpFetchError{err: cancelledError{err: apperr.Cancelled("fetch cancelled", ctx.Err())}}
		}
		// A transport-level failure (connection refused, DNS, timeout)
		// is a network error, retryable per spec.md §4.2.
		return nil, &httpFetchError{err: apperr.Fetch("request failed", err), retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests
		var retryAfter time.Duration
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, &httpFetchError{
			err:        apperr.Fetch(fmt.Sprintf("http status %d", resp.StatusCode), nil),
			retryable:  retryable,
			retryAfter: retryAfter,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &httpFetchError{err: apperr.Fetch("read body", err), retryable: true}
	}

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	html := string(body)
	return &FetchResult{HTML: html, Links: extractLinks(html, u), FinalURL: finalURL}, nil
}

// cancelledError marks an error as context-cancellation so Fetch's
// retry loop can short-circuit instead of burning through retries. It
// unwraps to exactly its wrapped apperr.Error (no further), so
// apperr.KindOf still resolves to KindCancelled.
type cancelledError struct{ err error }

func (e cancelledError) Error() string   { return e.err.Error() }
func (e cancelledError) Unwrap() error   { return e.err }
func (cancelledError) isCancelled() bool { return true }

// parseRetryAfter reads a Retry-After header given as a delay in
// seconds (the HTTP-date form is rare in practice and not needed here:
// rate-limited documentation servers send the seconds form almost
// universally). Returns 0 (meaning "use the default backoff") when
// absent or unparseable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func extractLinks(html string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		final := linkURL.String()
		if !seen[final] {
			seen[final] = true
			links = append(links, final)
		}
	})
	return links
}
