package crawler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	robotstxt "github.com/temoto/robotstxt"

	"codedox/internal/globmatch"
)

// Filters decides which discovered URLs are admitted into the crawl
// queue: same-domain (or configured domain_filter), include/exclude
// glob patterns, and robots.txt.
type Filters struct {
	domainFilter   string
	includeAny     bool
	include        []*globmatch.Pattern
	exclude        []*globmatch.Pattern
	respectRobots  bool
	userAgent      string
	robotsData     *robotstxt.RobotsData
	robotsFetched  bool
}

// NewFilters compiles a job's domain_filter/include_patterns/
// exclude_patterns into a reusable admission check.
func NewFilters(domainFilter string, includePatterns, excludePatterns []string, respectRobots bool, userAgent string) (*Filters, error) {
	include, err := globmatch.CompileAll(includePatterns)
	if err != nil {
		return nil, err
	}
	exclude, err := globmatch.CompileAll(excludePatterns)
	if err != nil {
		return nil, err
	}
	return &Filters{
		domainFilter:  domainFilter,
		includeAny:    len(include) == 0,
		include:       include,
		exclude:       exclude,
		respectRobots: respectRobots,
		userAgent:     userAgent,
	}, nil
}

// LoadRobots fetches and caches robots.txt for the given seed URL's
// origin. Safe to call once per job before crawling starts; failures
// are non-fatal (an unreachable robots.txt permits everything).
func (f *Filters) LoadRobots(ctx context.Context, seedURL string) {
	f.robotsFetched = true
	if !f.respectRobots {
		return
	}
	u, err := url.Parse(seedURL)
	if err != nil {
		return
	}
	client := &http.Client{Timeout: 10 * time.Second}
	data, err := fetchRobots(ctx, client, u, f.userAgent)
	if err != nil {
		return
	}
	f.robotsData = data
}

// Admit reports whether candidateURL should be enqueued, given the
// crawl's domain_filter and include/exclude patterns, relative to
// seedHost (the host of the job's first start URL).
func (f *Filters) Admit(seedHost, candidateURL string) bool {
	u, err := url.Parse(candidateURL)
	if err != nil {
		return false
	}

	domain := f.domainFilter
	if domain == "" {
		domain = seedHost
	}
	if !sameHostOrSubdomain(domain, u.Hostname(), true) {
		return false
	}

	if !f.includeAny && !globmatch.MatchAny(f.include, candidateURL) {
		return false
	}
	if globmatch.MatchAny(f.exclude, candidateURL) {
		return false
	}

	if f.respectRobots && f.robotsData != nil {
		grp := f.robotsData.FindGroup(f.userAgent)
		if grp != nil && !grp.Test(u.Path) {
			return false
		}
	}

	return true
}

// normalizeURL strips fragments and trailing slashes so the same
// logical page is not queued twice under cosmetically different URLs.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
