package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/sitemap"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"
)

const sitemapMaxAge = 7 * 24 * time.Hour

var (
	faviconPaths    = []string{"/favicon.ico", "/favicon.png", "/apple-touch-icon.png"}
	userAgentRegexp = regexp.MustCompile(`(?im)^\s*user-agent\s*:`)
	sitemapRegexp   = regexp.MustCompile(`(?im)^\s*sitemap\s*:`)
)

type Config struct {
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
}

type Prober struct {
	client     *http.Client
	noRedirect *http.Client
	sitemaps   *sitemap.Fetcher
	userAgent  string
	now        func() time.Time
}

type Result struct {
	ConfigIssues   []model.Issue
	SecurityIssues []model.Issue
	SitemapURLs    []string
}

func NewProber(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := &http.Client{Timeout: cfg.Timeout, Transport: transport}
	return &Prober{
		client: client,
		noRedirect: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sitemaps:  sitemap.NewFetcher(client, cfg.UserAgent),
		userAgent: cfg.UserAgent,
		now:       time.Now,
	}
}

// RunAll runs the four probes concurrently. Probe failures surface as issues, never as errors.
func (p *Prober) RunAll(ctx context.Context, siteURL string) Result {
	var robots, sitemapIssues, favicon, redirect []model.Issue
	var urls []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		robots = p.CheckRobotsTxt(gctx, siteURL)
		return nil
	})
	g.Go(func() error {
		sitemapIssues, urls = p.CheckSitemapHealth(gctx, siteURL)
		return nil
	})
	g.Go(func() error {
		favicon = p.CheckFavicon(gctx, siteURL)
		return nil
	})
	g.Go(func() error {
		redirect = p.CheckHTTPSRedirect(gctx, siteURL)
		return nil
	})
	_ = g.Wait()

	res := Result{SitemapURLs: urls}
	res.ConfigIssues = append(res.ConfigIssues, robots...)
	res.ConfigIssues = append(res.ConfigIssues, sitemapIssues...)
	res.ConfigIssues = append(res.ConfigIssues, favicon...)
	res.SecurityIssues = append(res.SecurityIssues, redirect...)
	return res
}

func (p *Prober) CheckRobotsTxt(ctx context.Context, siteURL string) []model.Issue {
	robotsURL := strings.TrimRight(siteURL, "/") + "/robots.txt"
	status, body, err := p.get(ctx, robotsURL)
	if err != nil || status != http.StatusOK {
		return []model.Issue{model.NewIssue(model.IssueMissingRobots, model.SeverityWarning, robotsURL,
			"robots.txt file not found")}
	}

	var issues []model.Issue
	if !userAgentRegexp.Match(body) {
		issues = append(issues, model.NewIssue(model.IssueInvalidRobots, model.SeverityWarning, robotsURL,
			"Missing User-agent directive"))
	}
	hasSitemap := sitemapRegexp.Match(body)
	if data, err := robotstxt.FromStatusAndBytes(status, body); err == nil {
		hasSitemap = len(data.Sitemaps) > 0
	}
	if !hasSitemap {
		issues = append(issues, model.NewIssue(model.IssueInvalidRobots, model.SeverityWarning, robotsURL,
			"Missing Sitemap directive"))
	}
	return issues
}

// CheckSitemapHealth also returns the sitemap's page URLs so the crawl does not fetch it twice.
func (p *Prober) CheckSitemapHealth(ctx context.Context, siteURL string) ([]model.Issue, []string) {
	r, ok := p.sitemaps.Fetch(ctx, siteURL)
	if !ok {
		return []model.Issue{model.NewIssue(model.IssueMissingSitemap, model.SeverityError, "",
			"No sitemap found at /sitemap.xml, /sitemap_index.xml or /sitemap-index.xml")}, []string{}
	}
	var issues []model.Issue
	if !r.LastModified.IsZero() {
		if age := p.now().Sub(r.LastModified); age > sitemapMaxAge {
			issues = append(issues, model.NewIssue(model.IssueOutdatedSitemap, model.SeverityWarning, r.Location,
				fmt.Sprintf("Most recent sitemap entry is %d days old", int(age.Hours()/24))))
		}
	}
	return issues, r.URLs
}

func (p *Prober) CheckFavicon(ctx context.Context, siteURL string) []model.Issue {
	base := strings.TrimRight(siteURL, "/")
	for _, path := range faviconPaths {
		status, _, err := p.get(ctx, base+path)
		if err == nil && status/100 == 2 {
			return nil
		}
	}
	return []model.Issue{model.NewIssue(model.IssueMissingFavicon, model.SeverityWarning, "",
		"No favicon found at /favicon.ico, /favicon.png or /apple-touch-icon.png")}
}

func (p *Prober) CheckHTTPSRedirect(ctx context.Context, siteURL string) []model.Issue {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return nil
	}
	httpVariant := *u
	httpVariant.Scheme = "http"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpVariant.String(), nil)
	if err != nil {
		return nil
	}
	p.setHeaders(req)
	resp, err := p.noRedirect.Do(req)
	if err != nil {
		slog.Debug("http variant not reachable.", slog.String("url", httpVariant.String()),
			slog.String("err", err.Error()))
		return nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 == 3 {
		if loc, err := resp.Location(); err == nil && loc.Scheme == "https" {
			return nil
		}
	}
	if u.Scheme == "http" {
		return []model.Issue{model.NewIssue(model.IssueNoHTTPSRedirect, model.SeverityError, httpVariant.String(),
			"Site is served over HTTP without redirecting to HTTPS")}
	}
	return []model.Issue{model.NewIssue(model.IssueNoHTTPSRedirect, model.SeverityWarning, httpVariant.String(),
		"HTTP version of the site does not redirect to HTTPS")}
}

func (p *Prober) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (p *Prober) setHeaders(req *http.Request) {
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
}
