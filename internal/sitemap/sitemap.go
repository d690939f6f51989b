package sitemap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// Candidates are tried in order; the first one that parses as a sitemap wins.
var Candidates = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml"}

const maxDepth = 3

var lastmodLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type Result struct {
	Location     string
	URLs         []string
	LastModified time.Time
}

type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Discover returns every page URL listed by the site's sitemap, or an empty slice if none is found.
func (f *Fetcher) Discover(ctx context.Context, siteURL string) []string {
	r, ok := f.Fetch(ctx, siteURL)
	if !ok {
		return []string{}
	}
	return r.URLs
}

// Fetch locates the first sitemap candidate and aggregates its URLs, following sitemap indexes.
func (f *Fetcher) Fetch(ctx context.Context, siteURL string) (*Result, bool) {
	base := strings.TrimRight(siteURL, "/")
	for _, candidate := range Candidates {
		loc := base + candidate
		doc, err := f.document(ctx, loc)
		if err != nil {
			slog.Debug("sitemap candidate not usable.", slog.String("url", loc), slog.String("err", err.Error()))
			continue
		}
		r := &Result{Location: loc, URLs: []string{}}
		f.collect(ctx, doc, 0, r, map[string]bool{})
		return r, true
	}
	return nil, false
}

func (f *Fetcher) collect(ctx context.Context, doc *xmlquery.Node, depth int, r *Result, seen map[string]bool) {
	nested := xmlquery.Find(doc, "//sitemapindex/sitemap/loc")
	if len(nested) > 0 {
		if depth >= maxDepth {
			return
		}
		for _, n := range nested {
			loc := strings.TrimSpace(n.InnerText())
			if loc == "" {
				continue
			}
			child, err := f.document(ctx, loc)
			if err != nil {
				slog.Debug("skipping nested sitemap.", slog.String("url", loc), slog.String("err", err.Error()))
				continue
			}
			f.collect(ctx, child, depth+1, r, seen)
		}
		return
	}

	for _, n := range xmlquery.Find(doc, "//urlset/url") {
		locNode := n.SelectElement("loc")
		if locNode == nil {
			continue
		}
		loc := strings.TrimSpace(locNode.InnerText())
		if loc != "" && !seen[loc] {
			seen[loc] = true
			r.URLs = append(r.URLs, loc)
		}
		if lm := n.SelectElement("lastmod"); lm != nil {
			if t, ok := parseLastmod(lm.InnerText()); ok && t.After(r.LastModified) {
				r.LastModified = t
			}
		}
	}
}

func (f *Fetcher) document(ctx context.Context, loc string) (*xmlquery.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	doc, err := xmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("malformed sitemap: %w", err)
	}
	if xmlquery.FindOne(doc, "/urlset") == nil && xmlquery.FindOne(doc, "/sitemapindex") == nil {
		return nil, fmt.Errorf("document is not a sitemap")
	}
	return doc, nil
}

func parseLastmod(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range lastmodLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
