package analyzer

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/resolver"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultTimeout = 15 * time.Second
	sampleLimit    = 10
	elementLimit   = 100
)

var (
	fontHosts = map[string]bool{
		"fonts.googleapis.com": true,
		"fonts.gstatic.com":    true,
		"use.typekit.net":      true,
		"fonts.bunny.net":      true,
		"use.fontawesome.com":  true,
	}
	fontExtensions = map[string]bool{".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true}
	emptyHrefs     = map[string]bool{"": true, "#": true, "javascript:void(0)": true, "javascript:void(0);": true}
)

type Analyzer struct {
	fetcher Fetcher
	timeout time.Duration
}

func New(fetcher Fetcher, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Analyzer{fetcher: fetcher, timeout: timeout}
}

// Analyze fetches pageURL once and returns its fact sheet, or nil when the page
// could not be fetched or answered with a non-2xx status.
func (a *Analyzer) Analyze(ctx context.Context, pageURL, siteOrigin string) *model.PageAnalysis {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	p, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		slog.Debug("failed to fetch page.", slog.String("url", pageURL), slog.String("err", err.Error()))
		return nil
	}
	if p.Status/100 != 2 {
		slog.Debug("page returned non-2xx status.", slog.String("url", pageURL), slog.Int("status", p.Status))
		return nil
	}
	pa, err := Parse(pageURL, siteOrigin, p.Body)
	if err != nil {
		slog.Warn("failed to parse page.", slog.String("url", pageURL), slog.String("err", err.Error()))
		return nil
	}
	return pa
}

// Parse builds the fact sheet of an HTML document in a single pass over the parsed tree.
func Parse(pageURL, siteOrigin string, body []byte) (*model.PageAnalysis, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	pageOrigin := resolver.Origin(pageURL)
	if siteOrigin == "" {
		siteOrigin = pageOrigin
	}
	pageHost := ""
	secure := false
	if u, err := url.Parse(pageURL); err == nil {
		pageHost = resolver.StripWWW(u.Hostname())
		secure = strings.EqualFold(u.Scheme, "https")
	}
	resolve := func(ref string) string {
		return resolver.Resolve(strings.TrimSpace(ref), siteOrigin, pageURL)
	}

	pa := &model.PageAnalysis{
		URL:              pageURL,
		Title:            strings.TrimSpace(doc.Find("title").First().Text()),
		H1Texts:          []string{},
		Headings:         []int{},
		ImagesWithoutAlt: []string{},
		EmptyLinks:       []string{},
		MixedContent:     []string{},
		ExternalScripts:  []string{},
		OGTags:           []string{},
		TwitterTags:      []string{},
		Links:            []string{},
		Images:           []string{},
		Size:             len(body),
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		pa.Headings = append(pa.Headings, level)
		if level == 1 {
			pa.H1Count++
			pa.H1Texts = append(pa.H1Texts, strings.Join(strings.Fields(s.Text()), " "))
		}
	})

	seenImages := map[string]bool{}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("alt"); !ok {
			pa.ImagesWithoutAltCount++
			if len(pa.ImagesWithoutAlt) < sampleLimit {
				pa.ImagesWithoutAlt = append(pa.ImagesWithoutAlt, element(s))
			}
		}
		src, _ := s.Attr("src")
		if abs := resolve(src); abs != "" && !seenImages[abs] {
			seenImages[abs] = true
			pa.Images = append(pa.Images, abs)
		}
	})

	seenLinks := map[string]bool{}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if emptyHrefs[strings.ToLower(strings.ReplaceAll(href, " ", ""))] {
			pa.EmptyLinksCount++
			if len(pa.EmptyLinks) < sampleLimit {
				pa.EmptyLinks = append(pa.EmptyLinks, element(s))
			}
			return
		}
		if abs := resolve(href); abs != "" && !seenLinks[abs] {
			seenLinks[abs] = true
			pa.Links = append(pa.Links, abs)
		}
	})

	seenScripts := map[string]bool{}
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		pa.JSFiles++
		src, _ := s.Attr("src")
		abs := resolve(src)
		if abs == "" || seenScripts[abs] {
			return
		}
		seenScripts[abs] = true
		if resolver.Origin(abs) != pageOrigin {
			pa.ExternalScripts = append(pa.ExternalScripts, abs)
		}
	})

	doc.Find("head script[src]").Each(func(_ int, s *goquery.Selection) {
		_, async := s.Attr("async")
		_, deferred := s.Attr("defer")
		if !async && !deferred && !strings.EqualFold(s.AttrOr("type", ""), "module") {
			pa.RenderBlockingScripts++
		}
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		href := s.AttrOr("href", "")
		if hasToken(rel, "stylesheet") {
			pa.CSSFiles++
		}
		if hasToken(rel, "icon") {
			pa.HasFavicon = true
		}
		loadsFont := hasToken(rel, "stylesheet") ||
			(hasToken(rel, "preload") && strings.EqualFold(s.AttrOr("as", ""), "font"))
		if loadsFont && isFont(resolve(href)) {
			pa.WebFonts++
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		pa.WebFonts += strings.Count(strings.ToLower(s.Text()), "@font-face")
	})

	pa.HasLazyLoading = doc.Find(`img[loading="lazy"], iframe[loading="lazy"], [data-src]`).Length() > 0

	if secure {
		seenMixed := map[string]bool{}
		doc.Find("img[src], script[src], iframe[src], video[src], audio[src], source[src], link[href]").
			Each(func(_ int, s *goquery.Selection) {
				ref := s.AttrOr("src", "")
				if goquery.NodeName(s) == "link" {
					ref = s.AttrOr("href", "")
				}
				abs := resolve(ref)
				u, err := url.Parse(abs)
				if abs == "" || err != nil || u.Scheme != "http" || seenMixed[abs] {
					return
				}
				if resolver.StripWWW(u.Hostname()) == pageHost {
					seenMixed[abs] = true
					pa.MixedContent = append(pa.MixedContent, abs)
				}
			})
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(s.AttrOr("name", "")))
		property := strings.ToLower(strings.TrimSpace(s.AttrOr("property", "")))
		switch {
		case name == "description":
			if strings.TrimSpace(s.AttrOr("content", "")) != "" {
				pa.HasMetaDescription = true
			}
		case strings.HasPrefix(property, "og:"):
			pa.OGTags = appendUnique(pa.OGTags, property)
		case strings.HasPrefix(name, "twitter:"):
			pa.TwitterTags = appendUnique(pa.TwitterTags, name)
		case strings.HasPrefix(property, "twitter:"):
			pa.TwitterTags = appendUnique(pa.TwitterTags, property)
		}
	})

	return pa, nil
}

func element(s *goquery.Selection) string {
	html, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	html = strings.Join(strings.Fields(html), " ")
	if len(html) > elementLimit {
		return html[:elementLimit]
	}
	return html
}

func isFont(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return fontHosts[strings.ToLower(u.Hostname())] || fontExtensions[strings.ToLower(path.Ext(u.Path))]
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
