package auditor

import (
	"context"
	"fmt"
	"slices"

	"github.com/IliaW/site-auditor/internal/issues"
	"github.com/IliaW/site-auditor/internal/liveness"
	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/report"
	"github.com/IliaW/site-auditor/internal/resolver"
	"github.com/google/uuid"
)

// reference is a link or image URL and the first page it was seen on.
type reference struct {
	url    string
	source string
}

// run holds the working state of one audit. Only the goroutine executing the run touches it.
type run struct {
	*Auditor
	ctx     context.Context
	siteURL string
	origin  string
	emit    func(model.ProgressEvent) bool

	frontier   []reference
	queued     map[string]bool
	links      []reference
	linkSeen   map[string]bool
	images     []reference
	imageSeen  map[string]bool
	totalPages int

	linkErrors  model.ReportErrors
	performance []model.Issue
	html        []model.Issue
	configs     []model.Issue
	security    []model.Issue
}

func (r *run) execute() (rep *model.AuditReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			rep, err = nil, fmt.Errorf("audit aborted: %v", p)
		}
	}()

	r.origin, err = validateSiteURL(r.siteURL)
	if err != nil {
		return nil, err
	}
	r.queued = map[string]bool{}
	r.linkSeen = map[string]bool{}
	r.imageSeen = map[string]bool{}
	r.linkErrors = model.ReportErrors{
		Pages404:         []model.CrawlResult{},
		InternalLinks404: []model.CrawlResult{},
		BrokenImages:     []model.CrawlResult{},
		ExternalLinks404: []model.CrawlResult{},
	}

	steps := []func() error{r.configPhase, r.crawlPhase, r.checkPhase}
	for _, step := range steps {
		if err := r.ctx.Err(); err != nil {
			return nil, fmt.Errorf("audit cancelled: %w", err)
		}
		if err := step(); err != nil {
			return nil, err
		}
	}
	return r.assemble(), nil
}

func (r *run) send(ev model.ProgressEvent) error {
	if !r.emit(ev) {
		return errStopped
	}
	return nil
}

// configPhase runs the site-level probes and seeds the frontier from the sitemap.
func (r *run) configPhase() error {
	if err := r.send(model.ProgressEvent{Phase: model.PhaseConfig, CurrentURL: r.origin,
		Message: "Checking robots.txt, sitemap, favicon and HTTPS redirect"}); err != nil {
		return err
	}
	probes := r.prober.RunAll(r.ctx, r.origin)
	r.configs = append(r.configs, probes.ConfigIssues...)
	r.security = append(r.security, probes.SecurityIssues...)

	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("audit cancelled: %w", err)
	}
	if err := r.send(model.ProgressEvent{Phase: model.PhaseSitemap, CurrentURL: r.origin,
		Message: "Discovering pages"}); err != nil {
		return err
	}

	r.enqueue(r.siteURL, "")
	for _, u := range probes.SitemapURLs {
		if !resolver.SameOrigin(u, r.origin) {
			continue
		}
		r.enqueue(u, "")
	}

	msg := "No sitemap found, crawling from the homepage"
	if len(probes.SitemapURLs) > 0 {
		msg = fmt.Sprintf("Found %d URLs in sitemap", len(probes.SitemapURLs))
	}
	return r.send(model.ProgressEvent{Phase: model.PhaseSitemap, Current: len(r.frontier),
		Total: len(r.frontier), Message: msg})
}

// enqueue adds a page to the frontier unless it is full or the page is already queued.
func (r *run) enqueue(pageURL, source string) bool {
	key := resolver.Normalize(pageURL)
	if len(r.frontier) >= r.cfg.MaxPages || r.queued[key] {
		return false
	}
	r.queued[key] = true
	r.frontier = append(r.frontier, reference{url: pageURL, source: source})
	return true
}

func (r *run) crawlPhase() error {
	home := resolver.Normalize(r.siteURL)
	for i := 0; i < len(r.frontier); i++ {
		if err := r.ctx.Err(); err != nil {
			return fmt.Errorf("audit cancelled: %w", err)
		}
		page := r.frontier[i]
		if err := r.send(model.ProgressEvent{Phase: model.PhaseCrawling, Current: i + 1,
			Total: len(r.frontier), CurrentURL: page.url}); err != nil {
			return err
		}

		res := r.checker.Check(r.ctx, page.url)
		r.metrics.LivenessChecksCnt(1)
		if liveness.IsBroken(res.Status) {
			r.linkErrors.Pages404 = append(r.linkErrors.Pages404, model.CrawlResult{
				URL: page.url, Status: res.Status, Type: model.ResourcePage, Source: page.source,
			})
			continue
		}
		r.totalPages++

		pa := r.analyzer.Analyze(r.ctx, page.url, r.origin)
		if pa == nil {
			continue
		}
		r.metrics.PagesAnalyzedCnt(1)
		r.performance = append(r.performance, issues.Performance(pa)...)
		r.html = append(r.html, issues.HTML(pa)...)
		r.configs = append(r.configs, issues.Config(pa, resolver.Normalize(page.url) == home)...)
		r.security = append(r.security, issues.Security(pa, r.trusted)...)

		for _, link := range pa.Links {
			key := resolver.Normalize(link)
			if !r.linkSeen[key] {
				r.linkSeen[key] = true
				r.links = append(r.links, reference{url: link, source: page.url})
			}
			if resolver.SameOrigin(link, r.origin) && !resolver.IsAsset(link) {
				r.enqueue(link, page.url)
			}
		}
		for _, img := range pa.Images {
			key := resolver.Normalize(img)
			if !r.imageSeen[key] {
				r.imageSeen[key] = true
				r.images = append(r.images, reference{url: img, source: page.url})
			}
		}
	}
	return nil
}

type checkTarget struct {
	ref        reference
	kind       model.ResourceType
	isExternal bool
}

func (r *run) checkTargets() []checkTarget {
	var internal, external []checkTarget
	for _, l := range r.links {
		if resolver.IsExternal(l.url, r.origin) {
			if len(external) < r.cfg.MaxExternalLinks {
				external = append(external, checkTarget{ref: l, kind: model.ResourceLink, isExternal: true})
			}
			continue
		}
		if !r.queued[resolver.Normalize(l.url)] {
			internal = append(internal, checkTarget{ref: l, kind: model.ResourceLink})
		}
	}
	targets := append(internal, external...)
	for i, img := range r.images {
		if i >= r.cfg.MaxImages {
			break
		}
		targets = append(targets, checkTarget{ref: img, kind: model.ResourceImage,
			isExternal: resolver.IsExternal(img.url, r.origin)})
	}
	return targets
}

func (r *run) checkPhase() error {
	targets := r.checkTargets()
	if err := r.send(model.ProgressEvent{Phase: model.PhaseChecking, Total: len(targets),
		Message: fmt.Sprintf("Checking %d links and images", len(targets))}); err != nil {
		return err
	}

	jobs := make([]liveness.Target, len(targets))
	for i, t := range targets {
		jobs[i] = liveness.Target{URL: t.ref.url, Index: i}
	}
	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	type broken struct {
		index  int
		result model.CrawlResult
	}
	var found []broken
	done := 0
	for o := range r.checker.CheckAll(ctx, jobs, r.cfg.Concurrency) {
		done++
		r.metrics.LivenessChecksCnt(1)
		if err := r.send(model.ProgressEvent{Phase: model.PhaseChecking, Current: done, Total: len(targets),
			CurrentURL: o.Target.URL}); err != nil {
			return err
		}
		if !liveness.IsBroken(o.Result.Status) {
			continue
		}
		t := targets[o.Target.Index]
		found = append(found, broken{index: o.Target.Index, result: model.CrawlResult{
			URL: t.ref.url, Status: o.Result.Status, Type: t.kind, Source: t.ref.source, IsExternal: t.isExternal,
		}})
	}
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("audit cancelled: %w", err)
	}

	slices.SortFunc(found, func(a, b broken) int { return a.index - b.index })
	for _, b := range found {
		switch {
		case b.result.Type == model.ResourceImage:
			r.linkErrors.BrokenImages = append(r.linkErrors.BrokenImages, b.result)
		case b.result.IsExternal:
			r.linkErrors.ExternalLinks404 = append(r.linkErrors.ExternalLinks404, b.result)
		default:
			r.linkErrors.InternalLinks404 = append(r.linkErrors.InternalLinks404, b.result)
		}
	}
	return nil
}

func (r *run) assemble() *model.AuditReport {
	rep := &model.AuditReport{
		ID:                uuid.NewString(),
		SiteURL:           r.siteURL,
		ScannedAt:         r.now().UTC(),
		TotalPages:        r.totalPages,
		TotalLinks:        len(r.links),
		TotalImages:       len(r.images),
		Errors:            r.linkErrors,
		PerformanceIssues: report.Deduplicate(r.performance, r.totalPages),
		HTMLIssues:        report.Deduplicate(r.html, r.totalPages),
		ConfigIssues:      report.Deduplicate(r.configs, r.totalPages),
		SecurityIssues:    report.Deduplicate(r.security, r.totalPages),
	}
	rep.Scores = report.Score(rep)
	return rep
}
