package issues

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/IliaW/site-auditor/internal/model"
	"golang.org/x/net/publicsuffix"
)

const (
	maxJSFiles        = 10
	maxCSSFiles       = 5
	maxWebFonts       = 3
	maxAltlessImages  = 5
	maxPageSize       = 500000
	minMissingOG      = 3
	minMissingTwitter = 2
)

var (
	requiredOGTags      = []string{"og:title", "og:description", "og:image", "og:url"}
	requiredTwitterTags = []string{"twitter:card", "twitter:title", "twitter:description"}
)

// DefaultTrustedDomains are registrable domains whose scripts are not reported as untrusted.
var DefaultTrustedDomains = []string{
	"googleapis.com",
	"gstatic.com",
	"google-analytics.com",
	"googletagmanager.com",
	"google.com",
	"cloudflare.com",
	"cloudflareinsights.com",
	"jsdelivr.net",
	"unpkg.com",
	"jquery.com",
	"bootstrapcdn.com",
	"facebook.net",
	"doubleclick.net",
	"hotjar.com",
	"shopify.com",
	"shopifycdn.com",
	"shopifysvc.com",
}

func Performance(pa *model.PageAnalysis) []model.Issue {
	var issues []model.Issue
	add := func(t model.IssueType, details string) {
		issues = append(issues, model.NewIssue(t, model.SeverityWarning, pa.URL, details))
	}
	if pa.JSFiles > maxJSFiles {
		add(model.IssueExcessiveJS, fmt.Sprintf("%d JavaScript files loaded (recommended: %d or fewer)", pa.JSFiles, maxJSFiles))
	}
	if pa.CSSFiles > maxCSSFiles {
		add(model.IssueExcessiveCSS, fmt.Sprintf("%d CSS files loaded (recommended: %d or fewer)", pa.CSSFiles, maxCSSFiles))
	}
	if pa.RenderBlockingScripts > 0 {
		add(model.IssueRenderBlockingScripts,
			fmt.Sprintf("%d render-blocking scripts in <head> without async or defer", pa.RenderBlockingScripts))
	}
	if pa.WebFonts > maxWebFonts {
		add(model.IssueExcessiveFonts, fmt.Sprintf("%d web font references (recommended: %d or fewer)", pa.WebFonts, maxWebFonts))
	}
	// Triggered by the alt-less image count, not by the number of images overall.
	if !pa.HasLazyLoading && pa.ImagesWithoutAltCount > maxAltlessImages {
		add(model.IssueNoLazyLoading, "Images are not lazy-loaded")
	}
	if pa.Size > maxPageSize {
		add(model.IssueLargePageSize, fmt.Sprintf("Page size is %d KB (recommended: under %d KB)", pa.Size/1000, maxPageSize/1000))
	}
	return issues
}

func HTML(pa *model.PageAnalysis) []model.Issue {
	var issues []model.Issue
	switch {
	case pa.H1Count == 0:
		issues = append(issues, model.NewIssue(model.IssueMissingH1, model.SeverityError, pa.URL, "Page has no H1 heading"))
	case pa.H1Count > 1:
		issues = append(issues, model.NewIssue(model.IssueDuplicateH1, model.SeverityWarning, pa.URL,
			fmt.Sprintf("Page has %d H1 headings: %s", pa.H1Count, strings.Join(pa.H1Texts, " | "))))
	}
	if from, to, ok := headingSkip(pa.Headings); ok {
		issues = append(issues, model.NewIssue(model.IssueHeadingHierarchy, model.SeverityWarning, pa.URL,
			fmt.Sprintf("Heading level skipped: h%d followed by h%d", from, to)))
	}
	if pa.ImagesWithoutAltCount > 0 {
		i := model.NewIssue(model.IssueMissingAlt, model.SeverityWarning, pa.URL,
			fmt.Sprintf("%d images without alt attribute", pa.ImagesWithoutAltCount))
		i.Elements = pa.ImagesWithoutAlt
		issues = append(issues, i)
	}
	if pa.EmptyLinksCount > 0 {
		i := model.NewIssue(model.IssueEmptyLink, model.SeverityWarning, pa.URL,
			fmt.Sprintf("%d links with empty or placeholder href", pa.EmptyLinksCount))
		i.Elements = pa.EmptyLinks
		issues = append(issues, i)
	}
	if !pa.HasMetaDescription {
		issues = append(issues, model.NewIssue(model.IssueMissingMetaDescription, model.SeverityWarning, pa.URL,
			"Missing meta description"))
	}
	if strings.TrimSpace(pa.Title) == "" {
		issues = append(issues, model.NewIssue(model.IssueMissingTitle, model.SeverityError, pa.URL,
			"Missing or empty <title>"))
	}
	return issues
}

// headingSkip returns the first pair of consecutive headings where the level grows by more than one.
func headingSkip(levels []int) (int, int, bool) {
	for i := 1; i < len(levels); i++ {
		if levels[i] > levels[i-1]+1 {
			return levels[i-1], levels[i], true
		}
	}
	return 0, 0, false
}

// Config reports social meta tag gaps. Only the homepage is checked.
func Config(pa *model.PageAnalysis, isHomepage bool) []model.Issue {
	if !isHomepage {
		return nil
	}
	var issues []model.Issue
	if missing := missingTags(requiredOGTags, pa.OGTags); len(missing) >= minMissingOG {
		issues = append(issues, model.NewIssue(model.IssueMissingOGTags, model.SeverityWarning, pa.URL,
			"Missing Open Graph tags: "+strings.Join(missing, ", ")))
	}
	if missing := missingTags(requiredTwitterTags, pa.TwitterTags); len(missing) >= minMissingTwitter {
		issues = append(issues, model.NewIssue(model.IssueMissingTwitterCards, model.SeverityWarning, pa.URL,
			"Missing Twitter Card tags: "+strings.Join(missing, ", ")))
	}
	return issues
}

func missingTags(required, present []string) []string {
	have := make(map[string]bool, len(present))
	for _, p := range present {
		have[strings.ToLower(p)] = true
	}
	var missing []string
	for _, r := range required {
		if !have[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

// Security reports one error per mixed-content resource and one warning per script
// served from a domain outside trusted.
func Security(pa *model.PageAnalysis, trusted []string) []model.Issue {
	var issues []model.Issue
	for _, res := range pa.MixedContent {
		i := model.NewIssue(model.IssueMixedContent, model.SeverityError, pa.URL,
			"Insecure resource loaded over HTTP: "+res)
		i.Source = res
		issues = append(issues, i)
	}
	for _, script := range pa.ExternalScripts {
		if IsTrusted(script, trusted) {
			continue
		}
		i := model.NewIssue(model.IssueUntrustedScripts, model.SeverityWarning, pa.URL,
			"Script loaded from untrusted domain: "+hostOf(script))
		i.Source = script
		issues = append(issues, i)
	}
	return issues
}

// IsTrusted matches the script's registrable domain (or its host, when the public suffix
// lookup fails) against the trusted list.
func IsTrusted(scriptURL string, trusted []string) bool {
	host := hostOf(scriptURL)
	if host == "" {
		return false
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		domain = host
	}
	for _, t := range trusted {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if domain == t || host == t || strings.HasSuffix(host, "."+t) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
