package model

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryHTML        Category = "html"
	CategoryConfig      Category = "config"
	CategorySecurity    Category = "security"
)

type IssueType string

// Performance issues.
const (
	IssueExcessiveJS           IssueType = "excessive_js"
	IssueExcessiveCSS          IssueType = "excessive_css"
	IssueRenderBlockingScripts IssueType = "render_blocking_scripts"
	IssueExcessiveFonts        IssueType = "excessive_fonts"
	IssueNoLazyLoading         IssueType = "no_lazy_loading"
	IssueLargePageSize         IssueType = "large_page_size"
)

// HTML issues.
const (
	IssueMissingH1              IssueType = "missing_h1"
	IssueDuplicateH1            IssueType = "duplicate_h1"
	IssueHeadingHierarchy       IssueType = "heading_hierarchy"
	IssueMissingAlt             IssueType = "missing_alt"
	IssueEmptyLink              IssueType = "empty_link"
	IssueMissingMetaDescription IssueType = "missing_meta_description"
	IssueMissingTitle           IssueType = "missing_title"
)

// Config issues.
const (
	IssueMissingRobots       IssueType = "missing_robots"
	IssueInvalidRobots       IssueType = "invalid_robots"
	IssueMissingSitemap      IssueType = "missing_sitemap"
	IssueOutdatedSitemap     IssueType = "outdated_sitemap"
	IssueMissingFavicon      IssueType = "missing_favicon"
	IssueMissingOGTags       IssueType = "missing_og_tags"
	IssueMissingTwitterCards IssueType = "missing_twitter_cards"
)

// Security issues.
const (
	IssueMixedContent     IssueType = "mixed_content"
	IssueUntrustedScripts IssueType = "untrusted_scripts"
	IssueNoHTTPSRedirect  IssueType = "no_https_redirect"
)

var issueCategories = map[IssueType]Category{
	IssueExcessiveJS:           CategoryPerformance,
	IssueExcessiveCSS:          CategoryPerformance,
	IssueRenderBlockingScripts: CategoryPerformance,
	IssueExcessiveFonts:        CategoryPerformance,
	IssueNoLazyLoading:         CategoryPerformance,
	IssueLargePageSize:         CategoryPerformance,

	IssueMissingH1:              CategoryHTML,
	IssueDuplicateH1:            CategoryHTML,
	IssueHeadingHierarchy:       CategoryHTML,
	IssueMissingAlt:             CategoryHTML,
	IssueEmptyLink:              CategoryHTML,
	IssueMissingMetaDescription: CategoryHTML,
	IssueMissingTitle:           CategoryHTML,

	IssueMissingRobots:       CategoryConfig,
	IssueInvalidRobots:       CategoryConfig,
	IssueMissingSitemap:      CategoryConfig,
	IssueOutdatedSitemap:     CategoryConfig,
	IssueMissingFavicon:      CategoryConfig,
	IssueMissingOGTags:       CategoryConfig,
	IssueMissingTwitterCards: CategoryConfig,

	IssueMixedContent:     CategorySecurity,
	IssueUntrustedScripts: CategorySecurity,
	IssueNoHTTPSRedirect:  CategorySecurity,
}

// Category returns the category the issue type belongs to and false for unknown types.
func (t IssueType) Category() (Category, bool) {
	c, ok := issueCategories[t]
	return c, ok
}

// Issue is a single finding. URL is empty for site-level issues.
type Issue struct {
	Type     IssueType `json:"type"`
	URL      string    `json:"url,omitempty"`
	Source   string    `json:"source,omitempty"`
	Details  string    `json:"details,omitempty"`
	Severity Severity  `json:"severity"`
	Elements []string  `json:"elements,omitempty"`
}

func NewIssue(t IssueType, severity Severity, url, details string) Issue {
	return Issue{Type: t, Severity: severity, URL: url, Details: details}
}
