package model

import "time"

type ResourceType string

const (
	ResourcePage  ResourceType = "page"
	ResourceImage ResourceType = "image"
	ResourceLink  ResourceType = "link"
)

// CrawlResult is one observed liveness outcome.
type CrawlResult struct {
	URL        string       `json:"url"`
	Status     int          `json:"status"`
	Type       ResourceType `json:"type"`
	Source     string       `json:"source,omitempty"`
	IsExternal bool         `json:"isExternal"`
}

// PageAnalysis is the fact sheet of one fetched page.
type PageAnalysis struct {
	URL                   string   `json:"url"`
	Title                 string   `json:"title"`
	H1Count               int      `json:"h1Count"`
	H1Texts               []string `json:"h1Texts"`
	Headings              []int    `json:"headings"`
	ImagesWithoutAltCount int      `json:"imagesWithoutAltCount"`
	ImagesWithoutAlt      []string `json:"imagesWithoutAlt"`
	EmptyLinksCount       int      `json:"emptyLinksCount"`
	EmptyLinks            []string `json:"emptyLinks"`
	JSFiles               int      `json:"jsFiles"`
	CSSFiles              int      `json:"cssFiles"`
	RenderBlockingScripts int      `json:"renderBlockingScripts"`
	WebFonts              int      `json:"webFonts"`
	HasLazyLoading        bool     `json:"hasLazyLoading"`
	MixedContent          []string `json:"mixedContent"`
	ExternalScripts       []string `json:"externalScripts"`
	HasFavicon            bool     `json:"hasFavicon"`
	OGTags                []string `json:"ogTags"`
	TwitterTags           []string `json:"twitterTags"`
	HasMetaDescription    bool     `json:"hasMetaDescription"`
	Size                  int      `json:"size"`

	// Outbound references collected in the same parse, absolute and in document order.
	Links  []string `json:"-"`
	Images []string `json:"-"`
}

type Scores struct {
	Links       int `json:"links"`
	Performance int `json:"performance"`
	HTML        int `json:"html"`
	Config      int `json:"config"`
	Security    int `json:"security"`
	Overall     int `json:"overall"`
}

type ReportErrors struct {
	Pages404         []CrawlResult `json:"pages404"`
	InternalLinks404 []CrawlResult `json:"internalLinks404"`
	BrokenImages     []CrawlResult `json:"brokenImages"`
	ExternalLinks404 []CrawlResult `json:"externalLinks404"`
}

// Total is the number of link errors across all buckets.
func (e ReportErrors) Total() int {
	return len(e.Pages404) + len(e.InternalLinks404) + len(e.BrokenImages) + len(e.ExternalLinks404)
}

// AuditReport is the result of one audit run.
type AuditReport struct {
	ID                string       `json:"id"`
	SiteURL           string       `json:"siteUrl"`
	ScannedAt         time.Time    `json:"scannedAt"`
	TotalPages        int          `json:"totalPages"`
	TotalLinks        int          `json:"totalLinks"`
	TotalImages       int          `json:"totalImages"`
	Errors            ReportErrors `json:"errors"`
	PerformanceIssues []Issue      `json:"performanceIssues"`
	HTMLIssues        []Issue      `json:"htmlIssues"`
	ConfigIssues      []Issue      `json:"configIssues"`
	SecurityIssues    []Issue      `json:"securityIssues"`
	Scores            Scores       `json:"scores"`
}
