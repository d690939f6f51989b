package report

import (
	"fmt"
	"testing"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metaIssues(pages int) []model.Issue {
	issues := make([]model.Issue, 0, pages)
	for i := 0; i < pages; i++ {
		issues = append(issues, model.NewIssue(model.IssueMissingMetaDescription, model.SeverityWarning,
			fmt.Sprintf("https://shop.test/p/%d", i), "Missing meta description"))
	}
	return issues
}

func TestScoreWithoutIssues(t *testing.T) {
	assert.Equal(t, model.Scores{Links: 100, Performance: 100, HTML: 100, Config: 100, Security: 100, Overall: 100},
		Score(&model.AuditReport{}))
}

func TestScoreHTMLErrors(t *testing.T) {
	r := &model.AuditReport{HTMLIssues: []model.Issue{
		model.NewIssue(model.IssueMissingTitle, model.SeverityError, "https://shop.test/a", "Missing or empty <title>"),
		model.NewIssue(model.IssueMissingH1, model.SeverityError, "https://shop.test/b", "Page has no H1 heading"),
	}}
	s := Score(r)
	assert.Equal(t, 80, s.HTML)
	assert.Equal(t, 96, s.Overall)
}

func TestScoreWeightsAndFloor(t *testing.T) {
	r := &model.AuditReport{
		Errors: model.ReportErrors{
			Pages404:         []model.CrawlResult{{URL: "https://shop.test/gone"}},
			BrokenImages:     []model.CrawlResult{{URL: "https://shop.test/x.png"}},
			ExternalLinks404: []model.CrawlResult{{URL: "https://other.test/"}},
		},
		PerformanceIssues: []model.Issue{{Severity: model.SeverityWarning}, {Severity: model.SeverityWarning}},
		ConfigIssues: []model.Issue{
			{Type: model.IssueMissingSitemap, Severity: model.SeverityError},
			{Type: model.IssueMissingRobots, Severity: model.SeverityWarning},
		},
	}
	for i := 0; i < 6; i++ {
		r.SecurityIssues = append(r.SecurityIssues, model.Issue{Severity: model.SeverityError})
	}
	s := Score(r)
	assert.Equal(t, 85, s.Links)
	assert.Equal(t, 94, s.Performance)
	assert.Equal(t, 100, s.HTML)
	assert.Equal(t, 80, s.Config)
	assert.Equal(t, 0, s.Security)
	assert.Equal(t, 72, s.Overall)
}

func TestDeduplicateCollapsesAboveThreshold(t *testing.T) {
	out := Deduplicate(metaIssues(8), 10)
	require.Len(t, out, 1)
	assert.Equal(t, "Missing meta description (found on 8 pages)", out[0].Details)
	assert.Equal(t, "https://shop.test/p/0", out[0].URL)
}

func TestDeduplicateKeepsBelowThreshold(t *testing.T) {
	out := Deduplicate(metaIssues(5), 10)
	assert.Len(t, out, 5)
	assert.Equal(t, "Missing meta description", out[4].Details)

	assert.Len(t, Deduplicate(metaIssues(7), 10), 7)
}

func TestDeduplicateNeedsMoreThanTwoPages(t *testing.T) {
	assert.Len(t, Deduplicate(metaIssues(2), 2), 2)
}

func TestDeduplicateDropsEquivalentURLs(t *testing.T) {
	issues := []model.Issue{
		model.NewIssue(model.IssueMissingH1, model.SeverityError, "https://shop.test/a/", "Page has no H1 heading"),
		model.NewIssue(model.IssueMissingH1, model.SeverityError, "https://SHOP.test:443/a", "Page has no H1 heading"),
		model.NewIssue(model.IssueMissingTitle, model.SeverityError, "https://shop.test/a", "Missing or empty <title>"),
		model.NewIssue(model.IssueMissingH1, model.SeverityError, "https://shop.test/b", "Page has no H1 heading"),
		model.NewIssue(model.IssueMissingSitemap, model.SeverityError, "", "No sitemap found"),
	}
	out := Deduplicate(issues, 10)
	require.Len(t, out, 4)
	assert.Equal(t, model.IssueMissingH1, out[0].Type)
	assert.Equal(t, "https://shop.test/a/", out[0].URL)
	assert.Equal(t, "https://shop.test/b", out[1].URL)
	assert.Equal(t, model.IssueMissingTitle, out[2].Type)
	assert.Equal(t, model.IssueMissingSitemap, out[3].Type)
}

func TestDeduplicateEmpty(t *testing.T) {
	out := Deduplicate(nil, 0)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
