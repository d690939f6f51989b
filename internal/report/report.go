package report

import (
	"fmt"
	"math"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/resolver"
)

// collapseRatio is the share of scanned pages an issue must exceed to be folded into one entry.
const collapseRatio = 0.7

type penalty struct {
	errorWeight   int
	warningWeight int
}

var penalties = map[model.Category]penalty{
	model.CategoryPerformance: {errorWeight: 10, warningWeight: 3},
	model.CategoryHTML:        {errorWeight: 10, warningWeight: 3},
	model.CategoryConfig:      {errorWeight: 15, warningWeight: 5},
	model.CategorySecurity:    {errorWeight: 20, warningWeight: 5},
}

const linkErrorWeight = 5

// Score computes the category scores and their rounded mean from an assembled report.
func Score(r *model.AuditReport) model.Scores {
	s := model.Scores{
		Links:       clamp(100 - r.Errors.Total()*linkErrorWeight),
		Performance: categoryScore(model.CategoryPerformance, r.PerformanceIssues),
		HTML:        categoryScore(model.CategoryHTML, r.HTMLIssues),
		Config:      categoryScore(model.CategoryConfig, r.ConfigIssues),
		Security:    categoryScore(model.CategorySecurity, r.SecurityIssues),
	}
	sum := s.Links + s.Performance + s.HTML + s.Config + s.Security
	s.Overall = int(math.Round(float64(sum) / 5))
	return s
}

func categoryScore(c model.Category, issues []model.Issue) int {
	p := penalties[c]
	score := 100
	for _, i := range issues {
		switch i.Severity {
		case model.SeverityError:
			score -= p.errorWeight
		case model.SeverityWarning:
			score -= p.warningWeight
		}
	}
	return clamp(score)
}

func clamp(score int) int {
	return max(0, min(100, score))
}

type signature struct {
	issueType model.IssueType
	details   string
}

// Deduplicate drops repeated URLs within each (type, details) group and folds groups that
// appear on more than 70% of the scanned pages into their first entry.
// Group order follows the first occurrence of each signature.
func Deduplicate(issues []model.Issue, totalPages int) []model.Issue {
	groups := map[signature][]model.Issue{}
	seen := map[signature]map[string]bool{}
	var order []signature

	for _, i := range issues {
		sig := signature{issueType: i.Type, details: i.Details}
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
			seen[sig] = map[string]bool{}
		}
		key := resolver.Normalize(i.URL)
		if seen[sig][key] {
			continue
		}
		seen[sig][key] = true
		groups[sig] = append(groups[sig], i)
	}

	out := make([]model.Issue, 0, len(issues))
	for _, sig := range order {
		group := groups[sig]
		if totalPages > 2 && float64(len(group)) > collapseRatio*float64(totalPages) {
			first := group[0]
			first.Details = fmt.Sprintf("%s (found on %d pages)", first.Details, len(group))
			out = append(out, first)
			continue
		}
		out = append(out, group...)
	}
	return out
}
