package model

type Phase string

const (
	PhaseConfig   Phase = "config"
	PhaseSitemap  Phase = "sitemap"
	PhaseCrawling Phase = "crawling"
	PhaseChecking Phase = "checking"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

// Terminal reports whether no further events follow this phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

type ProgressEvent struct {
	Phase      Phase        `json:"phase"`
	Current    int          `json:"current,omitempty"`
	Total      int          `json:"total,omitempty"`
	CurrentURL string       `json:"currentUrl,omitempty"`
	Message    string       `json:"message,omitempty"`
	Report     *AuditReport `json:"report,omitempty"`
}
