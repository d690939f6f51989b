package model

type CrawlMechanism int

const (
	Curl CrawlMechanism = iota
	HeadlessBrowser
)

func (sm CrawlMechanism) String() string {
	return [...]string{"curl", "headless browser"}[sm]
}

type AuditTask struct {
	URL   string `json:"url"`
	Force bool   `json:"force"`
}

type AuditNotification struct {
	ReportID string `json:"report_id"`
	SiteURL  string `json:"site_url"`
	S3Bucket string `json:"s3_bucket"`
	S3Key    string `json:"s3_key"`
	Overall  int    `json:"overall"`
	Force    bool   `json:"force"`
}
