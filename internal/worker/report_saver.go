package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IliaW/site-auditor/internal/aws_s3"
	"github.com/IliaW/site-auditor/internal/cache"
	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/persistence"
)

// ReportSaver persists finished audits: report JSON to S3, metadata to the database,
// the recently-audited marker to the cache and a notification for the kafka producer.
type ReportSaver struct {
	S3         aws_s3.BucketClient
	Db         persistence.MetadataStorage
	Cache      cache.CachedClient
	NotifyChan chan<- *model.AuditNotification
	Bucket     string

	mu     sync.RWMutex
	closed bool
}

func (s *ReportSaver) Save(ctx context.Context, report *model.AuditReport, force bool) error {
	slog.Debug("saving report", slog.String("id", report.ID),
		slog.String("url", report.SiteURL),
		slog.Int("total_pages", report.TotalPages),
		slog.Int("overall", report.Scores.Overall),
	)

	s3Key, err := s.S3.WriteReport(ctx, report)
	if err != nil {
		return err
	}
	if err = s.Db.Save(ctx, report, s3Key); err != nil {
		return err
	}

	notification := &model.AuditNotification{
		ReportID: report.ID,
		SiteURL:  report.SiteURL,
		S3Bucket: s.Bucket,
		S3Key:    s3Key,
		Overall:  report.Scores.Overall,
		Force:    force,
	}
	s.Cache.MarkAudited(report.SiteURL, notification)
	s.notify(notification)

	return nil
}

func (s *ReportSaver) notify(n *model.AuditNotification) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.NotifyChan == nil {
		return
	}
	if s.closed {
		slog.Warn("notifications are closed. report saved without notification.", slog.String("id", n.ReportID),
			slog.String("url", n.SiteURL))
		return
	}
	s.NotifyChan <- n
}

// Close closes NotifyChan once. Saves after Close still store the report but send no notification.
func (s *ReportSaver) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.NotifyChan != nil {
		close(s.NotifyChan)
	}
}
