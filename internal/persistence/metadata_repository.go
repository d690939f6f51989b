package persistence

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/IliaW/site-auditor/internal"
	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/resolver"
)

type MetadataStorage interface {
	Save(ctx context.Context, report *model.AuditReport, s3Key string) error
}

type MetadataRepository struct {
	db *sql.DB
}

func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Save upserts the latest audit of a site. One row per site, keyed by the hash of its normalized URL.
func (mr *MetadataRepository) Save(ctx context.Context, report *model.AuditReport, s3Key string) error {
	_, err := mr.db.ExecContext(ctx, `INSERT INTO site_auditor.audit_metadata
    (site_hash, site_url, report_id, scanned_at, total_pages, total_links, total_images, link_errors,
     score_links, score_performance, score_html, score_config, score_security, score_overall, s3_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (site_hash) DO UPDATE
	SET site_url = EXCLUDED.site_url,
	    report_id = EXCLUDED.report_id,
	    scanned_at = EXCLUDED.scanned_at,
	    total_pages = EXCLUDED.total_pages,
	    total_links = EXCLUDED.total_links,
	    total_images = EXCLUDED.total_images,
	    link_errors = EXCLUDED.link_errors,
	    score_links = EXCLUDED.score_links,
	    score_performance = EXCLUDED.score_performance,
	    score_html = EXCLUDED.score_html,
	    score_config = EXCLUDED.score_config,
	    score_security = EXCLUDED.score_security,
	    score_overall = EXCLUDED.score_overall,
	    s3_key = EXCLUDED.s3_key;`,
		internal.HashURL(resolver.Normalize(report.SiteURL)),
		report.SiteURL,
		report.ID,
		report.ScannedAt.UTC(),
		report.TotalPages,
		report.TotalLinks,
		report.TotalImages,
		report.Errors.Total(),
		report.Scores.Links,
		report.Scores.Performance,
		report.Scores.HTML,
		report.Scores.Config,
		report.Scores.Security,
		report.Scores.Overall,
		s3Key)
	if err != nil {
		slog.Error("failed to save audit metadata to database.", slog.String("err", err.Error()))
		return err
	}
	slog.Debug("audit metadata saved to db.", slog.String("url", report.SiteURL))
	return nil
}
