package auditor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/IliaW/site-auditor/config"
	"github.com/IliaW/site-auditor/internal/analyzer"
	"github.com/IliaW/site-auditor/internal/issues"
	"github.com/IliaW/site-auditor/internal/liveness"
	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/probe"
	"github.com/IliaW/site-auditor/internal/telemetry"
)

// errStopped signals that the event consumer no longer wants events.
var errStopped = errors.New("event consumer stopped")

type Auditor struct {
	cfg      *config.AuditorConfig
	checker  *liveness.Checker
	prober   *probe.Prober
	analyzer *analyzer.Analyzer
	trusted  []string
	metrics  *telemetry.AuditMetrics
	now      func() time.Time
}

// New builds an auditor. transport is shared by every outbound request; nil means http.DefaultTransport.
func New(cfg *config.AuditorConfig, transport http.RoundTripper, metrics *telemetry.AuditMetrics) (*Auditor, error) {
	cfg = cfg.Defaults()
	fetcher, err := analyzer.NewFetcher(model.CrawlMechanism(cfg.CrawlMechanism), transport, cfg.UserAgent)
	if err != nil {
		return nil, err
	}
	return NewWithFetcher(cfg, transport, fetcher, metrics), nil
}

func NewWithFetcher(cfg *config.AuditorConfig, transport http.RoundTripper, fetcher analyzer.Fetcher,
	metrics *telemetry.AuditMetrics) *Auditor {
	cfg = cfg.Defaults()
	if metrics == nil {
		metrics = telemetry.NopAuditMetrics()
	}
	trusted := cfg.TrustedDomains
	if len(trusted) == 0 {
		trusted = issues.DefaultTrustedDomains
	}
	return &Auditor{
		cfg: cfg,
		checker: liveness.NewChecker(liveness.Config{
			HeadTimeout: cfg.HeadTimeout,
			GetTimeout:  cfg.GetTimeout,
			Delay:       cfg.CheckDelay,
			UserAgent:   cfg.UserAgent,
			Transport:   transport,
		}),
		prober: probe.NewProber(probe.Config{
			Timeout:   cfg.ProbeTimeout,
			UserAgent: cfg.UserAgent,
			Transport: transport,
		}),
		analyzer: analyzer.New(fetcher, cfg.PageTimeout),
		trusted:  trusted,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Events returns a lazy sequence of progress events for one audit of siteURL.
// Every iteration starts a fresh run; breaking out of the loop stops the run.
func (a *Auditor) Events(ctx context.Context, siteURL string) iter.Seq[model.ProgressEvent] {
	return func(yield func(model.ProgressEvent) bool) {
		a.Run(ctx, siteURL, yield)
	}
}

// Audit drains one run and returns its report or the message of the terminal error event.
func (a *Auditor) Audit(ctx context.Context, siteURL string) (*model.AuditReport, error) {
	for ev := range a.Events(ctx, siteURL) {
		switch ev.Phase {
		case model.PhaseComplete:
			return ev.Report, nil
		case model.PhaseError:
			return nil, errors.New(ev.Message)
		}
	}
	return nil, errors.New("audit ended without a terminal event")
}

// Run audits siteURL and passes every progress event to emit. The last event is either
// complete with the report or error with a message. Run returns early once emit returns false.
func (a *Auditor) Run(ctx context.Context, siteURL string, emit func(model.ProgressEvent) bool) {
	a.metrics.AuditStartedCnt(1)
	slog.Info("starting audit.", slog.String("url", siteURL))
	start := time.Now()

	r := &run{Auditor: a, ctx: ctx, siteURL: siteURL, emit: emit}
	report, err := r.execute()
	if errors.Is(err, errStopped) {
		slog.Info("audit stopped by consumer.", slog.String("url", siteURL))
		a.metrics.AuditFailedCnt(1)
		return
	}
	if err != nil {
		slog.Error("audit failed.", slog.String("url", siteURL), slog.String("err", err.Error()))
		a.metrics.AuditFailedCnt(1)
		emit(model.ProgressEvent{Phase: model.PhaseError, Message: err.Error()})
		return
	}
	a.metrics.AuditCompletedCnt(1)
	slog.Info("audit completed.", slog.String("url", siteURL), slog.Int("overall", report.Scores.Overall),
		slog.Int("pages", report.TotalPages), slog.Duration("took", time.Since(start)))
	emit(model.ProgressEvent{
		Phase:   model.PhaseComplete,
		Current: report.TotalPages,
		Total:   report.TotalPages,
		Message: "Audit complete",
		Report:  report,
	})
}

func validateSiteURL(siteURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil {
		return "", fmt.Errorf("invalid site url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid site url: %q", siteURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
