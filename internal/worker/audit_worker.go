package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/site-auditor/internal/cache"
	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/telemetry"
)

type Auditor interface {
	Audit(ctx context.Context, siteURL string) (*model.AuditReport, error)
}

type Saver interface {
	Save(ctx context.Context, report *model.AuditReport, force bool) error
}

type DeadLetterQueue interface {
	SendUrlToDLQ(payload string, cause error)
}

type AuditWorker struct {
	TaskChan      <-chan *model.AuditTask
	Auditor       Auditor
	Saver         Saver
	Cache         cache.CachedClient
	KafkaDLQ      DeadLetterQueue
	Metrics       *telemetry.AppMetrics
	Wg            *sync.WaitGroup
	RetryAttempts int
	RetryDelay    time.Duration
}

// Run audits every task from TaskChan until the channel is closed.
func (w *AuditWorker) Run() {
	defer w.Wg.Done()
	slog.Debug("starting audit worker.")

	for task := range w.TaskChan {
		w.process(context.Background(), task)
	}
}

// process expects a task already validated by the consumer.
func (w *AuditWorker) process(ctx context.Context, task *model.AuditTask) {
	siteURL := task.URL
	if !task.Force && w.Cache.RecentlyAudited(siteURL) {
		slog.Debug("site was audited recently. skipping.", slog.String("url", siteURL))
		w.Metrics.RecentlyAuditedCounter(1)
		return
	}

	report, err := w.Auditor.Audit(ctx, siteURL)
	// Retries with exponential backoff
	for retry, delay := w.RetryAttempts, w.RetryDelay; err != nil && retry > 0; retry, delay = retry-1, delay*2 {
		slog.Warn("audit failed. retrying...", slog.String("url", siteURL), slog.String("err", err.Error()),
			slog.Int("attempts left", retry))
		select {
		case <-ctx.Done():
			w.fail(siteURL, ctx.Err())
			return
		case <-time.After(delay):
		}
		report, err = w.Auditor.Audit(ctx, siteURL)
	}
	if err != nil {
		slog.Error("audit failed.", slog.String("url", siteURL), slog.String("err", err.Error()))
		w.fail(siteURL, err)
		return
	}

	if err = w.Saver.Save(ctx, report, task.Force); err != nil {
		slog.Error("failed to save report.", slog.String("url", siteURL), slog.String("err", err.Error()))
		w.fail(siteURL, err)
		return
	}
	w.Metrics.SuccessfullyProcessedMsgCnt(1)
}

func (w *AuditWorker) fail(payload string, err error) {
	w.KafkaDLQ.SendUrlToDLQ(payload, err)
	w.Metrics.FailedProcessedMsgCounter(1)
}
