package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/IliaW/site-auditor/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	KafkaConsumerMetrics *KafkaConsumerMetrics
	KafkaProducerMetrics *KafkaProducerMetrics
	AppMetrics           *AppMetrics
	AuditMetrics         *AuditMetrics
	Close                func()
}

type KafkaConsumerMetrics struct {
	SuccessfullyReadMsgCnt func(count int64)
	FailedReadMsgCnt       func(count int64)
}

type KafkaProducerMetrics struct {
	SuccessfullySendMsgCnt func(count int64)
	FailedSendMsgCnt       func(count int64)
}

type AppMetrics struct {
	SuccessfullyProcessedMsgCnt func(count int64)
	FailedProcessedMsgCounter   func(count int64)
	RecentlyAuditedCounter      func(count int64)
}

type AuditMetrics struct {
	AuditStartedCnt   func(count int64)
	AuditCompletedCnt func(count int64)
	AuditFailedCnt    func(count int64)
	PagesAnalyzedCnt  func(count int64)
	LivenessChecksCnt func(count int64)
}

func nop(int64) {}

// NopAuditMetrics returns audit metrics that record nothing.
func NopAuditMetrics() *AuditMetrics {
	return &AuditMetrics{
		AuditStartedCnt:   nop,
		AuditCompletedCnt: nop,
		AuditFailedCnt:    nop,
		PagesAnalyzedCnt:  nop,
		LivenessChecksCnt: nop,
	}
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	counter := func(name, description, unit string) func(count int64) {
		c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
		if err != nil {
			slog.Error("failed to create telemetry counter.", slog.String("name", name),
				slog.String("err", err.Error()))
			os.Exit(1)
		}
		return func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				c.Add(ctx, count)
			}
		}
	}

	metricsProvider.KafkaConsumerMetrics = &KafkaConsumerMetrics{
		SuccessfullyReadMsgCnt: counter("site-auditor.kafka.read.success",
			"The number of audit tasks that the kafka consumer successfully read", "{messages}"),
		FailedReadMsgCnt: counter("site-auditor.kafka.read.fail",
			"The number of audit tasks that the kafka consumer could not read", "{messages}"),
	}
	metricsProvider.KafkaProducerMetrics = &KafkaProducerMetrics{
		SuccessfullySendMsgCnt: counter("site-auditor.kafka.send.success",
			"The number of report notifications that the kafka producer sent", "{messages}"),
		FailedSendMsgCnt: counter("site-auditor.kafka.send.fail",
			"The number of report notifications that the kafka producer could not send", "{messages}"),
	}
	metricsProvider.AppMetrics = &AppMetrics{
		SuccessfullyProcessedMsgCnt: counter("site-auditor.messages.success",
			"The number of audit tasks that the worker completed", "{messages}"),
		FailedProcessedMsgCounter: counter("site-auditor.messages.fail",
			"The number of audit tasks that the worker could not complete. Send to DLQ.", "{messages}"),
		RecentlyAuditedCounter: counter("site-auditor.messages.recently-audited",
			"The number of audit tasks skipped because the site was audited recently", "{messages}"),
	}
	metricsProvider.AuditMetrics = &AuditMetrics{
		AuditStartedCnt:   counter("site-auditor.audit.started", "The number of audit runs started", "{audits}"),
		AuditCompletedCnt: counter("site-auditor.audit.completed", "The number of audit runs completed", "{audits}"),
		AuditFailedCnt: counter("site-auditor.audit.failed",
			"The number of audit runs that ended with an error event", "{audits}"),
		PagesAnalyzedCnt:  counter("site-auditor.audit.pages", "The number of pages analyzed", "{pages}"),
		LivenessChecksCnt: counter("site-auditor.audit.checks", "The number of liveness checks", "{checks}"),
	}

	// initialize metrics in DataDog for setup UI
	if cfg.TelemetrySettings.Enabled {
		metricsProvider.KafkaProducerMetrics.SuccessfullySendMsgCnt(1)
		metricsProvider.KafkaProducerMetrics.FailedSendMsgCnt(1)
		metricsProvider.KafkaConsumerMetrics.SuccessfullyReadMsgCnt(1)
		metricsProvider.KafkaConsumerMetrics.FailedReadMsgCnt(1)
		metricsProvider.AppMetrics.SuccessfullyProcessedMsgCnt(1)
		metricsProvider.AppMetrics.FailedProcessedMsgCounter(1)
		metricsProvider.AppMetrics.RecentlyAuditedCounter(1)
	}

	return metricsProvider
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
			semconv.ServiceVersion(cfg.Version),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
}
