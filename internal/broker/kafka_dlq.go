package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/IliaW/site-auditor/config"
	"github.com/segmentio/kafka-go"
)

type KafkaDLQClient struct {
	serviceName string
	kafkaWriter *kafka.Writer
	timeout     time.Duration
}

func NewKafkaDLQ(serviceName string, cfg *config.ProducerConfig) *KafkaDLQClient {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaDLQClient{
		serviceName: serviceName,
		timeout:     timeout,
		kafkaWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Addr...),
			Topic:        cfg.DeadLetterTopicName,
			Balancer:     &kafka.Hash{},
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// SendUrlToDLQ publishes the failed payload with the failure reason in the message headers.
func (d *KafkaDLQClient) SendUrlToDLQ(payload string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.kafkaWriter.WriteMessages(ctx, dlqMessage(d.serviceName, payload, cause, time.Now())); err != nil {
		slog.Error("failed to send message to dlq.", slog.String("payload", payload),
			slog.String("err", err.Error()))
		return
	}
	slog.Debug("message sent to dlq.", slog.String("payload", payload))
}

func dlqMessage(serviceName, payload string, cause error, at time.Time) kafka.Message {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return kafka.Message{
		Key:   []byte(payload),
		Value: []byte(payload),
		Headers: []kafka.Header{
			{Key: "service", Value: []byte(serviceName)},
			{Key: "error", Value: []byte(reason)},
			{Key: "failed_at", Value: []byte(at.UTC().Format(time.RFC3339))},
		},
	}
}

func (d *KafkaDLQClient) Close() {
	if err := d.kafkaWriter.Close(); err != nil {
		slog.Error("failed to close dlq writer.", slog.String("err", err.Error()))
	}
}
