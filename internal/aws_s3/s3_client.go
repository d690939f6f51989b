package aws_s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	netUrl "net/url"
	"os"

	"github.com/IliaW/site-auditor/config"
	"github.com/IliaW/site-auditor/internal"
	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/resolver"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type BucketClient interface {
	WriteReport(context.Context, *model.AuditReport) (string, error)
}

type S3BucketClient struct {
	client *s3.Client
	cfg    *config.Config
}

func NewS3BucketClient(cfg *config.Config) *S3BucketClient {
	slog.Info("connecting to s3...")

	c, err := connect(cfg)
	if err != nil {
		slog.Error("failed to connect to s3.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return &S3BucketClient{
		client: c,
		cfg:    cfg,
	}
}

func (bc *S3BucketClient) WriteReport(ctx context.Context, report *model.AuditReport) (string, error) {
	s3Key, err := reportKey(bc.cfg.S3Settings.KeyPrefix, report)
	if err != nil {
		slog.Error("failed to build s3 key.", slog.String("url", report.SiteURL), slog.String("err", err.Error()))
		return "", err
	}
	body, err := json.Marshal(report)
	if err != nil {
		slog.Error("marshaling failed.", slog.String("err", err.Error()))
		return "", err
	}

	contentType := "application/json"
	_, err = bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bc.cfg.S3Settings.BucketName,
		Key:         &s3Key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		slog.Error("failed to save report to s3.", slog.String("err", err.Error()))
		return "", err
	}
	slog.Debug("report saved to s3.", slog.String("key", s3Key))

	return s3Key, nil
}

// reportKey lays reports out as <prefix>/<host>/<site hash>/<report id>.json so every run of a site is kept.
func reportKey(prefix string, report *model.AuditReport) (string, error) {
	u, err := netUrl.Parse(report.SiteURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("site url has no host: %q", report.SiteURL)
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, u.Host, internal.HashURL(resolver.Normalize(report.SiteURL)),
		report.ID), nil
}

func connect(cfg *config.Config) (*s3.Client, error) {
	s3Config, err := awsCfg.LoadDefaultConfig(context.Background(), awsCfg.WithRegion(cfg.S3Settings.Region))
	if err != nil {
		slog.Error("failed to load s3 config.", slog.String("err", err.Error()))
		return nil, err
	}

	if cfg.Env == "local" {
		s3Config.BaseEndpoint = &cfg.S3Settings.AwsBaseEndpoint // for LocalStack
		s3Config.Credentials = crd.NewStaticCredentialsProvider("test", "test", "")
		// LocalStack does not support virtual host addressing, use path style instead.
		slog.Warn("test configuration for S3")
		return s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		}), nil
	}

	return s3.NewFromConfig(s3Config), nil
}
