package config

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string            `mapstructure:"env"`
	LogLevel           string            `mapstructure:"log_level"`
	LogType            string            `mapstructure:"log_type"`
	ServiceName        string            `mapstructure:"service_name"`
	Port               string            `mapstructure:"port"`
	Version            string            `mapstructure:"version"`
	WorkerSettings     *WorkerConfig     `mapstructure:"worker"`
	CacheSettings      *CacheConfig      `mapstructure:"cache"`
	DbSettings         *DatabaseConfig   `mapstructure:"database"`
	KafkaSettings      *KafkaConfig      `mapstructure:"kafka"`
	S3Settings         *S3Config         `mapstructure:"s3"`
	AuditorSettings    *AuditorConfig    `mapstructure:"auditor"`
	TelemetrySettings  *TelemetryConfig  `mapstructure:"telemetry"`
	HttpClientSettings *HttpClientConfig `mapstructure:"http_client"`
}

type WorkerConfig struct {
	WorkersNum    int           `mapstructure:"workers_num"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type CacheConfig struct {
	Servers []string `mapstructure:"servers"`
	// TtlForSite is how long a site counts as recently audited in memcached.
	TtlForSite time.Duration `mapstructure:"ttl_for_site"`
	// TtlForLatestReport is the lifetime of reports kept in process for the latest-report endpoint.
	TtlForLatestReport time.Duration `mapstructure:"ttl_for_latest_report"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Producer *ProducerConfig `mapstructure:"producer"`
	Consumer *ConsumerConfig `mapstructure:"consumer"`
}

type ProducerConfig struct {
	Addr                []string      `mapstructure:"addr"`
	WriteTopicName      string        `mapstructure:"write_topic_name"`
	DeadLetterTopicName string        `mapstructure:"dlq_topic_name"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BatchSize           int           `mapstructure:"batch_size"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	RequiredAsks        int           `mapstructure:"required_acks"`
	Async               bool          `mapstructure:"async"`
}

type ConsumerConfig struct {
	ReadTopicName    string        `mapstructure:"read_topic_name"`
	Brokers          []string      `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	ReadBatchTimeout time.Duration `mapstructure:"read_batch_timeout"`
	QueueCapacity    int           `mapstructure:"queue_capacity"`
	MaxBytes         int           `mapstructure:"max_bytes"`
	CommitInterval   time.Duration `mapstructure:"commit_interval"`
}

type S3Config struct {
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type AuditorConfig struct {
	MaxPages         int           `mapstructure:"max_pages"`
	MaxExternalLinks int           `mapstructure:"max_external_links"`
	MaxImages        int           `mapstructure:"max_images"`
	Concurrency      int           `mapstructure:"concurrency"`
	CheckDelay       time.Duration `mapstructure:"check_delay"`
	HeadTimeout      time.Duration `mapstructure:"head_timeout"`
	GetTimeout       time.Duration `mapstructure:"get_timeout"`
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	CrawlMechanism   int           `mapstructure:"crawl_mechanism"`
	TrustedDomains   []string      `mapstructure:"trusted_domains"`
}

// Defaults returns a copy of the config with zero values replaced by the standard limits.
// A nil receiver yields the defaults.
func (c *AuditorConfig) Defaults() *AuditorConfig {
	out := AuditorConfig{}
	if c != nil {
		out = *c
	}
	if out.MaxPages <= 0 {
		out.MaxPages = 50
	}
	if out.MaxExternalLinks <= 0 {
		out.MaxExternalLinks = 30
	}
	if out.MaxImages <= 0 {
		out.MaxImages = 50
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 10
	}
	if out.CheckDelay <= 0 {
		out.CheckDelay = 100 * time.Millisecond
	}
	if out.HeadTimeout <= 0 {
		out.HeadTimeout = 5 * time.Second
	}
	if out.GetTimeout <= 0 {
		out.GetTimeout = 8 * time.Second
	}
	if out.PageTimeout <= 0 {
		out.PageTimeout = 15 * time.Second
	}
	if out.ProbeTimeout <= 0 {
		out.ProbeTimeout = 10 * time.Second
	}
	if out.UserAgent == "" {
		out.UserAgent = "site-auditor/1.0"
	}
	return &out
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CollectorUrl string `mapstructure:"collector_url"`
}

type HttpClientConfig struct {
	MaxIdleConnections        int           `mapstructure:"max_idle_connections"`
	MaxIdleConnectionsPerHost int           `mapstructure:"max_idle_connections_per_host"`
	MaxConnectionsPerHost     int           `mapstructure:"max_connections_per_host"`
	IdleConnectionTimeout     time.Duration `mapstructure:"idle_connection_timeout"`
	TlsHandshakeTimeout       time.Duration `mapstructure:"tls_handshake_timeout"`
	DialTimeout               time.Duration `mapstructure:"dial_timeout"`
	DialKeepAlive             time.Duration `mapstructure:"dial_keep_alive"`
	TlsInsecureSkipVerify     bool          `mapstructure:"tls_insecure_skip_verify"`
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfg.AuditorSettings = cfg.AuditorSettings.Defaults()

	return &cfg
}
