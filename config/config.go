package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvProduction = "production"

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Webhooks          WebhooksConfig
	Gateways          GatewaysConfig
	Queue             QueueConfig
	Campaigns         CampaignsConfig
	Mail              MailConfig
	Leads             LeadsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	Env         string
	PublicURL   string
}

func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), EnvProduction)
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type WebhooksConfig struct {
	AllowUnsigned   bool
	DefaultClientID string
	MaxBodyBytes    int64
}

type GatewaysConfig struct {
	HTTPTimeout              time.Duration
	StripeSignatureTolerance int64
}

type QueueConfig struct {
	Driver       string
	Concurrency  int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	StuckAfter   time.Duration
	PollInterval time.Duration
	JobTTL       time.Duration
}

type CampaignsConfig struct {
	DefaultBatchSize     int
	DefaultRatePerSecond int
	BatchConcurrency     int
	DistributedLimiter   bool
}

type MailConfig struct {
	Driver       string
	ResendAPIKey string
	FromName     string
	FromEmail    string
	ReplyTo      string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

type LeadsConfig struct {
	Source      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	LocalDir    string
}

type JobsConfig struct {
	SweepInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "logistics-service"),
			Env:         getEnv("APP_ENV", "development"),
			PublicURL:   strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Webhooks: WebhooksConfig{
			AllowUnsigned:   getBoolEnv("WEBHOOK_ALLOW_UNSIGNED", false),
			DefaultClientID: getEnv("WEBHOOK_DEFAULT_CLIENT_ID", ""),
			MaxBodyBytes:    int64(getIntEnv("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		},
		Gateways: GatewaysConfig{
			HTTPTimeout:              getSecondsEnv("GATEWAY_HTTP_TIMEOUT_SECONDS", 15*time.Second),
			StripeSignatureTolerance: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
		},
		Queue: QueueConfig{
			Driver:       getEnv("QUEUE_DRIVER", "redis"),
			Concurrency:  getIntEnv("QUEUE_CONCURRENCY", 4),
			MaxAttempts:  getIntEnv("QUEUE_MAX_ATTEMPTS", 3),
			BaseBackoff:  getSecondsEnv("QUEUE_BASE_BACKOFF_SECONDS", 2*time.Second),
			MaxBackoff:   getMinutesEnv("QUEUE_MAX_BACKOFF_MINUTES", 5*time.Minute),
			StuckAfter:   getMinutesEnv("QUEUE_STUCK_AFTER_MINUTES", 10*time.Minute),
			PollInterval: getSecondsEnv("QUEUE_POLL_SECONDS", time.Second),
			JobTTL:       getMinutesEnv("QUEUE_JOB_TTL_MINUTES", 24*time.Hour),
		},
		Campaigns: CampaignsConfig{
			DefaultBatchSize:     getIntEnv("CAMPAIGN_BATCH_SIZE", 50),
			DefaultRatePerSecond: getIntEnv("CAMPAIGN_RATE_LIMIT_PER_SECOND", 90),
			BatchConcurrency:     getIntEnv("CAMPAIGN_BATCH_CONCURRENCY", 4),
			DistributedLimiter:   getBoolEnv("CAMPAIGN_DISTRIBUTED_LIMITER", true),
		},
		Mail: MailConfig{
			Driver:       getEnv("MAIL_DRIVER", "resend"),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromName:     getEnv("MAIL_FROM_NAME", "Logistics"),
			FromEmail:    getEnv("MAIL_FROM_EMAIL", "no-reply@example.com"),
			ReplyTo:      getEnv("MAIL_REPLY_TO", ""),
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getIntEnv("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		},
		Leads: LeadsConfig{
			Source:      getEnv("LEADS_SOURCE", "s3"),
			S3Bucket:    getEnv("LEADS_S3_BUCKET", ""),
			S3Region:    getEnv("LEADS_S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("LEADS_S3_ENDPOINT", ""),
			S3AccessKey: getEnv("LEADS_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("LEADS_S3_SECRET_KEY", ""),
			LocalDir:    getEnv("LEADS_LOCAL_DIR", "./leads"),
		},
		Jobs: JobsConfig{
			SweepInterval: getMinutesEnv("QUEUE_SWEEP_INTERVAL_MINUTES", time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
