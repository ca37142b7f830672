package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"forum-digest/internal/domain"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Digest struct {
		BatchSize         int     `envconfig:"DIGEST_BATCH_SIZE" default:"5"`
		NarrowTitle       string  `envconfig:"DIGEST_NARROW_TITLE" default:"Daily Discussion Digest"`
		NarrowDescription string  `envconfig:"DIGEST_NARROW_DESCRIPTION" default:"A digest of unread content from course discussions you are following."`
		BroadTitle        string  `envconfig:"DIGEST_BROAD_TITLE" default:"Daily Discussion Digest"`
		BroadDescription  string  `envconfig:"DIGEST_BROAD_DESCRIPTION" default:"A digest of unread content from all discussions in your courses."`
		Subject           string  `envconfig:"DIGEST_EMAIL_SUBJECT" default:"Daily Discussion Digest"`
		Sender            string  `envconfig:"DIGEST_EMAIL_SENDER" default:"notifications@example.com"`
		Cron              string  `envconfig:"DIGEST_CRON" default:"5 0 * * *"`
		IntervalMinutes   int     `envconfig:"DIGEST_INTERVAL_MINUTES" default:"1440"`
		TaskGCDays        int     `envconfig:"DIGEST_TASK_GC_DAYS" default:"30"`
		TaskRatePerSec    float64 `envconfig:"DIGEST_TASK_RATE_PER_SEC" default:"0"`
		TaskMaxRetries    int     `envconfig:"DIGEST_TASK_MAX_RETRIES" default:"5"`
	} `envconfig:""`

	UserService struct {
		URL      string `envconfig:"USER_SERVICE_URL"`
		APIKey   string `envconfig:"USER_SERVICE_API_KEY"`
		HTTPUser string `envconfig:"USER_SERVICE_HTTP_USER"`
		HTTPPass string `envconfig:"USER_SERVICE_HTTP_PASS"`
		PageSize int    `envconfig:"USER_SERVICE_PAGE_SIZE" default:"10"`
	} `envconfig:""`

	Comments struct {
		URL     string        `envconfig:"COMMENTS_SERVICE_URL"`
		APIKey  string        `envconfig:"COMMENTS_SERVICE_API_KEY"`
		Timeout time.Duration `envconfig:"COMMENTS_SERVICE_TIMEOUT" default:"2m"`
	} `envconfig:""`

	Email struct {
		LMSURLBase    string `envconfig:"LMS_URL_BASE" default:"http://localhost:8000"`
		LogoImageURL  string `envconfig:"LOGO_IMAGE_URL"`
		PostalAddress string `envconfig:"EMAIL_SENDER_POSTAL_ADDRESS"`
		SMTPAddr      string `envconfig:"SMTP_ADDR" default:"localhost:25"`
		SMTPUsername  string `envconfig:"SMTP_USERNAME"`
		SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
	} `envconfig:""`

	Queue struct {
		Backend   string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Key       string `envconfig:"DIGEST_QUEUE_KEY" default:"forum_digest_batches"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
	} `envconfig:""`

	LedgerBackend string `envconfig:"LEDGER_BACKEND" default:"postgres"`
	PGDSN         string `envconfig:"PG_DSN"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	Heartbeat struct {
		SnitchURL string `envconfig:"DEAD_MANS_SNITCH_URL"`
		TGToken   string `envconfig:"TG_BOT_TOKEN"`
		TGChatID  int64  `envconfig:"TG_OPS_CHAT_ID"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения и возвращает ошибку вместо завершения.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// Pipeline собирает явную конфигурацию конвейера и проверяет её.
func (c AppConfig) Pipeline() (domain.PipelineConfig, error) {
	p := domain.PipelineConfig{
		BatchSize:         c.Digest.BatchSize,
		NarrowTitle:       c.Digest.NarrowTitle,
		NarrowDescription: c.Digest.NarrowDescription,
		BroadTitle:        c.Digest.BroadTitle,
		BroadDescription:  c.Digest.BroadDescription,
	}
	if err := p.Validate(); err != nil {
		return domain.PipelineConfig{}, err
	}
	return p, nil
}
