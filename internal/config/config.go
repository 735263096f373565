package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	StorageBackend string
	DatabaseURL    string
	ProjectID      string
	RedisURL       string

	JWTSecret   string
	AdminEmails []string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
	R2PublicBaseURL   string

	SMTPHost      string
	SMTPPort      string
	SMTPUser      string
	SMTPPassword  string
	SMTPFrom      string
	PublicBaseURL string

	PaymentAPIURL    string
	PaymentKeyID     string
	PaymentKeySecret string
	PaymentCurrency  string
	SubmissionFee    int64

	DiscordWebhookURL  string
	AmazonAffiliateTag string

	GeminiAPIKey string
	GeminiModel  string

	ExtractTimeout    time.Duration
	ExtractRetries    int
	ExtractRatePerSec float64
	HeadlessFallback  bool
	CrawlConcurrency  int
	CrawlMaxLinks     int

	ExpirySweepSpec string
	CORSOrigins     []string
}

// UploadsEnabled reports whether R2 credentials are complete.
func (c *Config) UploadsEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Bucket != ""
}

// PaymentsEnabled reports whether a payment gateway key pair is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.PaymentKeyID != "" && c.PaymentKeySecret != ""
}

func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	backend := strings.ToLower(envOr("STORAGE_BACKEND", BackendPostgres))
	databaseURL := os.Getenv("DATABASE_URL")
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	switch backend {
	case BackendPostgres:
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required when STORAGE_BACKEND=%s", backend)
		}
	case BackendFirestore:
		if projectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required when STORAGE_BACKEND=%s", backend)
		}
	case BackendMemory:
		slog.Warn("Using in-memory storage, data is lost on restart")
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: want %s, %s or %s", backend, BackendPostgres, BackendFirestore, BackendMemory)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required but not set")
	}

	discordWebhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if discordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, moderation notifications will be skipped")
	}

	extractTimeout, err := durationEnv("EXTRACT_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}
	extractRetries, err := intEnv("EXTRACT_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	crawlConcurrency, err := intEnv("CRAWL_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	if crawlConcurrency < 1 {
		return nil, fmt.Errorf("invalid CRAWL_CONCURRENCY %d: must be at least 1", crawlConcurrency)
	}
	crawlMaxLinks, err := intEnv("CRAWL_MAX_LINKS", 50)
	if err != nil {
		return nil, err
	}

	ratePerSec := 2.0
	if v := os.Getenv("EXTRACT_RATE_PER_SEC"); v != "" {
		ratePerSec, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid EXTRACT_RATE_PER_SEC %q: %w", v, err)
		}
	}

	headless := false
	if v := os.Getenv("HEADLESS_FALLBACK"); v != "" {
		headless, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HEADLESS_FALLBACK %q: %w", v, err)
		}
	}

	var fee int64 = 4900
	if v := os.Getenv("SUBMISSION_FEE"); v != "" {
		fee, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SUBMISSION_FEE %q: %w", v, err)
		}
		if fee <= 0 {
			return nil, fmt.Errorf("invalid SUBMISSION_FEE %d: must be positive", fee)
		}
	}

	cfg := &Config{
		Port:     port,
		AppEnv:   envOr("APP_ENV", "development"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		StorageBackend: backend,
		DatabaseURL:    databaseURL,
		ProjectID:      projectID,
		RedisURL:       envOr("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:   jwtSecret,
		AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:          os.Getenv("R2_BUCKET"),
		R2PublicBaseURL:   strings.TrimSuffix(os.Getenv("R2_PUBLIC_BASE_URL"), "/"),

		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      envOr("SMTP_PORT", "587"),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:      envOr("SMTP_FROM", "no-reply@dealboard.local"),
		PublicBaseURL: strings.TrimSuffix(envOr("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),

		PaymentAPIURL:    strings.TrimSuffix(envOr("PAYMENT_API_URL", "https://api.razorpay.com/v1"), "/"),
		PaymentKeyID:     os.Getenv("PAYMENT_KEY_ID"),
		PaymentKeySecret: os.Getenv("PAYMENT_KEY_SECRET"),
		PaymentCurrency:  envOr("PAYMENT_CURRENCY", "INR"),
		SubmissionFee:    fee,

		DiscordWebhookURL:  discordWebhookURL,
		AmazonAffiliateTag: os.Getenv("AMAZON_AFFILIATE_TAG"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOr("GEMINI_MODEL", "gemini-2.5-flash"),

		ExtractTimeout:    extractTimeout,
		ExtractRetries:    extractRetries,
		ExtractRatePerSec: ratePerSec,
		HeadlessFallback:  headless,
		CrawlConcurrency:  crawlConcurrency,
		CrawlMaxLinks:     crawlMaxLinks,

		ExpirySweepSpec: envOr("EXPIRY_SWEEP_SPEC", "@every 1h"),
		CORSOrigins:     splitList(envOr("CORS_ORIGINS", "*")),
	}

	if !cfg.UploadsEnabled() {
		slog.Warn("R2 credentials incomplete, image uploads are disabled")
	}
	if !cfg.PaymentsEnabled() {
		slog.Warn("PAYMENT_KEY_ID/PAYMENT_KEY_SECRET not set, paid submissions are disabled")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
