package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultHTTPPort        = "8080"
	defaultTemporalAddress = "localhost:7233"
	defaultTemporalNS      = "default"
	defaultTaskQueue       = "signing-assignment-task-queue"
	defaultMinioEndpoint   = "localhost:9000"
	defaultMinioBucket     = "signing-orders"
	defaultStateMatrixPath = "config/state_matrix.yaml"
	defaultRadiusMiles     = 25.0
	defaultOfferTimeoutMin = 30
	defaultMaxOffers       = 3
	defaultTwilioBaseURL   = "https://api.twilio.com"
)

type Config struct {
	AppEnv                string
	LogLevel              string
	HTTPPort              string
	PostgresDSN           string
	TemporalAddress       string
	TemporalNamespace     string
	TemporalTaskQueue     string
	MinioEndpoint         string
	MinioAccessKey        string
	MinioSecretKey        string
	MinioBucket           string
	MinioUseSSL           bool
	WorkflowIDPrefix      string
	StateMatrixPath       string
	StateMatrixObjectKey  string
	MaxServiceRadiusMiles float64
	OfferTimeout          time.Duration
	MaxOffers             int
	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioFromNumber      string
	TwilioBaseURL         string
	EscalationNotifyTo    string
	MaxOrderBytes         int64
}

func Load() (Config, error) {
	cfg := Config{
		AppEnv:                getenv("APP_ENV", "production"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		HTTPPort:              getenv("HTTP_PORT", defaultHTTPPort),
		PostgresDSN:           os.Getenv("POSTGRES_DSN"),
		TemporalAddress:       getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace:     getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue:     getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		MinioEndpoint:         getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:        os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:        os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:           getenv("MINIO_BUCKET", defaultMinioBucket),
		MinioUseSSL:           getenvBool("MINIO_USE_SSL", false),
		WorkflowIDPrefix:      getenv("WORKFLOW_ID_PREFIX", "signing-assign"),
		StateMatrixPath:       getenv("STATE_MATRIX_PATH", defaultStateMatrixPath),
		StateMatrixObjectKey:  os.Getenv("STATE_MATRIX_OBJECT_KEY"),
		MaxServiceRadiusMiles: getenvFloat("MAX_SERVICE_RADIUS_MILES", defaultRadiusMiles),
		OfferTimeout:          time.Duration(getenvInt("OFFER_TIMEOUT_MIN", defaultOfferTimeoutMin)) * time.Minute,
		MaxOffers:             getenvInt("MAX_OFFERS", defaultMaxOffers),
		TwilioAccountSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:      os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioBaseURL:         getenv("TWILIO_BASE_URL", defaultTwilioBaseURL),
		EscalationNotifyTo:    os.Getenv("ESCALATION_NOTIFY_TO"),
		MaxOrderBytes:         int64(getenvInt("MAX_ORDER_BYTES", 64*1024)),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.MaxServiceRadiusMiles <= 0 {
		return Config{}, fmt.Errorf("MAX_SERVICE_RADIUS_MILES must be positive")
	}
	if cfg.MaxOffers <= 0 {
		return Config{}, fmt.Errorf("MAX_OFFERS must be positive")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether Twilio credentials are configured.
func (c Config) NotificationsEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
