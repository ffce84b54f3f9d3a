package main

import (
	"fmt"
	"time"

	"github.com/kshitijlohbare/wellbook/libs/config"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/meeting"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/notify"
)

type appConfig struct {
	Service     string
	Port        string
	GRPCPort    string
	DatabaseURL string
	Location    *time.Location

	ReminderOffsets        string
	RegenerateOnReschedule bool
	CascadeOnCancel        bool
	StepTimeout            time.Duration

	Email notify.ProviderConfig

	Zoom               meeting.ZoomConfig
	GoogleCredentials  string
	GoogleCalendarID   string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimit          int
	RateLimitWindow    time.Duration
	KafkaBrokers       string
	SupabaseJWTSecret  string
	SupabaseJWKSURL    string
	SupabaseAudience   string
	CORSAllowedOrigins []string
}

func loadConfig() (appConfig, error) {
	if err := config.LoadDotEnv(); err != nil {
		return appConfig{}, err
	}

	var cfg appConfig
	var err error
	cfg.Service = config.String("SERVICE_NAME", "booking-service")
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	tz := config.String("APP_TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return cfg, fmt.Errorf("APP_TIMEZONE: %w", err)
	}

	cfg.ReminderOffsets = config.String("REMINDER_OFFSETS", "1d,1h")
	cfg.RegenerateOnReschedule = config.Bool("REGENERATE_ON_RESCHEDULE", false)
	cfg.CascadeOnCancel = config.Bool("CASCADE_ON_CANCEL", false)
	cfg.StepTimeout = config.Seconds("STEP_TIMEOUT_SECONDS", 10*time.Second)

	from := notify.From{
		Email: config.String("EMAIL_FROM", ""),
		Name:  config.String("EMAIL_FROM_NAME", ""),
	}
	cfg.Email = notify.ProviderConfig{
		Kind: config.String("EMAIL_PROVIDER", "log"),
		From: from,
		SMTP: notify.SMTPConfig{
			Host:     config.String("SMTP_HOST", "mailpit"),
			Port:     config.Int("SMTP_PORT", 1025),
			Username: config.String("SMTP_USER", ""),
			Password: config.String("SMTP_PASS", ""),
		},
		SendGridAPIKey: config.String("SENDGRID_API_KEY", ""),
		AWSRegion:      config.String("AWS_REGION", ""),
	}
	if smtpFrom := config.String("SMTP_FROM", ""); smtpFrom != "" && from.Email == "" {
		cfg.Email.From.Email = smtpFrom
	}

	cfg.Zoom = meeting.ZoomConfig{
		AccountID:    config.String("ZOOM_ACCOUNT_ID", ""),
		ClientID:     config.String("ZOOM_CLIENT_ID", ""),
		ClientSecret: config.String("ZOOM_CLIENT_SECRET", ""),
	}
	cfg.GoogleCredentials = config.String("GOOGLE_CREDENTIALS_FILE", "")
	cfg.GoogleCalendarID = config.String("GOOGLE_CALENDAR_ID", "primary")

	cfg.RedisAddr = config.String("REDIS_ADDR", "")
	cfg.RedisPassword = config.String("REDIS_PASSWORD", "")
	cfg.RedisDB = config.Int("REDIS_DB", 0)
	cfg.RateLimit = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	cfg.RateLimitWindow = time.Minute
	cfg.KafkaBrokers = config.String("KAFKA_BROKERS", "")

	cfg.SupabaseJWTSecret = config.String("SUPABASE_JWT_SECRET", "")
	cfg.SupabaseJWKSURL = config.String("SUPABASE_JWKS_URL", "")
	cfg.SupabaseAudience = config.String("SUPABASE_JWT_AUDIENCE", "authenticated")
	if cfg.SupabaseJWTSecret == "" && cfg.SupabaseJWKSURL == "" {
		return cfg, fmt.Errorf("SUPABASE_JWT_SECRET or SUPABASE_JWKS_URL is required")
	}
	cfg.CORSAllowedOrigins = config.List("CORS_ALLOWED_ORIGINS", "")
	return cfg, nil
}
