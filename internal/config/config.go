/**
 * @description
 * Configuration management for the billing service and its scheduler. Values
 * come from environment variables (optionally a .env file) through viper.
 *
 * @dependencies
 * - github.com/spf13/viper: environment binding and defaults.
 */
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the billing API and event consumer.
type Config struct {
	ServerPort                      string        `mapstructure:"SERVER_PORT"`
	DatabaseURL                     string        `mapstructure:"DATABASE_URL"`
	RabbitMQURL                     string        `mapstructure:"RABBITMQ_URL"`
	BookingEventQueue               string        `mapstructure:"BOOKING_EVENT_QUEUE"`
	RedisURL                        string        `mapstructure:"REDIS_URL"`
	RedisLockPrefix                 string        `mapstructure:"REDIS_LOCK_PREFIX"`
	RedisRateLimitPrefix            string        `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	PaymentMethodRateLimitPerMinute int           `mapstructure:"PAYMENT_METHOD_RATE_LIMIT_PER_MINUTE"`
	InternalAPIKey                  string        `mapstructure:"INTERNAL_API_KEY"`
	JWTSecret                       string        `mapstructure:"JWT_SECRET"`
	PaystackSecretKey               string        `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL                 string        `mapstructure:"PAYSTACK_BASE_URL"`
	PaymentCallbackURL              string        `mapstructure:"PAYMENT_CALLBACK_URL"`
	BusinessTimezone                string        `mapstructure:"BUSINESS_TIMEZONE"`
	DefaultCurrency                 string        `mapstructure:"DEFAULT_CURRENCY"`
	InvoiceDueDays                  int           `mapstructure:"INVOICE_DUE_DAYS"`
	AuthorizationDay                int           `mapstructure:"AUTHORIZATION_DAY"`
	CaptureDay                      int           `mapstructure:"CAPTURE_DAY"`
	SweepLockTTL                    time.Duration `mapstructure:"SWEEP_LOCK_TTL"`
	RunMigrations                   bool          `mapstructure:"RUN_MIGRATIONS"`
	CORSAllowedOrigins              []string      `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// SchedulerConfig holds configuration for the billing scheduler process.
type SchedulerConfig struct {
	BillingServiceURL        string `mapstructure:"BILLING_SERVICE_URL"`
	InternalAPIKey           string `mapstructure:"INTERNAL_API_KEY"`
	BusinessTimezone         string `mapstructure:"BUSINESS_TIMEZONE"`
	InvoiceJobSchedule       string `mapstructure:"INVOICE_JOB_SCHEDULE"`
	OverdueJobSchedule       string `mapstructure:"OVERDUE_JOB_SCHEDULE"`
	AuthorizationJobSchedule string `mapstructure:"AUTHORIZATION_JOB_SCHEDULE"`
	CaptureJobSchedule       string `mapstructure:"CAPTURE_JOB_SCHEDULE"`
}

// LoadConfig reads the billing service configuration. An optional .env file in
// path is merged underneath the environment.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("BOOKING_EVENT_QUEUE", "billing_service_booking_events")
	viper.SetDefault("REDIS_LOCK_PREFIX", "nannygold:billing:sweep")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "nannygold:billing:rate_limit")
	viper.SetDefault("PAYMENT_METHOD_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("BUSINESS_TIMEZONE", "Africa/Johannesburg")
	viper.SetDefault("DEFAULT_CURRENCY", "ZAR")
	viper.SetDefault("INVOICE_DUE_DAYS", 7)
	viper.SetDefault("AUTHORIZATION_DAY", 25)
	viper.SetDefault("CAPTURE_DAY", 1)
	viper.SetDefault("SWEEP_LOCK_TTL", "10m")
	viper.SetDefault("RUN_MIGRATIONS", true)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BOOKING_EVENT_QUEUE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BILLING_REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("PAYMENT_METHOD_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "BILLING_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYMENT_CALLBACK_URL")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("INVOICE_DUE_DAYS")
	_ = viper.BindEnv("AUTHORIZATION_DAY")
	_ = viper.BindEnv("CAPTURE_DAY")
	_ = viper.BindEnv("SWEEP_LOCK_TTL")
	_ = viper.BindEnv("RUN_MIGRATIONS")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.DefaultCurrency = strings.ToUpper(strings.TrimSpace(config.DefaultCurrency))
	config.CORSAllowedOrigins = splitList(config.CORSAllowedOrigins)

	err = config.validate()
	return
}

func (c Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return fmt.Errorf("DATABASE_URL is required")
	case c.InternalAPIKey == "":
		return fmt.Errorf("INTERNAL_API_KEY is required")
	case strings.TrimSpace(c.JWTSecret) == "":
		return fmt.Errorf("JWT_SECRET is required")
	case strings.TrimSpace(c.PaystackSecretKey) == "":
		return fmt.Errorf("PAYSTACK_SECRET_KEY is required")
	case c.InvoiceDueDays < 0:
		return fmt.Errorf("INVOICE_DUE_DAYS must not be negative, got %d", c.InvoiceDueDays)
	case c.AuthorizationDay < 1 || c.AuthorizationDay > 31:
		return fmt.Errorf("AUTHORIZATION_DAY must be between 1 and 31, got %d", c.AuthorizationDay)
	case c.CaptureDay < 1 || c.CaptureDay > 31:
		return fmt.Errorf("CAPTURE_DAY must be between 1 and 31, got %d", c.CaptureDay)
	case c.SweepLockTTL <= 0:
		return fmt.Errorf("SWEEP_LOCK_TTL must be positive, got %s", c.SweepLockTTL)
	}
	if _, err := time.LoadLocation(c.BusinessTimezone); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE %q is invalid: %w", c.BusinessTimezone, err)
	}
	return nil
}

// LoadSchedulerConfig reads configuration for the scheduler process.
func LoadSchedulerConfig() (*SchedulerConfig, error) {
	viper.SetDefault("BUSINESS_TIMEZONE", "Africa/Johannesburg")
	viper.SetDefault("INVOICE_JOB_SCHEDULE", "0 1 * * *")       // Daily at 01:00.
	viper.SetDefault("OVERDUE_JOB_SCHEDULE", "30 1 * * *")      // Daily at 01:30.
	viper.SetDefault("AUTHORIZATION_JOB_SCHEDULE", "0 6 * * *") // Daily at 06:00.
	viper.SetDefault("CAPTURE_JOB_SCHEDULE", "0 8 * * *")       // Daily at 08:00.
	viper.AutomaticEnv()

	_ = viper.BindEnv("BILLING_SERVICE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "BILLING_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("INVOICE_JOB_SCHEDULE")
	_ = viper.BindEnv("OVERDUE_JOB_SCHEDULE")
	_ = viper.BindEnv("AUTHORIZATION_JOB_SCHEDULE")
	_ = viper.BindEnv("CAPTURE_JOB_SCHEDULE")

	var config SchedulerConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.BillingServiceURL = strings.TrimRight(strings.TrimSpace(config.BillingServiceURL), "/")
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)

	if config.BillingServiceURL == "" {
		return nil, fmt.Errorf("BILLING_SERVICE_URL is required")
	}
	if config.InternalAPIKey == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY is required")
	}
	if _, err := time.LoadLocation(config.BusinessTimezone); err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE %q is invalid: %w", config.BusinessTimezone, err)
	}

	schedules := map[string]string{
		"INVOICE_JOB_SCHEDULE":       config.InvoiceJobSchedule,
		"OVERDUE_JOB_SCHEDULE":       config.OverdueJobSchedule,
		"AUTHORIZATION_JOB_SCHEDULE": config.AuthorizationJobSchedule,
		"CAPTURE_JOB_SCHEDULE":       config.CaptureJobSchedule,
	}
	for key, spec := range schedules {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("%s %q is invalid: %w", key, spec, err)
		}
	}

	return &config, nil
}

// splitList accepts either a parsed list or a single comma-separated entry.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
