/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the service. These values
// are loaded from environment variables.
type Config struct {
	ServerPort           string   `mapstructure:"SERVER_PORT"`
	DatabaseURL          string   `mapstructure:"DATABASE_URL"`
	RedisURL             string   `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string   `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string   `mapstructure:"RABBITMQ_URL"`
	JWTSecret            string   `mapstructure:"JWT_SECRET"`
	AllowedOrigins       []string `mapstructure:"-"`

	StripeAPIBaseURL    string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeAPIKey        string `mapstructure:"STRIPE_API_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	MailerBaseURL string `mapstructure:"MAILER_BASE_URL"`
	MailerAPIKey  string `mapstructure:"MAILER_API_KEY"`

	MobileMoneyBaseURL string `mapstructure:"MOBILE_MONEY_BASE_URL"`
	MobileMoneyAPIKey  string `mapstructure:"MOBILE_MONEY_API_KEY"`

	TransferMinCADCents int64   `mapstructure:"TRANSFER_MIN_CAD_CENTS"`
	TransferMaxCADCents int64   `mapstructure:"TRANSFER_MAX_CAD_CENTS"`
	TransferFeePercent  float64 `mapstructure:"TRANSFER_FEE_PERCENT"`

	ReliabilityAlertThreshold      float64 `mapstructure:"RELIABILITY_ALERT_THRESHOLD"`
	ReliabilityComplianceThreshold float64 `mapstructure:"RELIABILITY_COMPLIANCE_THRESHOLD"`
	ReliabilityWindowHours         int     `mapstructure:"RELIABILITY_WINDOW_HOURS"`

	ExchangeRateCacheTTLSeconds int    `mapstructure:"EXCHANGE_RATE_CACHE_TTL_SECONDS"`
	ReminderSchedule            string `mapstructure:"REMINDER_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "remit:rate_limit")
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("TRANSFER_MIN_CAD_CENTS", 1000)
	viper.SetDefault("TRANSFER_MAX_CAD_CENTS", 500000)
	viper.SetDefault("TRANSFER_FEE_PERCENT", 0.025)
	viper.SetDefault("RELIABILITY_ALERT_THRESHOLD", 0.015)
	viper.SetDefault("RELIABILITY_COMPLIANCE_THRESHOLD", 0.02)
	viper.SetDefault("RELIABILITY_WINDOW_HOURS", 24)
	viper.SetDefault("EXCHANGE_RATE_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("REMINDER_SCHEDULE", "0 9 * * *")
	viper.SetDefault("ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_API_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("MAILER_BASE_URL")
	_ = viper.BindEnv("MAILER_API_KEY")
	_ = viper.BindEnv("MOBILE_MONEY_BASE_URL")
	_ = viper.BindEnv("MOBILE_MONEY_API_KEY")
	_ = viper.BindEnv("TRANSFER_MIN_CAD_CENTS")
	_ = viper.BindEnv("TRANSFER_MAX_CAD_CENTS")
	_ = viper.BindEnv("TRANSFER_FEE_PERCENT")
	_ = viper.BindEnv("RELIABILITY_ALERT_THRESHOLD")
	_ = viper.BindEnv("RELIABILITY_COMPLIANCE_THRESHOLD")
	_ = viper.BindEnv("RELIABILITY_WINDOW_HOURS")
	_ = viper.BindEnv("EXCHANGE_RATE_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("REMINDER_SCHEDULE")
	_ = viper.BindEnv("ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Hosting platforms inject the listen port as PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "remit:rate_limit"
	}

	origins := viper.GetString("ALLOWED_ORIGINS")
	for _, origin := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			config.AllowedOrigins = append(config.AllowedOrigins, trimmed)
		}
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	return
}
