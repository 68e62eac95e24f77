/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables and an
 * optional .env file, providing a centralized way to manage settings.
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

// Config holds all the configuration variables for the invoicing service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	EventExchange        string `mapstructure:"EVENT_EXCHANGE"`
	PaymentEventQueue    string `mapstructure:"PAYMENT_EVENT_QUEUE"`
	SolanaRPCURL         string `mapstructure:"SOLANA_RPC_URL"`
	PaymentLinkBaseURL   string `mapstructure:"PAYMENT_LINK_BASE_URL"`
	PaymentLabel         string `mapstructure:"PAYMENT_LABEL"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes        int    `mapstructure:"JWT_TTL_MINUTES"`
	AuthNonceTTLSeconds  int    `mapstructure:"AUTH_NONCE_TTL_SECONDS"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	CORSAllowedOrigins   string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	HouseEdgePercent  int `mapstructure:"HOUSE_EDGE_PERCENT"`
	MinReservePercent int `mapstructure:"MIN_RESERVE_PERCENT"`
	MaxPayoutPercent  int `mapstructure:"MAX_PAYOUT_PERCENT"`
	MaxRiskPercent    int `mapstructure:"MAX_RISK_PERCENT"`

	ReminderSchedule      string `mapstructure:"REMINDER_SCHEDULE"`
	ReminderBackoffHours  int    `mapstructure:"REMINDER_BACKOFF_HOURS"`
	ReminderMaxCount      int    `mapstructure:"REMINDER_MAX_COUNT"`
	ReminderLeadHours     int    `mapstructure:"REMINDER_LEAD_HOURS"`
	PoolReconcileSchedule string `mapstructure:"POOL_RECONCILE_SCHEDULE"`

	LotteryEntryRateLimitPerMinute  int `mapstructure:"LOTTERY_ENTRY_RATE_LIMIT_PER_MINUTE"`
	LotterySettleRateLimitPerMinute int `mapstructure:"LOTTERY_SETTLE_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
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
	viper.SetDefault("EVENT_EXCHANGE", "invoicenow.events")
	viper.SetDefault("PAYMENT_EVENT_QUEUE", "invoicenow.payment_confirmations")
	viper.SetDefault("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	viper.SetDefault("PAYMENT_LINK_BASE_URL", "https://invoicenow.app")
	viper.SetDefault("PAYMENT_LABEL", "InvoiceNow")
	viper.SetDefault("JWT_TTL_MINUTES", 60)
	viper.SetDefault("AUTH_NONCE_TTL_SECONDS", 300)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "invoicenow:rate_limit")
	viper.SetDefault("HOUSE_EDGE_PERCENT", 5)
	viper.SetDefault("MIN_RESERVE_PERCENT", 20)
	viper.SetDefault("MAX_PAYOUT_PERCENT", 10)
	viper.SetDefault("MAX_RISK_PERCENT", 50)
	viper.SetDefault("REMINDER_SCHEDULE", "0 * * * *")
	viper.SetDefault("REMINDER_BACKOFF_HOURS", 24)
	viper.SetDefault("REMINDER_MAX_COUNT", 3)
	viper.SetDefault("REMINDER_LEAD_HOURS", 0)
	viper.SetDefault("POOL_RECONCILE_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("LOTTERY_ENTRY_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("LOTTERY_SETTLE_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("PAYMENT_EVENT_QUEUE")
	_ = viper.BindEnv("SOLANA_RPC_URL")
	_ = viper.BindEnv("PAYMENT_LINK_BASE_URL")
	_ = viper.BindEnv("PAYMENT_LABEL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_TTL_MINUTES")
	_ = viper.BindEnv("AUTH_NONCE_TTL_SECONDS")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("HOUSE_EDGE_PERCENT")
	_ = viper.BindEnv("MIN_RESERVE_PERCENT")
	_ = viper.BindEnv("MAX_PAYOUT_PERCENT")
	_ = viper.BindEnv("MAX_RISK_PERCENT")
	_ = viper.BindEnv("REMINDER_SCHEDULE")
	_ = viper.BindEnv("REMINDER_BACKOFF_HOURS")
	_ = viper.BindEnv("REMINDER_MAX_COUNT")
	_ = viper.BindEnv("REMINDER_LEAD_HOURS")
	_ = viper.BindEnv("POOL_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("LOTTERY_ENTRY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("LOTTERY_SETTLE_RATE_LIMIT_PER_MINUTE")

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

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "invoicenow:rate_limit"
	}
	config.PaymentLinkBaseURL = strings.TrimSuffix(strings.TrimSpace(config.PaymentLinkBaseURL), "/")

	// Percent knobs are coerced into sane ranges rather than failing startup.
	if config.HouseEdgePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative house edge configured; coercing to zero\" house_edge_percent=%d", config.HouseEdgePercent)
		config.HouseEdgePercent = 0
	}
	if config.HouseEdgePercent > 100 {
		log.Printf("level=warn component=config msg=\"house edge too high; capping at 100\" house_edge_percent=%d", config.HouseEdgePercent)
		config.HouseEdgePercent = 100
	}
	if config.MinReservePercent < 0 {
		config.MinReservePercent = 0
	}
	if config.MinReservePercent > 100 {
		log.Printf("level=warn component=config msg=\"min reserve too high; capping at 100\" min_reserve_percent=%d", config.MinReservePercent)
		config.MinReservePercent = 100
	}
	if config.MaxPayoutPercent <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive max payout configured; using default\" max_payout_percent=%d", config.MaxPayoutPercent)
		config.MaxPayoutPercent = 10
	}
	if config.MaxPayoutPercent > 100 {
		config.MaxPayoutPercent = 100
	}
	if config.MaxRiskPercent <= 0 || config.MaxRiskPercent > 50 {
		log.Printf("level=warn component=config msg=\"max risk out of range; using 50\" max_risk_percent=%d", config.MaxRiskPercent)
		config.MaxRiskPercent = 50
	}

	if config.JWTTTLMinutes <= 0 {
		config.JWTTTLMinutes = 60
	}
	if config.AuthNonceTTLSeconds <= 0 {
		config.AuthNonceTTLSeconds = 300
	}
	if config.ReminderBackoffHours <= 0 {
		config.ReminderBackoffHours = 24
	}
	if config.ReminderMaxCount <= 0 {
		config.ReminderMaxCount = 3
	}
	if config.ReminderLeadHours < 0 {
		config.ReminderLeadHours = 0
	}
	if config.LotteryEntryRateLimitPerMinute <= 0 {
		config.LotteryEntryRateLimitPerMinute = 10
	}
	if config.LotterySettleRateLimitPerMinute <= 0 {
		config.LotterySettleRateLimitPerMinute = 10
	}

	return
}
