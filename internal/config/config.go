package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	KafkaBrokers       []string `mapstructure:"KAFKA_BROKERS"`
	BookingEventsTopic string   `mapstructure:"KAFKA_BOOKING_EVENTS_TOPIC"`
	KafkaGroupID       string   `mapstructure:"KAFKA_GROUP_ID"`

	RTCAppID  string `mapstructure:"RTC_APP_ID"`
	RTCSecret string `mapstructure:"RTC_SECRET"`

	TickInterval time.Duration `mapstructure:"TICK_INTERVAL"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("KAFKA_BOOKING_EVENTS_TOPIC", "booking-events")
	v.SetDefault("KAFKA_GROUP_ID", "sens-worker")
	v.SetDefault("TICK_INTERVAL", "60s")
	v.SetDefault("CORS_ORIGINS", "*")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("KAFKA_BROKERS")
	v.BindEnv("KAFKA_BOOKING_EVENTS_TOPIC")
	v.BindEnv("KAFKA_GROUP_ID")
	v.BindEnv("RTC_APP_ID")
	v.BindEnv("RTC_SECRET")
	v.BindEnv("TICK_INTERVAL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.KafkaBrokers == nil {
		brokers := v.GetString("KAFKA_BROKERS")
		if brokers != "" {
			cfg.KafkaBrokers = strings.Split(brokers, ",")
		}
	}
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = strings.Split(v.GetString("CORS_ORIGINS"), ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be set so that real authentication is enforced, and the
// RTC credentials must be present for room entry to work.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV is %q", c.Env)
	}
	if !c.IsDev() && (c.RTCAppID == "" || c.RTCSecret == "") {
		return fmt.Errorf("RTC_APP_ID and RTC_SECRET are required when ENV is %q", c.Env)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	return nil
}
