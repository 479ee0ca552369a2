// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/pricing"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"auto"`

	AllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// PostgreSQL. DatabaseURL wins over the individual fields when set.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName      string `envconfig:"DB_NAME" default:"weekender"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`

	// Ephemeral order index and session event log.
	KVPath string        `envconfig:"KV_PATH" default:"./data/ephemeral.db"`
	KVTTL  time.Duration `envconfig:"KV_TTL" default:"168h"`

	// Checkout provider.
	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	YocoSecretKey     string        `envconfig:"YOCO_SECRET_KEY"`
	YocoWebhookSecret string        `envconfig:"YOCO_WEBHOOK_SECRET"`
	YocoAPIURL        string        `envconfig:"YOCO_API_URL" default:"https://payments.yoco.com/api/checkouts"`
	Currency          string        `envconfig:"CURRENCY" default:"ZAR"`
	CheckoutTimeout   time.Duration `envconfig:"CHECKOUT_TIMEOUT" default:"15s"`

	// Registration rules.
	RegistrationWindow time.Duration `envconfig:"REGISTRATION_WINDOW" default:"5m"`
	WeekendTiers       pricing.Tiers `envconfig:"WEEKEND_TIERS" default:"now:40:160000:320000,now-now:80:180000:360000,just-now:120:200000:400000,ai-tog:0:220000:440000"`
	DayPassPrice       int64         `envconfig:"DAY_PASS_PRICE" default:"90000"`
	DayPassLimit       int           `envconfig:"DAY_PASS_LIMIT" default:"60"`
	PartyPassPrice     int64         `envconfig:"PARTY_PASS_PRICE" default:"25000"`
	PartyPassLimit     int           `envconfig:"PARTY_PASS_LIMIT" default:"150"`
	RoleTolerance      int           `envconfig:"ROLE_TOLERANCE" default:"2"`

	BootcampBeginnerPrice   int64 `envconfig:"BOOTCAMP_BEGINNER_PRICE" default:"60000"`
	BootcampFastTrackPrice  int64 `envconfig:"BOOTCAMP_FAST_TRACK_PRICE" default:"80000"`
	BootcampDiscountPercent int   `envconfig:"BOOTCAMP_DISCOUNT_PERCENT" default:"50"`

	// Optional lifecycle event fan-out.
	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventExchange  string `envconfig:"EVENT_EXCHANGE" default:"weekender.events"`
	EventQueueSize int    `envconfig:"EVENT_QUEUE_SIZE" default:"256"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values envconfig cannot express.
func (c Config) Validate() error {
	if len(c.WeekendTiers) == 0 {
		return fmt.Errorf("WEEKEND_TIERS must define at least one tier")
	}
	if c.RegistrationWindow <= 0 {
		return fmt.Errorf("REGISTRATION_WINDOW must be positive")
	}
	if c.RoleTolerance < 0 {
		return fmt.Errorf("ROLE_TOLERANCE cannot be negative")
	}
	if c.BootcampDiscountPercent < 0 || c.BootcampDiscountPercent > 100 {
		return fmt.Errorf("BOOTCAMP_DISCOUNT_PERCENT must be between 0 and 100")
	}
	return nil
}

// DSN builds a libpq-compatible connection string.
func (c Config) DSN() string {
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// PaymentsConfigured reports whether a checkout can be created at all.
func (c Config) PaymentsConfigured() bool {
	return strings.TrimSpace(c.YocoSecretKey) != ""
}
