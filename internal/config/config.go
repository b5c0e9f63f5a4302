// Package config reads process configuration from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	Port           string
	PostgresURL    string
	MigrationsPath string

	JWTSecret string
	JWTTTL    time.Duration

	OrderNumberPrefix string
	ZeroFeeCity       string
	Location          *time.Location

	KafkaBrokers   []string
	AnalyticsTopic string
	AnalyticsGroup string

	MongoURL string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MenuCacheTTL  time.Duration

	OTLPEndpoint string
}

// Load reads the configuration. A missing .env file is not an error; values
// already present in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Env:               os.Getenv("ENV"),
		Port:              getEnv("PORT", "8080"),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		MigrationsPath:    getEnv("MIGRATIONS_PATH", "file://migrations"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		OrderNumberPrefix: getEnv("ORDER_NUMBER_PREFIX", "VG"),
		ZeroFeeCity:       getEnv("ZERO_FEE_CITY", "Bordeaux"),
		KafkaBrokers:      splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		AnalyticsTopic:    getEnv("ANALYTICS_TOPIC", "order.summary"),
		AnalyticsGroup:    getEnv("ANALYTICS_GROUP", "analytics-worker"),
		MongoURL:          os.Getenv("MONGO_URL"),
		MongoDB:           getEnv("MONGO_DB", "catering"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.JWTTTL, err = durationEnv("JWT_TTL", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MenuCacheTTL, err = durationEnv("MENU_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}

	tz := getEnv("TIMEZONE", "Europe/Paris")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", tz, err)
	}

	return cfg, nil
}

// Require reports every listed key that is unset or blank.
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(os.Getenv(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) Development() bool {
	return c.Env == "development"
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
