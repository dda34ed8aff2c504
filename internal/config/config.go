package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                    string
	AppEnv                     string
	AppPort                    string
	DatabaseURL                string
	DatabaseMaxOpenConns       int
	DatabaseConnMaxLifetime    time.Duration
	RedisURL                   string
	NATSURL                    string
	RealtimeChannel            string
	RealtimeTick               time.Duration
	JWTSecret                  string
	AccommodationCacheTTL      time.Duration
	AccommodationMaxMultiplier float64
	SweepInterval              time.Duration
	SweepBatchSize             int
	AutosavePerMinute          int
	SeedEnabled                bool
	SeedToken                  string
	CORSAllowOrigins           string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Assessment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("realtime.channel", "gema:realtime")
	v.SetDefault("realtime.tick", "1s")
	v.SetDefault("accommodation.cache_ttl", "5m")
	v.SetDefault("accommodation.max_multiplier", 4)
	v.SetDefault("sweep.interval", "15s")
	v.SetDefault("sweep.batch_size", 100)
	v.SetDefault("rate_limit.autosave_per_minute", 120)
	v.SetDefault("seed.enabled", false)

	cacheTTL, err := parseDuration(v, "accommodation.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	sweepInterval, err := parseDuration(v, "sweep.interval")
	if err != nil {
		return Config{}, err
	}
	tick, err := parseDuration(v, "realtime.tick")
	if err != nil {
		return Config{}, err
	}
	connLifetime, err := parseDuration(v, "database.conn_max_lifetime")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                    v.GetString("app.name"),
		AppEnv:                     v.GetString("app.env"),
		AppPort:                    v.GetString("app.port"),
		DatabaseURL:                v.GetString("database.url"),
		DatabaseMaxOpenConns:       v.GetInt("database.max_open_conns"),
		DatabaseConnMaxLifetime:    connLifetime,
		RedisURL:                   v.GetString("redis.url"),
		NATSURL:                    v.GetString("nats.url"),
		RealtimeChannel:            v.GetString("realtime.channel"),
		RealtimeTick:               tick,
		JWTSecret:                  v.GetString("jwt.secret"),
		AccommodationCacheTTL:      cacheTTL,
		AccommodationMaxMultiplier: v.GetFloat64("accommodation.max_multiplier"),
		SweepInterval:              sweepInterval,
		SweepBatchSize:             v.GetInt("sweep.batch_size"),
		AutosavePerMinute:          v.GetInt("rate_limit.autosave_per_minute"),
		SeedEnabled:                v.GetBool("seed.enabled"),
		SeedToken:                  v.GetString("seed.token"),
		CORSAllowOrigins:           v.GetString("cors.allow_origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AccommodationMaxMultiplier < 1 {
		cfg.AccommodationMaxMultiplier = 4
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	if cfg.AutosavePerMinute <= 0 {
		cfg.AutosavePerMinute = 120
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}
