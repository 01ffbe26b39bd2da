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
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	JWTSecret        string
	JWTRefreshSecret string
	TemplateStoreURL string
	TemplateTimeout  time.Duration
	ReviewCacheTTL   time.Duration
	Levels           []string

	// Signature gating policy. When RestrictSignatures is on, the exempt
	// scope flags decide which signature types skip completion gating for
	// scoped actors.
	RestrictSignatures bool
	ExemptStandard     bool
	ExemptEndOfYear    bool
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
	v.SetEnvPrefix("CARNET")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Carnet API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("review.cache_ttl", "2m")
	v.SetDefault("template.timeout", "10s")
	v.SetDefault("gating.restrict_signatures", false)
	v.SetDefault("gating.exempt_standard", false)
	v.SetDefault("gating.exempt_end_of_year", false)

	ttlString := v.GetString("review.cache_ttl")
	if ttlString == "" {
		ttlString = "2m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid review cache ttl: %w", err)
	}

	timeoutString := v.GetString("template.timeout")
	if timeoutString == "" {
		timeoutString = "10s"
	}

	templateTimeout, err := time.ParseDuration(timeoutString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid template timeout: %w", err)
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		JWTSecret:          v.GetString("jwt.secret"),
		JWTRefreshSecret:   v.GetString("jwt.refresh_secret"),
		TemplateStoreURL:   v.GetString("template.store_url"),
		TemplateTimeout:    templateTimeout,
		ReviewCacheTTL:     ttl,
		Levels:             parseLevels(v.GetString("levels")),
		RestrictSignatures: v.GetBool("gating.restrict_signatures"),
		ExemptStandard:     v.GetBool("gating.exempt_standard"),
		ExemptEndOfYear:    v.GetBool("gating.exempt_end_of_year"),
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	return cfg, nil
}

// parseLevels splits a comma-separated level ladder override, preserving the
// configured order.
func parseLevels(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	levels := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			levels = append(levels, trimmed)
		}
	}
	return levels
}
