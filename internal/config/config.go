package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`
	PublicURL   string `mapstructure:"public_url"`

	// Auth
	JWTSecret     string `mapstructure:"jwt_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`

	// Grafana integration
	Grafana GrafanaConfig `mapstructure:"grafana"`

	// Webhook pipeline tuning
	DedupWindowSeconds int    `mapstructure:"dedup_window_seconds"`
	DefaultTeamID      string `mapstructure:"default_team_id"`
}

type GrafanaConfig struct {
	URL      string `mapstructure:"url"`
	APIToken string `mapstructure:"api_token"`
	OrgID    int    `mapstructure:"org_id"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present so 'go run' works without exporting env vars.
	// Missing .env is fine (Docker/production pass real env).
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()

	// Set default values
	v.SetDefault("port", "8080")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("dedup_window_seconds", 300)
	v.SetDefault("grafana.org_id", 1)

	// Config file settings
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("casetools")

	// Bind standard environment variables (Docker/deploy compatibility)
	// This allows using standard keys like DATABASE_URL instead of casetools_DATABASE_URL
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("public_url", "PUBLIC_URL")

	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("webhook_secret", "WEBHOOK_SECRET")

	_ = v.BindEnv("grafana.url", "GRAFANA_URL")
	_ = v.BindEnv("grafana.api_token", "GRAFANA_API_TOKEN")
	_ = v.BindEnv("grafana.org_id", "GRAFANA_ORG_ID")

	_ = v.BindEnv("dedup_window_seconds", "DEDUP_WINDOW_SECONDS")
	_ = v.BindEnv("default_team_id", "DEFAULT_TEAM_ID")

	v.AutomaticEnv()

	// 1. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	// 2. Unmarshal into struct
	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	// 3. Backfill environment variables for code paths that still use os.Getenv()
	setEnvIfEmpty("DATABASE_URL", App.DatabaseURL)
	setEnvIfEmpty("REDIS_URL", App.RedisURL)
	setEnvIfEmpty("PORT", App.Port)
	setEnvIfEmpty("JWT_SECRET", App.JWTSecret)
	setEnvIfEmpty("WEBHOOK_SECRET", App.WebhookSecret)
	setEnvIfEmpty("GRAFANA_URL", App.Grafana.URL)
	setEnvIfEmpty("GRAFANA_API_TOKEN", App.Grafana.APIToken)

	return nil
}

func setEnvIfEmpty(key, value string) {
	if value != "" && os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
