package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner.
type Config struct {
	HTTPAddr       string
	DatabaseURL    string
	TelegramToken  string // empty disables the report notifier
	ReportInterval time.Duration
	GenerationTime string // HH:MM for the nightly generation pass
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "planner.db")
	v.SetDefault("REPORT_INTERVAL_HOURS", 0)
	v.SetDefault("GENERATION_TIME", "03:30")

	cfg := Config{
		HTTPAddr:       strings.TrimSpace(v.GetString("HTTP_ADDR")),
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		TelegramToken:  strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		GenerationTime: strings.TrimSpace(v.GetString("GENERATION_TIME")),
	}

	hours := v.GetInt("REPORT_INTERVAL_HOURS")
	if hours < 0 {
		return cfg, fmt.Errorf("REPORT_INTERVAL_HOURS must not be negative")
	}
	cfg.ReportInterval = time.Duration(hours) * time.Hour

	if cfg.ReportInterval > 0 && cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required when reports are enabled")
	}

	return cfg, nil
}
