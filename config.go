package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	APIToken   string `yaml:"api_token"`

	DBPath          string `yaml:"db_path"`
	ExportOutputDir string `yaml:"export_output_dir"`

	DraftDebounceMs    int    `yaml:"draft_debounce_ms"`
	AutosaveDebounceMs int    `yaml:"autosave_debounce_ms"`
	DraftPurgeSchedule string `yaml:"draft_purge_schedule"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	NotifyChannelID string `yaml:"notify_channel_id"`

	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.APIBaseURL, "API_BASE_URL")
	envOverride(&cfg.APIToken, "API_TOKEN")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ExportOutputDir, "EXPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.DraftDebounceMs, "DRAFT_DEBOUNCE_MS")
	envOverrideInt(&cfg.AutosaveDebounceMs, "AUTOSAVE_DEBOUNCE_MS")
	envOverride(&cfg.DraftPurgeSchedule, "DRAFT_PURGE_SCHEDULE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.NotifyChannelID, "NOTIFY_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")

	// Defaults
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8000"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./verifdesk.db"
	}
	if cfg.ExportOutputDir == "" {
		cfg.ExportOutputDir = "./exports"
	}
	if cfg.DraftDebounceMs == 0 {
		cfg.DraftDebounceMs = 1000
	}
	if cfg.AutosaveDebounceMs == 0 {
		cfg.AutosaveDebounceMs = 2000
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate
	if cfg.DraftDebounceMs < 0 {
		log.Fatalf("invalid draft_debounce_ms '%d': must be >= 0", cfg.DraftDebounceMs)
	}
	if cfg.AutosaveDebounceMs < 0 {
		log.Fatalf("invalid autosave_debounce_ms '%d': must be >= 0", cfg.AutosaveDebounceMs)
	}
	if cfg.SlackBotToken != "" && cfg.NotifyChannelID == "" {
		log.Fatalf("notify_channel_id is required when slack_bot_token is set")
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) DraftDebounce() time.Duration {
	return time.Duration(c.DraftDebounceMs) * time.Millisecond
}

func (c Config) AutosaveDebounce() time.Duration {
	return time.Duration(c.AutosaveDebounceMs) * time.Millisecond
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.NotifyChannelID != ""
}
