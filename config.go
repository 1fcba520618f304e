package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	DBPath   string `yaml:"db_path"`
	LockFile string `yaml:"lock_file"`

	// Admin allow-list: chat user IDs seeded into the admins table at
	// startup. Admins added at runtime via storage survive restarts.
	Admins []string `yaml:"admins"`

	EmailHost  string `yaml:"email_host"`
	EmailPort  int    `yaml:"email_port"`
	EmailUser  string `yaml:"email_user"`
	EmailPass  string `yaml:"email_pass"`
	AdminEmail string `yaml:"admin_email"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	TriageModel     string `yaml:"triage_model"`

	// Cron expression (5-field) for the stale-ticket digest to admins.
	// Empty disables the scheduler.
	ReminderSchedule string `yaml:"reminder_schedule"`

	// Lifetime of rating prompts and rating acknowledgements before the
	// bot deletes them.
	PromptTTLSeconds int `yaml:"prompt_ttl_seconds"`
}

func (c Config) PromptTTL() time.Duration {
	return time.Duration(c.PromptTTLSeconds) * time.Second
}

func (c Config) MailConfigured() bool {
	return c.EmailHost != "" && c.AdminEmail != ""
}

func LoadConfig() Config {
	var cfg Config

	// .env first, then config.yaml, then env vars override both.
	_ = godotenv.Load()

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

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.LockFile, "LOCK_FILE")
	envOverride(&cfg.EmailHost, "EMAIL_HOST")
	envOverrideInt(&cfg.EmailPort, "EMAIL_PORT")
	envOverride(&cfg.EmailUser, "EMAIL_USER")
	envOverride(&cfg.EmailPass, "EMAIL_PASS")
	envOverride(&cfg.AdminEmail, "ADMIN_EMAIL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.TriageModel, "TRIAGE_MODEL")
	envOverride(&cfg.ReminderSchedule, "REMINDER_SCHEDULE")
	envOverrideInt(&cfg.PromptTTLSeconds, "PROMPT_TTL_SECONDS")

	if ids := os.Getenv("ADMINS"); ids != "" {
		cfg.Admins = nil
		for _, id := range strings.Split(ids, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.Admins = append(cfg.Admins, id)
			}
		}
	}

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "./supportbot.db"
	}
	if cfg.LockFile == "" {
		cfg.LockFile = "bot.lock"
	}
	if cfg.EmailPort == 0 {
		cfg.EmailPort = 587
	}
	if cfg.TriageModel == "" {
		cfg.TriageModel = defaultTriageModel
	}
	if cfg.PromptTTLSeconds == 0 {
		cfg.PromptTTLSeconds = 30
	}

	// Validate required fields
	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}
	if cfg.PromptTTLSeconds < 1 {
		log.Fatalf("invalid prompt_ttl_seconds '%d': must be >= 1", cfg.PromptTTLSeconds)
	}
	if cfg.MailConfigured() && cfg.EmailUser == "" {
		log.Fatalf("email_user is required when email_host is set")
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

func (c Config) IsConfiguredAdmin(userID string) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
