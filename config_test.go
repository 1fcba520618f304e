package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearConfigEnv pins every config-related variable for the test so
// values leaking in from the host environment cannot skew assertions.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "DB_PATH", "LOCK_FILE",
		"EMAIL_HOST", "EMAIL_PORT", "EMAIL_USER", "EMAIL_PASS", "ADMIN_EMAIL",
		"ANTHROPIC_API_KEY", "TRIAGE_MODEL", "REMINDER_SCHEDULE",
		"PROMPT_TTL_SECONDS", "ADMINS", "CONFIG_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestEnvOverride(t *testing.T) {
	clearConfigEnv(t)

	field := "from-yaml"
	envOverride(&field, "DB_PATH")
	if field != "from-yaml" {
		t.Errorf("empty env overwrote field: %q", field)
	}

	t.Setenv("DB_PATH", "/tmp/override.db")
	envOverride(&field, "DB_PATH")
	if field != "/tmp/override.db" {
		t.Errorf("env override not applied: %q", field)
	}

	port := 587
	envOverrideInt(&port, "EMAIL_PORT")
	if port != 587 {
		t.Errorf("empty env overwrote int field: %d", port)
	}
	t.Setenv("EMAIL_PORT", "2525")
	envOverrideInt(&port, "EMAIL_PORT")
	if port != 2525 {
		t.Errorf("int env override not applied: %d", port)
	}
}

func TestLoadConfigDefaultsAndYaml(t *testing.T) {
	clearConfigEnv(t)

	yaml := `
slack_bot_token: xoxb-test
slack_app_token: xapp-test
admins:
  - U0ADMIN1
  - U0ADMIN2
email_host: smtp.example.com
email_user: bot@example.com
admin_email: support@example.com
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg := LoadConfig()

	if cfg.SlackBotToken != "xoxb-test" || cfg.SlackAppToken != "xapp-test" {
		t.Errorf("tokens not loaded: %+v", cfg)
	}
	if cfg.DBPath != "./supportbot.db" {
		t.Errorf("db_path default = %q", cfg.DBPath)
	}
	if cfg.LockFile != "bot.lock" {
		t.Errorf("lock_file default = %q", cfg.LockFile)
	}
	if cfg.EmailPort != 587 {
		t.Errorf("email_port default = %d", cfg.EmailPort)
	}
	if cfg.TriageModel != defaultTriageModel {
		t.Errorf("triage_model default = %q", cfg.TriageModel)
	}
	if cfg.PromptTTL() != 30*time.Second {
		t.Errorf("prompt ttl default = %s", cfg.PromptTTL())
	}
	if len(cfg.Admins) != 2 || cfg.Admins[0] != "U0ADMIN1" {
		t.Errorf("admins = %v", cfg.Admins)
	}
	if !cfg.MailConfigured() {
		t.Error("mail should be configured")
	}
	if !cfg.IsConfiguredAdmin("U0ADMIN2") || cfg.IsConfiguredAdmin("U0NOBODY") {
		t.Error("IsConfiguredAdmin mismatch")
	}
}

func TestLoadConfigEnvOverridesYaml(t *testing.T) {
	clearConfigEnv(t)

	yaml := `
slack_bot_token: xoxb-yaml
slack_app_token: xapp-yaml
db_path: /data/from-yaml.db
prompt_ttl_seconds: 30
admins:
  - U0FROMYAML
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("DB_PATH", "/data/from-env.db")
	t.Setenv("PROMPT_TTL_SECONDS", "10")
	t.Setenv("ADMINS", "U1, U2 ,U3")

	cfg := LoadConfig()

	if cfg.SlackBotToken != "xoxb-env" {
		t.Errorf("env should beat yaml: %q", cfg.SlackBotToken)
	}
	if cfg.SlackAppToken != "xapp-yaml" {
		t.Errorf("yaml value lost: %q", cfg.SlackAppToken)
	}
	if cfg.DBPath != "/data/from-env.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
	if cfg.PromptTTL() != 10*time.Second {
		t.Errorf("prompt ttl = %s", cfg.PromptTTL())
	}
	if len(cfg.Admins) != 3 || cfg.Admins[1] != "U2" {
		t.Errorf("ADMINS env not parsed: %v", cfg.Admins)
	}
}

func TestMailConfigured(t *testing.T) {
	if (Config{}).MailConfigured() {
		t.Error("empty config reports mail configured")
	}
	if (Config{EmailHost: "smtp.example.com"}).MailConfigured() {
		t.Error("missing admin_email still reports configured")
	}
	if !(Config{EmailHost: "smtp.example.com", AdminEmail: "a@b"}).MailConfigured() {
		t.Error("host + admin_email should be enough")
	}
}
