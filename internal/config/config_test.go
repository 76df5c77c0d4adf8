package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
environment: dev

settings:
  timezone: America/New_York
  schedule:
    generate: {dow: thursday, time: "08:30"}
    lock: {dow: MONDAY, time: "17:00"}
    send: {dow: monday, time: "17:15"}

mail:
  transport: graph
  sender_upn: news@example.com
  reply_to: sales@example.com
  timeout_seconds: 10

content:
  provider: openai
  image_allowlist:
    - https://assets.example.com/a.png
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.True(t, cfg.IsDev())

	assert.Equal(t, "America/New_York", cfg.Settings.Timezone)
	assert.Equal(t, "THURSDAY", cfg.Settings.Schedule.Generate.Weekday)
	assert.Equal(t, "08:30", cfg.Settings.Schedule.Generate.Time)
	assert.Equal(t, "MONDAY", cfg.Settings.Schedule.Send.Weekday)
	assert.NoError(t, cfg.Settings.Validate())

	assert.Equal(t, "graph", cfg.Mail.Transport)
	assert.Equal(t, 10*time.Second, cfg.Mail.Timeout())
	assert.Equal(t, "openai", cfg.Content.Provider)
	assert.Len(t, cfg.Content.ImageAllowlist, 1)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "America/Chicago", cfg.Settings.Timezone)
	assert.Equal(t, "FRIDAY", cfg.Settings.Schedule.Generate.Weekday)
	assert.Equal(t, "09:00", cfg.Settings.Schedule.Generate.Time)
	assert.Equal(t, "TUESDAY", cfg.Settings.Schedule.Lock.Weekday)
	assert.Equal(t, "09:45", cfg.Settings.Schedule.Lock.Time)
	assert.Equal(t, "TUESDAY", cfg.Settings.Schedule.Send.Weekday)
	assert.Equal(t, "10:00", cfg.Settings.Schedule.Send.Time)
	assert.Equal(t, "log", cfg.Mail.Transport)
	assert.Equal(t, 30*time.Second, cfg.Mail.Timeout())
	assert.Equal(t, "mock", cfg.Content.Provider)
	assert.Equal(t, 60*time.Second, cfg.Content.Timeout())
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "%%unsubscribe%%", cfg.Render.UnsubscribeURL)
	assert.Equal(t, 55*time.Second, cfg.Worker.LockTTL())
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
settings:
  timezone: America/Denver
mail:
  sender_upn: file@example.com
`)

	t.Setenv("TIMEZONE", "America/Los_Angeles")
	t.Setenv("SCHEDULE_SEND_DOW", "wednesday")
	t.Setenv("SCHEDULE_SEND_TIME", "11:30")
	t.Setenv("SENDER_MAILBOX", "legacy@example.com")
	t.Setenv("MAIL_SENDER_UPN", "env@example.com")
	t.Setenv("MS_TENANT_ID", "tenant-legacy")
	t.Setenv("GRAPH_TENANT_ID", "tenant-env")
	t.Setenv("OPEN_AI_KEY", "sk-test")
	t.Setenv("PORT", "9999")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "America/Los_Angeles", cfg.Settings.Timezone)
	assert.Equal(t, "WEDNESDAY", cfg.Settings.Schedule.Send.Weekday)
	assert.Equal(t, "11:30", cfg.Settings.Schedule.Send.Time)
	assert.Equal(t, "env@example.com", cfg.Mail.SenderUPN)
	assert.Equal(t, "tenant-env", cfg.Graph.TenantID)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadFromEnv_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "dev")
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "America/Chicago", cfg.Settings.Timezone)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_BadInt(t *testing.T) {
	t.Setenv("MAIL_TIMEOUT_SECONDS", "soon")
	_, err := LoadFromEnv("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAIL_TIMEOUT_SECONDS")
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	base := func() Settings {
		cfg, err := Load(writeConfig(t, "{}\n"))
		require.NoError(t, err)
		return cfg.Settings
	}

	s := base()
	s.Timezone = "Mars/Olympus"
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMEZONE")

	s = base()
	s.Schedule.Lock.Weekday = "TUES"
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULE_LOCK_DOW")

	s = base()
	s.Schedule.Send.Time = "10:5"
	s.Schedule.Generate.Time = "25:00"
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULE_SEND_TIME")
	assert.Contains(t, err.Error(), "SCHEDULE_GENERATE_TIME")
}

func TestMailIdentity(t *testing.T) {
	cfg := &Config{Environment: EnvDev}
	sender, reply := cfg.MailIdentity()
	assert.Equal(t, StubSender, sender)
	assert.Equal(t, StubReplyTo, reply)

	cfg = &Config{Environment: EnvProduction}
	sender, reply = cfg.MailIdentity()
	assert.Empty(t, sender)
	assert.Empty(t, reply)

	cfg.Mail.SenderUPN, cfg.Mail.ReplyTo = " news@example.com ", "sales@example.com"
	sender, reply = cfg.MailIdentity()
	assert.Equal(t, "news@example.com", sender)
	assert.Equal(t, "sales@example.com", reply)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg.Database.URL = "postgres://localhost/weekly"
	cfg.Mail.Transport = "pigeon"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAIL_TRANSPORT")

	cfg.Mail.Transport = "ses"
	cfg.Content.Provider = "openai"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DevStandInsRejectedInProduction(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	require.Equal(t, EnvProduction, cfg.Environment)
	cfg.Database.URL = "postgres://localhost/weekly"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAIL_TRANSPORT=log")
	assert.Contains(t, err.Error(), "CONTENT_PROVIDER=mock")

	cfg.Mail.Transport = "graph"
	err = cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "MAIL_TRANSPORT")
	assert.Contains(t, err.Error(), "CONTENT_PROVIDER=mock")

	cfg.Content.Provider = "bedrock"
	assert.NoError(t, cfg.Validate())

	cfg.Environment = EnvDev
	cfg.Mail.Transport, cfg.Content.Provider = "log", "mock"
	assert.NoError(t, cfg.Validate())
}
