package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/weekly-campaign/internal/schedule"
)

// Environment names.
const (
	EnvDev        = "dev"
	EnvProduction = "production"
)

// Dev-only stand-ins for the mail identity.
const (
	StubSender  = "stub-sender@example.com"
	StubReplyTo = "stub-replyto@example.com"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Environment string         `yaml:"environment"`
	LogLevel    string         `yaml:"log_level"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Settings    Settings       `yaml:"settings"`
	Mail        MailConfig     `yaml:"mail"`
	Graph       GraphConfig    `yaml:"graph"`
	SES         SESConfig      `yaml:"ses"`
	SMTP        SMTPConfig     `yaml:"smtp"`
	Content     ContentConfig  `yaml:"content"`
	OpenAI      OpenAIConfig   `yaml:"openai"`
	Bedrock     BedrockConfig  `yaml:"bedrock"`
	Render      RenderConfig   `yaml:"render"`
	Worker      WorkerConfig   `yaml:"worker"`
}

// IsDev reports whether dev-only behavior (tick "now" override, /dev
// routes, stub identity, memory store) is allowed.
func (c *Config) IsDev() bool { return c.Environment == EnvDev }

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// DatabaseConfig holds the Postgres connection. An empty URL selects the
// in-memory store, which is allowed only in dev.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds the optional Redis used for the worker's tick lock.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Settings is the timezone plus the three weekly triggers.
type Settings struct {
	Timezone string         `yaml:"timezone" json:"timezone"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
}

// ScheduleConfig holds one trigger per stage.
type ScheduleConfig struct {
	Generate schedule.Trigger `yaml:"generate" json:"generate"`
	Lock     schedule.Trigger `yaml:"lock" json:"lock"`
	Send     schedule.Trigger `yaml:"send" json:"send"`
}

// Normalize trims values and upper-cases weekdays.
func (s *Settings) Normalize() {
	s.Timezone = strings.TrimSpace(s.Timezone)
	s.Schedule.Generate = s.Schedule.Generate.Normalize()
	s.Schedule.Lock = s.Schedule.Lock.Normalize()
	s.Schedule.Send = s.Schedule.Send.Normalize()
}

// Validate checks the timezone and every trigger. Errors name the env var
// that controls the bad value.
func (s Settings) Validate() error {
	if _, err := schedule.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", s.Timezone, err)
	}
	stages := []struct {
		name string
		t    schedule.Trigger
	}{
		{"GENERATE", s.Schedule.Generate},
		{"LOCK", s.Schedule.Lock},
		{"SEND", s.Schedule.Send},
	}
	var errs []error
	for _, st := range stages {
		if !schedule.ValidWeekday(st.t.Weekday) {
			errs = append(errs, fmt.Errorf("invalid SCHEDULE_%s_DOW: %q", st.name, st.t.Weekday))
		}
		if !schedule.ValidTime(st.t.Time) {
			errs = append(errs, fmt.Errorf("invalid SCHEDULE_%s_TIME: %q (expected HH:MM 24h)", st.name, st.t.Time))
		}
	}
	return errors.Join(errs...)
}

// Location resolves the timezone. Call Validate first.
func (s Settings) Location() (*time.Location, error) {
	return schedule.LoadLocation(s.Timezone)
}

// MailConfig holds the outbound transport choice and sender identity.
type MailConfig struct {
	Transport      string `yaml:"transport"`
	SenderUPN      string `yaml:"sender_upn"`
	ReplyTo        string `yaml:"reply_to"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-delivery timeout.
func (c MailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GraphConfig holds Microsoft Graph app credentials.
type GraphConfig struct {
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	BaseURL         string `yaml:"base_url"`
	AuthorityURL    string `yaml:"authority_url"`
	SaveToSentItems bool   `yaml:"save_to_sent_items"`
}

// SESConfig holds AWS SES v2 settings.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SMTPConfig holds a plain SMTP relay.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ContentConfig selects the content provider.
type ContentConfig struct {
	Provider       string   `yaml:"provider"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	PolicyPath     string   `yaml:"policy_path"`
	ImageAllowlist []string `yaml:"image_allowlist"`
}

// Timeout returns the per-generation timeout.
func (c ContentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// BedrockConfig holds AWS Bedrock settings.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// RenderConfig holds the email layout and its fixed links.
type RenderConfig struct {
	TemplatePath    string `yaml:"template_path"`
	CTAURL          string `yaml:"cta_url"`
	UnsubscribeURL  string `yaml:"unsubscribe_url"`
	ManagePrefsURL  string `yaml:"manage_prefs_url"`
	AssetLibraryURL string `yaml:"asset_library_url"`
}

// WorkerConfig holds the tick loop settings.
type WorkerConfig struct {
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the tick lock TTL.
func (c WorkerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvProduction
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}

	s := &cfg.Settings
	if s.Timezone == "" {
		s.Timezone = "America/Chicago"
	}
	setTrigger(&s.Schedule.Generate, "FRIDAY", "09:00")
	setTrigger(&s.Schedule.Lock, "TUESDAY", "09:45")
	setTrigger(&s.Schedule.Send, "TUESDAY", "10:00")
	s.Normalize()

	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = "log"
	}
	if cfg.Mail.TimeoutSeconds == 0 {
		cfg.Mail.TimeoutSeconds = 30
	}
	if cfg.Graph.BaseURL == "" {
		cfg.Graph.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.Graph.AuthorityURL == "" {
		cfg.Graph.AuthorityURL = "https://login.microsoftonline.com"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Content.Provider == "" {
		cfg.Content.Provider = "mock"
	}
	if cfg.Content.TimeoutSeconds == 0 {
		cfg.Content.TimeoutSeconds = 60
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Render.CTAURL == "" {
		cfg.Render.CTAURL = "#"
	}
	if cfg.Render.UnsubscribeURL == "" {
		cfg.Render.UnsubscribeURL = "%%unsubscribe%%"
	}
	if cfg.Render.ManagePrefsURL == "" {
		cfg.Render.ManagePrefsURL = cfg.Render.UnsubscribeURL
	}
	if cfg.Worker.LockTTLSeconds == 0 {
		cfg.Worker.LockTTLSeconds = 55
	}
}

func setTrigger(t *schedule.Trigger, dow, hhmm string) {
	if strings.TrimSpace(t.Weekday) == "" {
		t.Weekday = dow
	}
	if strings.TrimSpace(t.Time) == "" {
		t.Time = hhmm
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first so secrets can live in .env
// locally and in real env vars in production. A missing YAML file is not an
// error; defaults and env vars are used instead.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) || path == "" {
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Server.Host, "HOST")
	if err := setInt(&cfg.Server.Port, "PORT"); err != nil {
		return nil, err
	}
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")

	setString(&cfg.Settings.Timezone, "TIMEZONE")
	setString(&cfg.Settings.Schedule.Generate.Weekday, "SCHEDULE_GENERATE_DOW")
	setString(&cfg.Settings.Schedule.Generate.Time, "SCHEDULE_GENERATE_TIME")
	setString(&cfg.Settings.Schedule.Lock.Weekday, "SCHEDULE_LOCK_DOW")
	setString(&cfg.Settings.Schedule.Lock.Time, "SCHEDULE_LOCK_TIME")
	setString(&cfg.Settings.Schedule.Send.Weekday, "SCHEDULE_SEND_DOW")
	setString(&cfg.Settings.Schedule.Send.Time, "SCHEDULE_SEND_TIME")
	cfg.Settings.Normalize()

	setString(&cfg.Mail.Transport, "MAIL_TRANSPORT")
	setString(&cfg.Mail.SenderUPN, "SENDER_MAILBOX", "MAIL_SENDER_UPN")
	setString(&cfg.Mail.ReplyTo, "REPLY_TO")
	if err := setInt(&cfg.Mail.TimeoutSeconds, "MAIL_TIMEOUT_SECONDS"); err != nil {
		return nil, err
	}

	setString(&cfg.Graph.TenantID, "MS_TENANT_ID", "GRAPH_TENANT_ID")
	setString(&cfg.Graph.ClientID, "MS_CLIENT_ID", "GRAPH_CLIENT_ID")
	setString(&cfg.Graph.ClientSecret, "MS_CLIENT_SECRET", "GRAPH_CLIENT_SECRET")

	setString(&cfg.SES.Region, "AWS_SES_REGION")
	setString(&cfg.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.SES.ConfigurationSet, "AWS_SES_CONFIGURATION_SET")

	setString(&cfg.SMTP.Host, "SMTP_HOST")
	if err := setInt(&cfg.SMTP.Port, "SMTP_PORT"); err != nil {
		return nil, err
	}
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")

	setString(&cfg.Content.Provider, "CONTENT_PROVIDER")
	setString(&cfg.Content.PolicyPath, "POLICY_PATH")
	if err := setInt(&cfg.Content.TimeoutSeconds, "CONTENT_TIMEOUT_SECONDS"); err != nil {
		return nil, err
	}
	setString(&cfg.OpenAI.APIKey, "OPEN_AI_KEY")
	setString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.Bedrock.Region, "BEDROCK_REGION")
	setString(&cfg.Bedrock.ModelID, "BEDROCK_MODEL_ID")

	setString(&cfg.Render.TemplatePath, "TEMPLATE_PATH")
	setString(&cfg.Render.UnsubscribeURL, "UNSUBSCRIBE_URL")
	setString(&cfg.Render.CTAURL, "CTA_URL")

	return cfg, nil
}

// MailIdentity returns the sender mailbox and reply-to. In dev, missing
// values fall back to stub addresses; elsewhere they are returned empty and
// the send stage refuses to run.
func (c *Config) MailIdentity() (sender, replyTo string) {
	sender = strings.TrimSpace(c.Mail.SenderUPN)
	replyTo = strings.TrimSpace(c.Mail.ReplyTo)
	if c.IsDev() {
		if sender == "" {
			sender = StubSender
		}
		if replyTo == "" {
			replyTo = StubReplyTo
		}
	}
	return sender, replyTo
}

// Validate checks everything that must be right before serving.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment != EnvDev && c.Environment != EnvProduction {
		errs = append(errs, fmt.Errorf("invalid ENVIRONMENT %q (expected dev or production)", c.Environment))
	}
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Database.URL == "" && !c.IsDev() {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required outside dev"))
	}
	switch c.Mail.Transport {
	case "log", "graph", "ses", "smtp":
	default:
		errs = append(errs, fmt.Errorf("invalid MAIL_TRANSPORT %q", c.Mail.Transport))
	}
	switch c.Content.Provider {
	case "mock", "openai", "bedrock":
	default:
		errs = append(errs, fmt.Errorf("invalid CONTENT_PROVIDER %q", c.Content.Provider))
	}
	if !c.IsDev() {
		// The dev stand-ins would silently drop mail and invent copy.
		if c.Mail.Transport == "log" {
			errs = append(errs, fmt.Errorf("MAIL_TRANSPORT=log is only allowed in dev"))
		}
		if c.Content.Provider == "mock" {
			errs = append(errs, fmt.Errorf("CONTENT_PROVIDER=mock is only allowed in dev"))
		}
	}
	return errors.Join(errs...)
}

// setString overwrites dst with the last of names that is set.
func setString(dst *string, names ...string) {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = n
	return nil
}
