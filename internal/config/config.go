package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2330
	defaultEnv        = "development"

	defaultVerifyTokenTTL = 24 * time.Hour
	defaultInviteTTL      = 7 * 24 * time.Hour
)

// ErrConfiguration marks missing or malformed deployment configuration.
// Load fails fast with it so components never discover empty credentials lazily.
var ErrConfiguration = errors.New("configuration error")

// AppConfig holds runtime startup configuration loaded from YAML. It is
// constructed once at process start and passed by reference into component
// constructors; nothing reads the process environment after startup.
type AppConfig struct {
	Port           int            `yaml:"port"`
	DSN            string         `yaml:"dsn"` // MySQL DSN
	RedisURL       string         `yaml:"redis_url"`
	Env            string         `yaml:"env"` // "development" | "production"
	AllowedOrigins []string       `yaml:"allowed_origins"`
	BrandName      string         `yaml:"brand_name"`
	URL            URLConfig      `yaml:"url"`
	Mail           MailConfig     `yaml:"mail"`
	Identity       IdentityConfig `yaml:"identity"`
	Tokens         TokensConfig   `yaml:"tokens"`
}

// URLConfig carries the public base URLs links are built against.
type URLConfig struct {
	WebURL    string `yaml:"web_url"`    // admin portal frontend
	ServerURL string `yaml:"server_url"` // this API, for verify/rsvp links
}

// MailConfig configures the outbound mail provider (SMTP or Resend).
type MailConfig struct {
	Enable    bool       `yaml:"enable"`
	From      string     `yaml:"from"`
	ReplyTo   string     `yaml:"reply_to"`
	SMTP      SMTPConfig `yaml:"smtp"`
	ResendKey string     `yaml:"resend_key"`
}

type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// IdentityConfig points at the GoTrue-compatible identity provider's admin API.
type IdentityConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// TokensConfig holds token lifetimes. Zero values fall back to defaults.
type TokensConfig struct {
	VerifyTTL time.Duration `yaml:"verify_ttl"`
	InviteTTL time.Duration `yaml:"invite_ttl"`
}

// Load reads, normalizes and validates the YAML config file.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = defaultEnv
	}
	if c.Tokens.VerifyTTL <= 0 {
		c.Tokens.VerifyTTL = defaultVerifyTokenTTL
	}
	if c.Tokens.InviteTTL <= 0 {
		c.Tokens.InviteTTL = defaultInviteTTL
	}
	if strings.TrimSpace(c.BrandName) == "" {
		c.BrandName = "Incubation Program"
	}
}

// Validate checks every required field eagerly so startup fails with a
// ConfigurationError instead of a component hitting an empty credential later.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("%w: dsn is required", ErrConfiguration)
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("%w: redis_url is required", ErrConfiguration)
	}
	if err := requireBaseURL("url.server_url", c.URL.ServerURL); err != nil {
		return err
	}
	if err := requireBaseURL("url.web_url", c.URL.WebURL); err != nil {
		return err
	}
	if err := requireBaseURL("identity.url", c.Identity.URL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Identity.ServiceKey) == "" {
		return fmt.Errorf("%w: identity.service_key is required", ErrConfiguration)
	}
	if c.Mail.Enable {
		if strings.TrimSpace(c.Mail.From) == "" {
			return fmt.Errorf("%w: mail.from is required when mail is enabled", ErrConfiguration)
		}
		if strings.TrimSpace(c.Mail.ResendKey) == "" && strings.TrimSpace(c.Mail.SMTP.Host) == "" {
			return fmt.Errorf("%w: mail requires either resend_key or smtp.host", ErrConfiguration)
		}
	}
	return nil
}

func requireBaseURL(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrConfiguration, field)
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s is not a valid absolute url", ErrConfiguration, field)
	}
	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "development")
}
