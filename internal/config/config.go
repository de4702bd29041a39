package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

// Config represents the runner configuration
type Config struct {
	Webmail         WebmailConfig     `mapstructure:"webmail" yaml:"webmail"`
	Credentials     CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Recipient       string            `mapstructure:"recipient" yaml:"recipient"`
	DataFile        string            `mapstructure:"data_file" yaml:"data_file"`
	InvalidUsername string            `mapstructure:"invalid_username" yaml:"invalid_username"`
	Browser         BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Timeouts        TimeoutsConfig    `mapstructure:"timeouts" yaml:"timeouts"`
	Mailbox         MailboxConfig     `mapstructure:"mailbox" yaml:"mailbox"`
	Report          ReportConfig      `mapstructure:"report" yaml:"report"`
	Metrics         MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Logging         LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Schedule        ScheduleConfig    `mapstructure:"schedule" yaml:"schedule"`
}

type WebmailConfig struct {
	BaseURL             string `mapstructure:"base_url" yaml:"base_url"`
	InboxURL            string `mapstructure:"inbox_url" yaml:"inbox_url"`
	LogoutURL           string `mapstructure:"logout_url" yaml:"logout_url"`
	HandleInterstitials bool   `mapstructure:"-" yaml:"handle_interstitials"`
}

type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Present reports whether both username and password are configured.
func (c CredentialsConfig) Present() bool {
	return c.Username != "" && c.Password != ""
}

type BrowserConfig struct {
	Engine       string        `mapstructure:"engine" yaml:"engine"`
	Channel      string        `mapstructure:"channel" yaml:"channel"`
	Headless     bool          `mapstructure:"headless" yaml:"headless"`
	SlowMo       time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	StorageState string        `mapstructure:"storage_state" yaml:"storage_state"`
	Viewport     struct {
		Width  int `mapstructure:"width" yaml:"width"`
		Height int `mapstructure:"height" yaml:"height"`
	} `mapstructure:"viewport" yaml:"viewport"`
	ArtifactsDir string `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	Screenshots  bool   `mapstructure:"screenshots" yaml:"screenshots"`
	Videos       bool   `mapstructure:"videos" yaml:"videos"`
	Install      bool   `mapstructure:"install" yaml:"install"`
}

type TimeoutsConfig struct {
	Action         time.Duration `mapstructure:"action" yaml:"action"`
	Interstitial   time.Duration `mapstructure:"interstitial" yaml:"interstitial"`
	Identifier     time.Duration `mapstructure:"identifier" yaml:"identifier"`
	BlockedNotice  time.Duration `mapstructure:"blocked_notice" yaml:"blocked_notice"`
	Login          time.Duration `mapstructure:"login" yaml:"login"`
	ComposeOpen    time.Duration `mapstructure:"compose_open" yaml:"compose_open"`
	SendSuccess    time.Duration `mapstructure:"send_success" yaml:"send_success"`
	SendValidation time.Duration `mapstructure:"send_validation" yaml:"send_validation"`
	Cleanup        time.Duration `mapstructure:"cleanup" yaml:"cleanup"`
	SentLookup     time.Duration `mapstructure:"sent_lookup" yaml:"sent_lookup"`
	RecipientCheck time.Duration `mapstructure:"recipient_check" yaml:"recipient_check"`
	SignOutMenu    time.Duration `mapstructure:"sign_out_menu" yaml:"sign_out_menu"`
	SignOut        time.Duration `mapstructure:"sign_out" yaml:"sign_out"`
	Scenario       time.Duration `mapstructure:"scenario" yaml:"scenario"`
}

// MailboxConfig enables the IMAP cross-check of the sent folder.
type MailboxConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Insecure     bool          `mapstructure:"insecure" yaml:"insecure"`
	SentFolder   string        `mapstructure:"sent_folder" yaml:"sent_folder"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

type ReportConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Textfile  string `mapstructure:"textfile" yaml:"textfile"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ScheduleConfig struct {
	Spec       string `mapstructure:"spec" yaml:"spec"`
	RunOnStart bool   `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// legacyEnv maps config keys to the environment names older suites used.
var legacyEnv = map[string]string{
	"credentials.username":         "GMAIL_USERNAME",
	"credentials.password":         "GMAIL_PASSWORD",
	"recipient":                    "RECIPIENT_EMAIL",
	"webmail.handle_interstitials": "GMAIL_HANDLE_INTERSTITIALS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("webmail.base_url", "https://mail.google.com/")
	v.SetDefault("webmail.inbox_url", "https://mail.google.com/mail/u/0/#inbox")
	v.SetDefault("webmail.logout_url", "https://accounts.google.com/Logout")
	v.SetDefault("webmail.handle_interstitials", "true")

	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("recipient", "")
	v.SetDefault("data_file", "testdata/emails.yaml")
	v.SetDefault("invalid_username", "")

	v.SetDefault("browser.engine", "chromium")
	v.SetDefault("browser.channel", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", 0)
	v.SetDefault("browser.storage_state", "")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.artifacts_dir", "artifacts")
	v.SetDefault("browser.screenshots", true)
	v.SetDefault("browser.videos", false)
	v.SetDefault("browser.install", false)

	v.SetDefault("timeouts.action", 30*time.Second)
	v.SetDefault("timeouts.interstitial", 2*time.Second)
	v.SetDefault("timeouts.identifier", 15*time.Second)
	v.SetDefault("timeouts.blocked_notice", 20*time.Second)
	v.SetDefault("timeouts.login", 30*time.Second)
	v.SetDefault("timeouts.compose_open", 10*time.Second)
	v.SetDefault("timeouts.send_success", 10*time.Second)
	v.SetDefault("timeouts.send_validation", 8*time.Second)
	v.SetDefault("timeouts.cleanup", 5*time.Second)
	v.SetDefault("timeouts.sent_lookup", 20*time.Second)
	v.SetDefault("timeouts.recipient_check", time.Second)
	v.SetDefault("timeouts.sign_out_menu", 5*time.Second)
	v.SetDefault("timeouts.sign_out", 30*time.Second)
	v.SetDefault("timeouts.scenario", 3*time.Minute)

	v.SetDefault("mailbox.enabled", false)
	v.SetDefault("mailbox.addr", "imap.gmail.com:993")
	v.SetDefault("mailbox.username", "")
	v.SetDefault("mailbox.password", "")
	v.SetDefault("mailbox.insecure", false)
	v.SetDefault("mailbox.sent_folder", "[Gmail]/Sent Mail")
	v.SetDefault("mailbox.poll_interval", 3*time.Second)
	v.SetDefault("mailbox.timeout", time.Minute)
	v.SetDefault("mailbox.dial_timeout", 10*time.Second)

	v.SetDefault("report.path", "")
	v.SetDefault("metrics.namespace", "mailflow")
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("schedule.spec", "@every 30m")
	v.SetDefault("schedule.run_on_start", true)
}

// Source is a loaded configuration file plus its environment overrides.
type Source struct {
	v *viper.Viper
}

// Open reads configuration from path, or from mailflow.yaml in the working
// directory when path is empty. A missing default file is not an error. A
// .env file in the working directory is loaded first; variables already set
// in the environment are not overwritten.
func Open(path string) (*Source, error) {
	if err := gotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("mailflow")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("MAILFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "MAILFLOW_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	return &Source{v: v}, nil
}

// File returns the configuration file in use, empty when running on
// defaults and environment only.
func (s *Source) File() string {
	return s.v.ConfigFileUsed()
}

// Config resolves and validates the current configuration.
func (s *Source) Config() (*Config, error) {
	cfg := &Config{}
	if err := s.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// Read as a string so that any value other than false, 0 or no keeps
	// interstitial handling on.
	cfg.Webmail.HandleInterstitials = ParseToggle(s.v.GetString("webmail.handle_interstitials"))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch calls fn with the reloaded configuration every time the config file
// changes. Reloads that fail validation are logged and skipped.
func (s *Source) Watch(logger *zap.Logger, fn func(*Config)) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.File() == "" {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed", zap.String("file", e.Name), zap.Stringer("op", e.Op))
		cfg, err := s.Config()
		if err != nil {
			logger.Error("failed to reload config", zap.Error(err))
			return
		}
		fn(cfg)
	})
	s.v.WatchConfig()
}

// Load opens path and resolves the configuration in one step.
func Load(path string) (*Config, error) {
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	return src.Config()
}

// ParseToggle reads an on-by-default flag: only false, 0 and no
// (case-insensitive) disable it.
func ParseToggle(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "false", "0", "no":
		return false
	default:
		return true
	}
}

const redactedValue = "********"

// Redacted returns a copy with secrets masked, suitable for printing.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Credentials.Password != "" {
		out.Credentials.Password = redactedValue
	}
	if out.Mailbox.Password != "" {
		out.Mailbox.Password = redactedValue
	}
	return &out
}
