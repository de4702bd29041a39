package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no stray mailflow.yaml
// or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://mail.google.com/", cfg.Webmail.BaseURL)
	assert.True(t, cfg.Webmail.HandleInterstitials)
	assert.Equal(t, "chromium", cfg.Browser.Engine)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.Viewport.Width)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Interstitial)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.SentLookup)
	assert.Equal(t, 8*time.Second, cfg.Timeouts.SendValidation)
	assert.Equal(t, "[Gmail]/Sent Mail", cfg.Mailbox.SentFolder)
	assert.Equal(t, 10*time.Second, cfg.Mailbox.DialTimeout)
	assert.False(t, cfg.Credentials.Present())
}

func TestLoadFromFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
credentials:
  username: qa@example.com
  password: from-file
recipient: to@example.com
browser:
  engine: firefox
  headless: false
timeouts:
  login: 45s
mailbox:
  dial_timeout: 4s
report:
  path: out/report.xlsx
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qa@example.com", cfg.Credentials.Username)
	assert.True(t, cfg.Credentials.Present())
	assert.Equal(t, "to@example.com", cfg.Recipient)
	assert.Equal(t, "firefox", cfg.Browser.Engine)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Login)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Action, "unset keys keep their defaults")
	assert.Equal(t, 4*time.Second, cfg.Mailbox.DialTimeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Run("prefixed names", func(t *testing.T) {
		isolate(t)
		t.Setenv("MAILFLOW_CREDENTIALS_USERNAME", "env@example.com")
		t.Setenv("MAILFLOW_BROWSER_ENGINE", "webkit")
		t.Setenv("MAILFLOW_TIMEOUTS_SEND_SUCCESS", "12s")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "env@example.com", cfg.Credentials.Username)
		assert.Equal(t, "webkit", cfg.Browser.Engine)
		assert.Equal(t, 12*time.Second, cfg.Timeouts.SendSuccess)
	})

	t.Run("legacy names", func(t *testing.T) {
		isolate(t)
		t.Setenv("GMAIL_USERNAME", "legacy@example.com")
		t.Setenv("GMAIL_PASSWORD", "legacy-secret")
		t.Setenv("RECIPIENT_EMAIL", "rcpt@example.com")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "legacy@example.com", cfg.Credentials.Username)
		assert.Equal(t, "legacy-secret", cfg.Credentials.Password)
		assert.Equal(t, "rcpt@example.com", cfg.Recipient)
	})

	t.Run("prefixed wins over legacy", func(t *testing.T) {
		isolate(t)
		t.Setenv("MAILFLOW_RECIPIENT", "new@example.com")
		t.Setenv("RECIPIENT_EMAIL", "old@example.com")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", cfg.Recipient)
	})
}

func TestHandleInterstitialsToggle(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"false", false},
		{"FALSE", false},
		{"0", false},
		{"no", false},
		{" No ", false},
		{"true", true},
		{"1", true},
		{"off", true},
		{"anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			isolate(t)
			t.Setenv("GMAIL_HANDLE_INTERSTITIALS", tt.value)

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Webmail.HandleInterstitials)
		})
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "GMAIL_USERNAME=dotenv@example.com\nGMAIL_PASSWORD=\"quoted secret\"\n")
	t.Setenv("GMAIL_USERNAME", "shell@example.com")
	// Registered for cleanup so the value gotenv exports does not leak.
	t.Setenv("GMAIL_PASSWORD", "")
	require.NoError(t, os.Unsetenv("GMAIL_PASSWORD"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "shell@example.com", cfg.Credentials.Username)
	assert.Equal(t, "quoted secret", cfg.Credentials.Password)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		isolate(t)
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("unknown engine", func(t *testing.T) {
		cfg := valid(t)
		cfg.Browser.Engine = "netscape"
		assert.ErrorContains(t, cfg.Validate(), "browser.engine")
	})

	t.Run("negative timeout", func(t *testing.T) {
		cfg := valid(t)
		cfg.Timeouts.Login = -time.Second
		assert.ErrorContains(t, cfg.Validate(), "timeouts.login")
	})

	t.Run("negative timeouts in declaration order", func(t *testing.T) {
		cfg := valid(t)
		cfg.Timeouts.Scenario = -time.Second
		cfg.Timeouts.Action = -time.Second
		cfg.Timeouts.SignOut = -time.Second
		cfg.Timeouts.Cleanup = -time.Second

		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, "config validation failed:\n"+
			"   - timeouts.action must not be negative\n"+
			"   - timeouts.cleanup must not be negative\n"+
			"   - timeouts.sign_out must not be negative\n"+
			"   - timeouts.scenario must not be negative", err.Error())
		for i := 0; i < 20; i++ {
			assert.Equal(t, err.Error(), cfg.Validate().Error(), "validation output must be stable")
		}
	})

	t.Run("mailbox dial timeout", func(t *testing.T) {
		cfg := valid(t)
		cfg.Mailbox.Enabled = true
		cfg.Mailbox.DialTimeout = 0
		assert.ErrorContains(t, cfg.Validate(), "mailbox.dial_timeout must be positive")
	})

	t.Run("unknown report format", func(t *testing.T) {
		cfg := valid(t)
		cfg.Report.Path = "report.csv"
		assert.ErrorContains(t, cfg.Validate(), "report.path")
	})

	t.Run("mailbox without address", func(t *testing.T) {
		cfg := valid(t)
		cfg.Mailbox.Enabled = true
		cfg.Mailbox.Addr = ""
		assert.ErrorContains(t, cfg.Validate(), "mailbox.addr")
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid(t)
		cfg.Logging.Level = "chatty"
		assert.ErrorContains(t, cfg.Validate(), "logging.level")
	})

	t.Run("missing credentials only warn", func(t *testing.T) {
		cfg := valid(t)
		v := NewValidator(cfg)
		require.NoError(t, v.Validate())
		assert.NotEmpty(t, v.Warnings())
	})
}

func TestRedacted(t *testing.T) {
	cfg := &Config{}
	cfg.Credentials.Username = "qa@example.com"
	cfg.Credentials.Password = "secret"
	cfg.Mailbox.Password = "imap-secret"

	red := cfg.Redacted()

	assert.Equal(t, "qa@example.com", red.Credentials.Username)
	assert.Equal(t, redactedValue, red.Credentials.Password)
	assert.Equal(t, redactedValue, red.Mailbox.Password)
	assert.Equal(t, "secret", cfg.Credentials.Password, "original is untouched")

	assert.Empty(t, (&Config{}).Redacted().Credentials.Password)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "mailflow.yaml")
	writeFile(t, path, "recipient: first@example.com\n")

	src, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.File())

	reloaded := make(chan string, 16)
	src.Watch(nil, func(c *Config) {
		select {
		case reloaded <- c.Recipient:
		default:
		}
	})
	writeFile(t, path, "recipient: second@example.com\n")

	// A single save can surface as several events, some of which may see a
	// truncated file.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case recipient := <-reloaded:
			if recipient == "second@example.com" {
				return
			}
		case <-deadline:
			t.Fatal("config change was not picked up")
		}
	}
}
