package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gotrs-io/mailflow/internal/config"
	"github.com/gotrs-io/mailflow/internal/maildata"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, "credentials:\n  username: alice@example.com\n  password: secret\n"))
	require.NoError(t, err)
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSuiteDataFallsBackToDefaultMessages(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataFile = filepath.Join(t.TempDir(), "missing.yaml")

	data, err := suiteData(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, data.Messages, 3)
	for _, m := range data.Messages {
		assert.Equal(t, "alice@example.com", m.To, "messages go to the signed-in account without a recipient")
	}
	assert.Equal(t, "alice@example.com", data.Credentials.Username)
	assert.Equal(t, maildata.DefaultInvalidUsername, data.Invalid.Username)
	assert.Nil(t, data.Verifier)
}

func TestSuiteDataReadsDataFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recipient = "bob@example.com"
	cfg.InvalidUsername = "nobody@example.com"
	cfg.DataFile = filepath.Join(t.TempDir(), "emails.yaml")
	require.NoError(t, os.WriteFile(cfg.DataFile, []byte(`
emails:
  - to: ${RECIPIENT_EMAIL}
    subject: Hello
    body: World
`), 0o600))

	data, err := suiteData(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "bob@example.com", data.Messages[0].To)
	assert.Equal(t, "nobody@example.com", data.Invalid.Username)
}

func TestSuiteDataRejectsBrokenDataFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataFile = filepath.Join(t.TempDir(), "emails.yaml")
	require.NoError(t, os.WriteFile(cfg.DataFile, []byte("emails: [unclosed"), 0o600))

	_, err := suiteData(cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to parse data file")
}

func TestSentVerifier(t *testing.T) {
	cfg := testConfig(t)
	assert.Nil(t, sentVerifier(cfg, zaptest.NewLogger(t)), "disabled by default")

	cfg.Mailbox.Enabled = true
	assert.NotNil(t, sentVerifier(cfg, zaptest.NewLogger(t)))

	data, err := suiteData(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, data.Verifier)
}

func TestSessionTimeoutsCopiesEveryField(t *testing.T) {
	cfg := testConfig(t)
	got := sessionTimeouts(cfg.Timeouts)

	assert.Equal(t, 30*time.Second, got.Action)
	assert.Equal(t, 2*time.Second, got.Interstitial)
	assert.Equal(t, 15*time.Second, got.Identifier)
	assert.Equal(t, 20*time.Second, got.BlockedNotice)
	assert.Equal(t, 30*time.Second, got.Login)
	assert.Equal(t, 10*time.Second, got.ComposeOpen)
	assert.Equal(t, 10*time.Second, got.SendSuccess)
	assert.Equal(t, 8*time.Second, got.SendValidation)
	assert.Equal(t, 5*time.Second, got.Cleanup)
	assert.Equal(t, 20*time.Second, got.SentLookup)
	assert.Equal(t, time.Second, got.RecipientCheck)
	assert.Equal(t, 5*time.Second, got.SignOutMenu)
	assert.Equal(t, 30*time.Second, got.SignOut)
}

func TestRunOptionsApply(t *testing.T) {
	cfg := testConfig(t)
	require.True(t, cfg.Browser.Headless)

	runOptions{}.apply(cfg)
	assert.True(t, cfg.Browser.Headless)
	assert.Empty(t, cfg.Report.Path)

	runOptions{reportPath: "out/report.xlsx", metricsFile: "out/mailflow.prom", headed: true}.apply(cfg)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "out/report.xlsx", cfg.Report.Path)
	assert.Equal(t, "out/mailflow.prom", cfg.Metrics.Textfile)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(fmt.Errorf("run: %w", errScenariosFailed)))
	assert.Equal(t, 2, exitCode(errors.New("bad config")))
}

func TestSuiteTimeoutCoversEveryScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timeouts.Scenario = time.Minute
	assert.Equal(t, 6*time.Minute, suiteTimeout(cfg))
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "credentials:\n  username: alice@example.com\n  password: hunter2\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "--config", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configPathFlag = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "# "+path)
	assert.Contains(t, out.String(), "username: alice@example.com")
	assert.Contains(t, out.String(), "********")
	assert.NotContains(t, out.String(), "hunter2")
	assert.Contains(t, out.String(), "action: 30s")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "mailflow ")
	assert.Contains(t, out.String(), "playwright-go")
}
