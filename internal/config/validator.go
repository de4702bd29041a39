package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

var (
	engines       = []string{"chromium", "firefox", "webkit"}
	reportFormats = []string{".json", ".xlsx"}
	logLevels     = []string{"debug", "info", "warn", "error"}
	logFormats    = []string{"console", "json"}
)

// Validator collects configuration problems. Errors make Validate fail;
// warnings describe settings that will make scenarios skip.
type Validator struct {
	config   *Config
	errors   []string
	warnings []string
}

func NewValidator(cfg *Config) *Validator {
	return &Validator{
		config:   cfg,
		errors:   []string{},
		warnings: []string{},
	}
}

// Validate returns an error listing every invalid setting.
func (v *Validator) Validate() error {
	v.validateBrowser()
	v.validateTimeouts()
	v.validateMailbox()
	v.validateReport()
	v.validateLogging()
	v.validateCredentials()

	if len(v.errors) > 0 {
		return fmt.Errorf("config validation failed:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

// Warnings returns the warnings collected by the last Validate call.
func (v *Validator) Warnings() []string {
	return v.warnings
}

func (v *Validator) validateBrowser() {
	b := v.config.Browser
	if !slices.Contains(engines, b.Engine) {
		v.addError(fmt.Sprintf("browser.engine %q is not one of %s", b.Engine, strings.Join(engines, ", ")))
	}
	if b.Viewport.Width < 0 || b.Viewport.Height < 0 {
		v.addError("browser.viewport must not be negative")
	}
	if b.SlowMo < 0 {
		v.addError("browser.slow_mo must not be negative")
	}
}

func (v *Validator) validateTimeouts() {
	t := v.config.Timeouts
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"action", t.Action},
		{"interstitial", t.Interstitial},
		{"identifier", t.Identifier},
		{"blocked_notice", t.BlockedNotice},
		{"login", t.Login},
		{"compose_open", t.ComposeOpen},
		{"send_success", t.SendSuccess},
		{"send_validation", t.SendValidation},
		{"cleanup", t.Cleanup},
		{"sent_lookup", t.SentLookup},
		{"recipient_check", t.RecipientCheck},
		{"sign_out_menu", t.SignOutMenu},
		{"sign_out", t.SignOut},
		{"scenario", t.Scenario},
	} {
		if f.d < 0 {
			v.addError(fmt.Sprintf("timeouts.%s must not be negative", f.name))
		}
	}
}

func (v *Validator) validateMailbox() {
	m := v.config.Mailbox
	if !m.Enabled {
		return
	}
	if m.Addr == "" {
		v.addError("mailbox.addr is required when mailbox.enabled is set")
	}
	if m.PollInterval <= 0 || m.Timeout <= 0 {
		v.addError("mailbox.poll_interval and mailbox.timeout must be positive")
	}
	if m.DialTimeout <= 0 {
		v.addError("mailbox.dial_timeout must be positive")
	}
	if m.Username == "" || m.Password == "" {
		v.addWarning("mailbox credentials not set; falling back to webmail credentials")
	}
}

func (v *Validator) validateReport() {
	p := v.config.Report.Path
	if p == "" {
		return
	}
	if ext := strings.ToLower(filepath.Ext(p)); !slices.Contains(reportFormats, ext) {
		v.addError(fmt.Sprintf("report.path %q must end in %s", p, strings.Join(reportFormats, " or ")))
	}
}

func (v *Validator) validateLogging() {
	l := v.config.Logging
	if !slices.Contains(logLevels, strings.ToLower(l.Level)) {
		v.addError(fmt.Sprintf("logging.level %q is not one of %s", l.Level, strings.Join(logLevels, ", ")))
	}
	if !slices.Contains(logFormats, strings.ToLower(l.Format)) {
		v.addError(fmt.Sprintf("logging.format %q is not one of %s", l.Format, strings.Join(logFormats, ", ")))
	}
}

func (v *Validator) validateCredentials() {
	if !v.config.Credentials.Present() {
		v.addWarning("credentials not set; scenarios that sign in will be skipped")
	}
	if v.config.Recipient == "" {
		v.addWarning("recipient not set; messages without a recipient in the data file are sent to the signed-in account")
	}
}

func (v *Validator) addError(message string) {
	v.errors = append(v.errors, "   - "+message)
}

func (v *Validator) addWarning(message string) {
	v.warnings = append(v.warnings, message)
}

// Validate checks cfg for invalid settings.
func (c *Config) Validate() error {
	return NewValidator(c).Validate()
}
