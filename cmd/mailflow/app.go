package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/browser/pwdriver"
	"github.com/gotrs-io/mailflow/internal/config"
	"github.com/gotrs-io/mailflow/internal/mailbox"
	"github.com/gotrs-io/mailflow/internal/maildata"
	"github.com/gotrs-io/mailflow/internal/metrics"
	"github.com/gotrs-io/mailflow/internal/report"
	"github.com/gotrs-io/mailflow/internal/scenario"
	"github.com/gotrs-io/mailflow/internal/webmail"
)

// errScenariosFailed makes the process exit with status 1 without printing
// usage; the report and logs already say what failed.
var errScenariosFailed = errors.New("one or more scenarios failed")

func exitCode(err error) int {
	if errors.Is(err, errScenariosFailed) {
		return 1
	}
	return 2
}

// openConfig loads the configuration and applies the global flag overrides.
func openConfig() (*config.Source, *config.Config, error) {
	src, err := config.Open(configPathFlag)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := src.Config()
	if err != nil {
		return nil, nil, err
	}
	applyGlobalFlags(cfg)
	return src, cfg, nil
}

func applyGlobalFlags(cfg *config.Config) {
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
}

// suiteData builds the scenario input. A missing data file falls back to the
// default messages.
func suiteData(cfg *config.Config, logger *zap.Logger) (scenario.Data, error) {
	file, err := maildata.Load(cfg.DataFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("data file not found, using default messages", zap.String("path", cfg.DataFile))
		file, err = &maildata.File{}, nil
	}
	if err != nil {
		return scenario.Data{}, err
	}

	data := scenario.Data{
		Credentials: webmail.Credentials{
			Username: cfg.Credentials.Username,
			Password: cfg.Credentials.Password,
		},
		Invalid:  file.Invalid(cfg.InvalidUsername),
		Messages: file.Messages(cfg.Recipient, cfg.Credentials.Username),
	}
	if v := sentVerifier(cfg, logger); v != nil {
		data.Verifier = v
	}
	return data, nil
}

// sentVerifier returns the IMAP verifier, or nil when it is disabled. The
// mailbox account defaults to the webmail credentials.
func sentVerifier(cfg *config.Config, logger *zap.Logger) *mailbox.IMAPVerifier {
	mb := cfg.Mailbox
	if !mb.Enabled {
		return nil
	}
	account := mailbox.Account{
		Addr:     mb.Addr,
		Username: mb.Username,
		Password: mb.Password,
		Insecure: mb.Insecure,
		Folder:   mb.SentFolder,
	}
	if account.Username == "" {
		account.Username = cfg.Credentials.Username
	}
	if account.Password == "" {
		account.Password = cfg.Credentials.Password
	}
	return mailbox.NewIMAPVerifier(account,
		mailbox.WithPollInterval(mb.PollInterval),
		mailbox.WithTimeout(mb.Timeout),
		mailbox.WithDialTimeout(mb.DialTimeout),
		mailbox.WithLogger(logger.Named("imap")),
	)
}

func sessionTimeouts(t config.TimeoutsConfig) webmail.Timeouts {
	return webmail.Timeouts{
		Action:         t.Action,
		Interstitial:   t.Interstitial,
		Identifier:     t.Identifier,
		BlockedNotice:  t.BlockedNotice,
		Login:          t.Login,
		ComposeOpen:    t.ComposeOpen,
		SendSuccess:    t.SendSuccess,
		SendValidation: t.SendValidation,
		Cleanup:        t.Cleanup,
		SentLookup:     t.SentLookup,
		RecipientCheck: t.RecipientCheck,
		SignOutMenu:    t.SignOutMenu,
		SignOut:        t.SignOut,
	}
}

func sessionOptions(cfg *config.Config, m *metrics.Metrics) []webmail.SessionOption {
	opts := []webmail.SessionOption{
		webmail.WithTimeouts(sessionTimeouts(cfg.Timeouts)),
		webmail.WithURLs(webmail.URLs{
			Base:   cfg.Webmail.BaseURL,
			Inbox:  cfg.Webmail.InboxURL,
			Logout: cfg.Webmail.LogoutURL,
		}),
		webmail.WithInterstitials(cfg.Webmail.HandleInterstitials),
	}
	if m != nil {
		opts = append(opts, webmail.WithRecorder(m))
	}
	return opts
}

// runOptions are the per-invocation overrides of the run and watch commands.
type runOptions struct {
	scenarios   []string
	reportPath  string
	metricsFile string
	headed      bool
}

func (o runOptions) apply(cfg *config.Config) {
	if o.reportPath != "" {
		cfg.Report.Path = o.reportPath
	}
	if o.metricsFile != "" {
		cfg.Metrics.Textfile = o.metricsFile
	}
	if o.headed {
		cfg.Browser.Headless = false
	}
}

// runSuite launches a browser, runs the selected scenarios and writes the
// report and metrics. The report is returned even when writing it failed.
func runSuite(ctx context.Context, cfg *config.Config, names []string, m *metrics.Metrics, logger *zap.Logger) (*scenario.Report, error) {
	scenarios, err := scenario.DefaultRegistry().Select(names...)
	if err != nil {
		return nil, err
	}
	data, err := suiteData(cfg, logger)
	if err != nil {
		return nil, err
	}

	launcher, err := pwdriver.Launch(pwdriver.OptionsFromConfig(cfg), logger.Named("browser"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := launcher.Shutdown(); err != nil {
			logger.Warn("failed to shut down browser", zap.Error(err))
		}
	}()

	suite := scenario.NewSuite(launcher, data,
		scenario.WithLogger(logger.Named("suite")),
		scenario.WithObserver(m),
		scenario.WithTimeout(cfg.Timeouts.Scenario),
		scenario.WithSessionOptions(sessionOptions(cfg, m)...),
	)
	rep := suite.Run(ctx, scenarios)

	var errs []error
	if cfg.Report.Path != "" {
		if err := report.Write(cfg.Report.Path, rep); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("report written", zap.String("path", cfg.Report.Path))
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}
	return rep, errors.Join(errs...)
}

func summary(rep *scenario.Report) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped",
		rep.Count(scenario.Passed), rep.Count(scenario.Failed), rep.Count(scenario.Skipped))
}
