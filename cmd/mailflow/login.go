package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotrs-io/mailflow/internal/browser/pwdriver"
	"github.com/gotrs-io/mailflow/internal/logging"
	"github.com/gotrs-io/mailflow/internal/webmail"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in once and save the browser storage state",
	Long: `Login opens a browser window on the webmail sign-in page. With
credentials configured it signs in automatically; otherwise it waits for
you to sign in by hand, which also covers second-factor prompts.

The cookies are saved to --save-state. Point browser.storage_state at the
file so later runs start signed in.`,
	RunE: runLogin,
}

var (
	saveStateFlag string
	loginWaitFlag time.Duration
	loginHeadless bool
)

var inboxURL = regexp.MustCompile(`#inbox`)

func init() {
	loginCmd.Flags().StringVar(&saveStateFlag, "save-state", "", "Path to write the storage state to (required)")
	loginCmd.Flags().DurationVar(&loginWaitFlag, "wait", 5*time.Minute, "How long to wait for a manual sign-in")
	loginCmd.Flags().BoolVar(&loginHeadless, "headless", false, "Run without a window (automatic sign-in only)")
	_ = loginCmd.MarkFlagRequired("save-state")
}

func runLogin(cmd *cobra.Command, args []string) error {
	_, cfg, err := openConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	creds := webmail.Credentials{Username: cfg.Credentials.Username, Password: cfg.Credentials.Password}
	if loginHeadless && !creds.Present() {
		return fmt.Errorf("headless login needs credentials.username and credentials.password")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pwdriver.OptionsFromConfig(cfg)
	opts.Headless = loginHeadless
	// Start from a clean context; the state being written may be stale.
	opts.StorageState = ""
	launcher, err := pwdriver.Launch(opts, logger.Named("browser"))
	if err != nil {
		return err
	}
	defer func() {
		if err := launcher.Shutdown(); err != nil {
			logger.Warn("failed to shut down browser", zap.Error(err))
		}
	}()

	page, err := launcher.Open(ctx, "login")
	if err != nil {
		return err
	}
	failed := true
	defer func() {
		if err := launcher.Close(page, failed); err != nil {
			logger.Warn("failed to close page", zap.Error(err))
		}
	}()

	session := webmail.NewSession(page, logger, sessionOptions(cfg, nil)...)
	if creds.Present() {
		res, err := session.Login().Login(ctx, creds)
		if err != nil {
			return fmt.Errorf("sign-in ended in %s: %w", res.Outcome, err)
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Sign in in the browser window; waiting up to %s.\n", loginWaitFlag)
		if err := session.Login().Goto(ctx); err != nil {
			return err
		}
		if err := page.WaitForURL(ctx, inboxURL, loginWaitFlag); err != nil {
			return fmt.Errorf("mailbox not reached: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(saveStateFlag), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := page.SaveStorageState(saveStateFlag); err != nil {
		return err
	}
	failed = false
	logger.Info("storage state saved", zap.String("path", saveStateFlag))
	fmt.Fprintf(cmd.OutOrStdout(), "Saved storage state to %s\n", saveStateFlag)
	return nil
}
