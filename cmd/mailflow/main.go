package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gotrs-io/mailflow/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "mailflow",
	Short: "End-to-end webmail flow runner",
	Long: `mailflow drives a real browser through the webmail sign-in, compose,
send and sign-out flows and reports which outcome every step ended in.

Runs can be one-off (run) or scheduled (watch).`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPathFlag string
	logLevelFlag   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPathFlag, "config", "c", "", "Config file (default ./mailflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mailflow %s\n", version.Full())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
