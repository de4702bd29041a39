package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gotrs-io/mailflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Config prints the configuration after defaults, the config file, .env
and environment overrides are applied. Passwords are masked.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	src, cfg, err := openConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if file := src.File(); file != "" {
		fmt.Fprintf(out, "# %s\n", file)
	} else {
		fmt.Fprintln(out, "# defaults and environment only")
	}
	v := config.NewValidator(cfg)
	_ = v.Validate() // already passed in openConfig; run again for the warnings
	for _, w := range v.Warnings() {
		fmt.Fprintf(out, "# warning: %s\n", w)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
