package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/spf13/cobra"
)

var flagForce bool

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !flagForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", cfgPath, err)
		}
		if err := os.WriteFile(cfgPath, []byte(config.Sample), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s; set RPC_URL and SLACK_WEBHOOK_URL before running\n", cfgPath)
		return nil
	},
}
