package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/engine"
	"github.com/spf13/cobra"
)

const validateTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, rules and sinks, then ping every node",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d, %d sources, %d rules)\n", cfg.Version, len(cfg.Sources), len(cfg.Rules))

		for _, r := range cfg.Rules {
			if _, err := engine.CompilePredicates(r.Where); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
		if _, err := buildSinks(cfg); err != nil {
			return err
		}

		// Clients only; scanners need storage, which validate leaves untouched.
		sources, err := buildClients(cfg, "")
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), validateTimeout)
		defer cancel()
		checker := sources.checker()
		results := checker.Sources(ctx)
		heads := checker.Heads(ctx)

		ids := make([]string, 0, len(results))
		for id := range results {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		failures := 0
		for _, id := range ids {
			src, _ := cfg.SourceByID(id)
			if err := results[id]; err != nil {
				failures++
				fmt.Fprintf(out, "- source %s (%s): ERROR %v\n", id, src.Type, err)
				continue
			}
			fmt.Fprintf(out, "- source %s (%s): head %d OK\n", id, src.Type, heads[id])
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d source(s) failed connectivity", failures)
		}
		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
