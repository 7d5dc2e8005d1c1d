package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/storage"
	"github.com/spf13/cobra"
)

var flagNoLag bool

func init() {
	stateCmd.Flags().BoolVar(&flagNoLag, "offline", false, "Skip node queries; show cursors only")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show cursors and processing lag",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cursors, err := store.ListCursors(cmd.Context())
		if err != nil {
			return err
		}

		heads := map[string]uint64{}
		if !flagNoLag {
			clients, err := buildClients(cfg, "")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), validateTimeout)
			heads = clients.checker().Heads(ctx)
			cancel()
		}

		out := cmd.OutOrStdout()
		if len(cursors) == 0 {
			fmt.Fprintln(out, "no cursors yet; run `counter-watch run` first")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tHEIGHT\tHEAD\tLAG\tHASH\tUPDATED")
		for _, c := range cursors {
			head, lag := "?", "?"
			if h, ok := heads[c.SourceID]; ok {
				head = fmt.Sprintf("%d", h)
				if h >= c.Height {
					lag = fmt.Sprintf("%d", h-c.Height)
				} else {
					lag = "0"
				}
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", c.SourceID, c.Height, head, lag, shortHash(c.Hash), c.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}
