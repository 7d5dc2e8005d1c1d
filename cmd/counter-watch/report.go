package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/engine"
	"github.com/spf13/cobra"
)

var (
	flagSource string
	flagJSON   bool
	flagLimit  int
)

func init() {
	for _, c := range []*cobra.Command{statsCmd, leaderboardCmd, eventsCmd} {
		c.Flags().StringVar(&flagSource, "source", "", "Only this source id")
		c.Flags().BoolVar(&flagJSON, "json", false, "Print JSON instead of a table")
	}
	leaderboardCmd.Flags().IntVar(&flagLimit, "limit", 0, "Number of entries (default api.leaderboard_limit)")
	eventsCmd.Flags().IntVar(&flagLimit, "limit", 0, "Number of events (default api.recent_events)")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate the full event history of each source",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, views, err := loadViews(cmd.Context(), flagSource)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if flagJSON {
			return writeJSON(out, views)
		}
		for _, v := range views {
			printStats(out, v)
		}
		return nil
	},
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rank callers by number of counter changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, views, err := loadViews(cmd.Context(), flagSource)
		if err != nil {
			return err
		}
		limit := flagLimit
		if limit <= 0 {
			limit = cfg.API.LeaderboardLimit
		}
		out := cmd.OutOrStdout()
		if flagJSON {
			boards := map[string][]counter.LeaderboardEntry{}
			for _, v := range views {
				boards[v.SourceID] = counter.Top(v.Leaderboard, limit)
			}
			return writeJSON(out, boards)
		}
		for _, v := range views {
			fmt.Fprintf(out, "source %s\n", v.SourceID)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tADDRESS\tTOTAL\tINC\tDEC\tRESET\tSET")
			for i, e := range counter.Top(v.Leaderboard, limit) {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\n", i+1, e.Address, e.TotalInteractions, e.Increases, e.Decreases, e.Resets, e.Sets)
			}
			tw.Flush()
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the latest counter changes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, views, err := loadViews(cmd.Context(), flagSource)
		if err != nil {
			return err
		}
		limit := flagLimit
		if limit <= 0 {
			limit = cfg.API.RecentEvents
		}
		out := cmd.OutOrStdout()
		if flagJSON {
			recent := map[string][]counter.NormalizedEvent{}
			for _, v := range views {
				recent[v.SourceID] = v.Recent(limit)
			}
			return writeJSON(out, recent)
		}
		for _, v := range views {
			fmt.Fprintf(out, "source %s\n", v.SourceID)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HEIGHT\tREASON\tCHANGE\tCALLER\tTX")
			for _, ev := range v.Recent(limit) {
				fmt.Fprintf(tw, "%d\t%s %s\t%s\t%s\t%s\n", ev.Height, ev.Reason.Emoji(), ev.Reason, ev.Change(), orDash(ev.Caller), ev.TxHash)
			}
			tw.Flush()
		}
		return nil
	},
}

func printStats(w io.Writer, v *engine.Views) {
	st := v.Stats
	fmt.Fprintf(w, "source %s\n", v.SourceID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  total changes\t%d\n", st.TotalChanges)
	fmt.Fprintf(tw, "  increases\t%d\t%.1f%%\n", st.Increases, st.IncreasePct)
	fmt.Fprintf(tw, "  decreases\t%d\t%.1f%%\n", st.Decreases, st.DecreasePct)
	fmt.Fprintf(tw, "  resets\t%d\t%.1f%%\n", st.Resets, st.ResetPct)
	fmt.Fprintf(tw, "  sets\t%d\t%.1f%%\n", st.Sets, st.SetPct)
	fmt.Fprintf(tw, "  unique users\t%d\n", st.UniqueUsers)
	fmt.Fprintf(tw, "  avg per user\t%.2f\n", st.AveragePerUser)
	fmt.Fprintf(tw, "  current value\t%d\n", v.Running())
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
