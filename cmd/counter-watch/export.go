package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagExportWhat   string
	flagExportFormat string
	flagExportOut    string
	flagExportLimit  int
)

func init() {
	exportCmd.Flags().StringVar(&flagExportWhat, "what", "alerts", "alerts|cursors|leaderboard")
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "csv", "csv|json")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "Output file (default stdout)")
	exportCmd.Flags().IntVar(&flagExportLimit, "limit", 0, "Max rows, 0 for all")
	exportCmd.Flags().StringVar(&flagSource, "source", "", "Only this source id (leaderboard)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export alerts, cursors or leaderboards as csv/json",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagExportFormat != "csv" && flagExportFormat != "json" {
			return fmt.Errorf("unsupported format: %s", flagExportFormat)
		}

		var table [][]string
		var records any
		switch flagExportWhat {
		case "alerts", "cursors":
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := storage.Open(cfg.Global.DBPath)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			if flagExportWhat == "alerts" {
				alerts, err := store.ListAlerts(cmd.Context(), flagExportLimit)
				if err != nil {
					return err
				}
				records, table = alerts, alertRows(alerts)
			} else {
				cursors, err := store.ListCursors(cmd.Context())
				if err != nil {
					return err
				}
				records, table = cursors, cursorRows(cursors)
			}
		case "leaderboard":
			_, views, err := loadViews(cmd.Context(), flagSource)
			if err != nil {
				return err
			}
			boards := map[string][]counter.LeaderboardEntry{}
			for _, v := range views {
				entries := v.Leaderboard
				if flagExportLimit > 0 {
					entries = counter.Top(entries, flagExportLimit)
				}
				boards[v.SourceID] = entries
				table = append(table, leaderboardRows(v.SourceID, entries, len(table) == 0)...)
			}
			records = boards
		default:
			return fmt.Errorf("unsupported export target: %s", flagExportWhat)
		}

		var w io.Writer = cmd.OutOrStdout()
		if flagExportOut != "" {
			f, err := os.Create(flagExportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", flagExportOut, err)
			}
			defer f.Close()
			w = f
		}

		if flagExportFormat == "json" {
			return writeJSON(w, records)
		}
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(table); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	},
}

func alertRows(alerts []storage.Alert) [][]string {
	rows := [][]string{{"id", "rule_id", "source_id", "event_key", "reason", "caller", "tx_hash", "created_at"}}
	for _, a := range alerts {
		rows = append(rows, []string{a.ID, a.RuleID, a.SourceID, a.EventKey, a.Reason, a.Caller, a.TxHash, a.CreatedAt.UTC().Format(time.RFC3339)})
	}
	return rows
}

func cursorRows(cursors []storage.Cursor) [][]string {
	rows := [][]string{{"source_id", "height", "hash", "updated_at"}}
	for _, c := range cursors {
		rows = append(rows, []string{c.SourceID, strconv.FormatUint(c.Height, 10), c.Hash, c.UpdatedAt.UTC().Format(time.RFC3339)})
	}
	return rows
}

func leaderboardRows(sourceID string, entries []counter.LeaderboardEntry, header bool) [][]string {
	var rows [][]string
	if header {
		rows = append(rows, []string{"source_id", "rank", "address", "total", "increases", "decreases", "resets", "sets"})
	}
	for i, e := range entries {
		rows = append(rows, []string{
			sourceID,
			strconv.Itoa(i + 1),
			e.Address,
			strconv.Itoa(e.TotalInteractions),
			strconv.Itoa(e.Increases),
			strconv.Itoa(e.Decreases),
			strconv.Itoa(e.Resets),
			strconv.Itoa(e.Sets),
		})
	}
	return rows
}
