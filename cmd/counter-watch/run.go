package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/devblac/counter-watch/internal/api"
	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/engine"
	"github.com/devblac/counter-watch/internal/health"
	"github.com/devblac/counter-watch/internal/metrics"
	"github.com/devblac/counter-watch/internal/storage"
	"github.com/spf13/cobra"
)

const pollInterval = time.Second

var (
	flagOnce    bool
	flagDryRun  bool
	flagFrom    uint64
	flagTo      uint64
	flagHealth  string
	flagMetrics string
	flagAPI     string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Process one tick and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Log notifications instead of sending them")
	runCmd.Flags().Uint64Var(&flagFrom, "from", 0, "Replay notifications from height/round (default: only blocks after the confirmed head)")
	runCmd.Flags().Uint64Var(&flagTo, "to", 0, "Stop at height/round (inclusive)")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
	runCmd.Flags().StringVar(&flagAPI, "api", "", "Analytics API address, overrides api.addr")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build counter analytics and watch for new events",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}

		sources, err := buildSources(cfg, store, scanOptions{from: flagFrom, to: flagTo, log: log, metrics: mtr})
		if err != nil {
			return err
		}
		sinks, err := buildSinks(cfg)
		if err != nil {
			return err
		}

		snaps := engine.NewSnapshotter(cfg.NewestFirst(), mtr)
		runner, err := engine.NewRunner(store, cfg, sources.list, snaps, sinks, engine.Options{
			DryRun:  flagDryRun,
			To:      flagTo,
			Logger:  log,
			Metrics: mtr,
		})
		if err != nil {
			return err
		}

		if flagHealth != "" {
			rpcChecker := sources.checker()
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  store.Ping,
				RPCPing: rpcChecker.Ping,
				Sources: rpcChecker.Sources,
				Snapshot: func(id string) bool {
					_, ok := snaps.Views(id)
					return ok
				},
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		apiAddr := flagAPI
		if apiAddr == "" {
			apiAddr = cfg.API.Addr
		}
		if apiAddr != "" {
			apiSrv := api.New(snaps, cfg.API, log)
			go func() {
				if err := apiSrv.ListenAndServe(apiAddr); err != nil {
					log.Error("api server error", "error", err)
				}
			}()
			log.Info("analytics api enabled", "addr", apiAddr)
			defer func() { _ = apiSrv.Stop(5 * time.Second) }()
		}

		runner.Bootstrap(ctx)

		sweepCtx, stopSweep := context.WithCancel(ctx)
		defer stopSweep()
		go runner.SweepLoop(sweepCtx, cfg.SweepInterval())

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			if err := runner.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				mtr.Errors()
				log.Error("run error", "error", err)
				return err
			}
			log.Debug("tick complete", "dry_run", flagDryRun)
			if flagOnce {
				return nil
			}
			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			case <-ticker.C:
			}
		}
	},
}
