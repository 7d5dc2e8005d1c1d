package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/engine"
	"github.com/devblac/counter-watch/internal/health"
	"github.com/devblac/counter-watch/internal/logging"
	"github.com/devblac/counter-watch/internal/metrics"
	"github.com/devblac/counter-watch/internal/sink"
	"github.com/devblac/counter-watch/internal/source/algorand"
	"github.com/devblac/counter-watch/internal/source/evm"
	"github.com/devblac/counter-watch/internal/storage"
)

func newLogger() *slog.Logger {
	return logging.NewWithLevel(os.Getenv("LOG_LEVEL"))
}

// chainSources holds the scanners built from config plus their raw clients,
// which the health checker pings directly.
type chainSources struct {
	list        []engine.Source
	evmClients  map[string]evm.BlockClient
	algoClients map[string]algorand.AlgodClient
}

func (c *chainSources) checker() *health.RPCChecker {
	return health.NewRPCChecker(c.evmClients, c.algoClients)
}

type scanOptions struct {
	from    uint64 // replay notifications from this height, 0 starts after the confirmed head
	to      uint64 // history bound, 0 means the safe head
	only    string // restrict to one source id
	log     *slog.Logger
	metrics *metrics.Metrics
}

// buildClients dials the node of every selected source.
func buildClients(cfg *config.Config, only string) (*chainSources, error) {
	out := &chainSources{
		evmClients:  map[string]evm.BlockClient{},
		algoClients: map[string]algorand.AlgodClient{},
	}
	if only != "" {
		if _, ok := cfg.SourceByID(only); !ok {
			return nil, fmt.Errorf("unknown source: %s", only)
		}
	}
	for _, src := range cfg.Sources {
		if only != "" && src.ID != only {
			continue
		}
		switch src.Type {
		case evm.Chain:
			cli, err := evm.NewRPCClient(src.RPCURL)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.ID, err)
			}
			out.evmClients[src.ID] = cli
		case algorand.Chain:
			cli, err := algorand.NewAlgodClient(src.AlgodURL)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.ID, err)
			}
			out.algoClients[src.ID] = cli
		}
	}
	return out, nil
}

// buildSources dials every selected source and wraps it in a scanner, in
// config order.
func buildSources(cfg *config.Config, store *storage.Store, opts scanOptions) (*chainSources, error) {
	out, err := buildClients(cfg, opts.only)
	if err != nil {
		return nil, err
	}

	for _, src := range cfg.Sources {
		confirmations := cfg.Global.Confirmations[src.Type]
		if cli, ok := out.evmClients[src.ID]; ok {
			sc, err := evm.NewScanner(cli, store, src, confirmations)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.ID, err)
			}
			sc.StopAt(opts.to)
			sc.ReplayFrom(opts.from)
			sc.Observe(opts.log, opts.metrics)
			out.list = append(out.list, sc)
		}
		if cli, ok := out.algoClients[src.ID]; ok {
			sc, err := algorand.NewScanner(cli, store, src, confirmations)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.ID, err)
			}
			sc.StopAt(opts.to)
			sc.ReplayFrom(opts.from)
			out.list = append(out.list, sc)
		}
	}
	return out, nil
}

func buildSinks(cfg *config.Config) (map[string]sink.Sender, error) {
	sinks := map[string]sink.Sender{}
	for _, s := range cfg.Sinks {
		var (
			sender sink.Sender
			err    error
		)
		switch s.Type {
		case "slack":
			sender, err = sink.NewSlackSender(s.WebhookURL, s.Template)
		case "teams":
			sender, err = sink.NewTeamsSender(s.WebhookURL, s.Template)
		case "webhook":
			sender, err = sink.NewWebhookSender(s.URL, s.Method, s.Template, nil)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		sinks[s.ID] = sender
	}
	return sinks, nil
}

// loadViews is the one-shot path shared by the report commands: it fetches
// the full history of each selected source and aggregates it.
func loadViews(ctx context.Context, only string) (*config.Config, []*engine.Views, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	store, err := storage.Open(cfg.Global.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	sources, err := buildSources(cfg, store, scanOptions{only: only, log: newLogger()})
	if err != nil {
		return nil, nil, err
	}

	snaps := engine.NewSnapshotter(cfg.NewestFirst(), nil)
	views := make([]*engine.Views, 0, len(sources.list))
	for _, src := range sources.list {
		v, err := snaps.Refresh(ctx, src)
		if err != nil {
			return nil, nil, err
		}
		views = append(views, v)
	}
	return cfg, views, nil
}
