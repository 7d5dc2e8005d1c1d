package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/logging"
	"github.com/devblac/counter-watch/internal/metrics"
	"github.com/devblac/counter-watch/internal/sink"
	"github.com/devblac/counter-watch/internal/source/algorand"
	"github.com/devblac/counter-watch/internal/source/evm"
	"github.com/devblac/counter-watch/internal/storage"
	"github.com/google/uuid"
)

// alertNamespace scopes the name-based UUIDs used as alert ids.
var alertNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("counter-watch/alerts"))

// Drop causes reported to metrics.
const (
	dropDuplicate   = "duplicate"
	dropOwnCaller   = "own_caller"
	dropFiltered    = "filtered"
	dropRateLimited = "rate_limited"
)

// Options tune a Runner.
type Options struct {
	DryRun  bool
	To      uint64 // stop once a source cursor reaches this height/round
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Runner wires sources, snapshots, rules, dedupe and sinks for one pass.
type Runner struct {
	store    *storage.Store
	sources  []Source
	snaps    *Snapshotter
	sinks    map[string]sink.Sender
	rules    []ruleExec
	seen     *SeenSet
	ignore   map[string]struct{}
	log      *slog.Logger
	metrics  *metrics.Metrics
	dryRun   bool
	targetTo uint64
	nowFunc  func() time.Time
}

type ruleExec struct {
	rule   config.Rule
	preds  []Predicate
	bucket *TokenBucket
}

// NewRunner builds a runner for the provided config and sources.
func NewRunner(store *storage.Store, cfg *config.Config, sources []Source, snaps *Snapshotter, sinks map[string]sink.Sender, opts Options) (*Runner, error) {
	rules := make([]ruleExec, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		preds, err := CompilePredicates(r.Where)
		if err != nil {
			return nil, fmt.Errorf("rule %s predicates: %w", r.ID, err)
		}
		exec := ruleExec{rule: r, preds: preds}
		if r.Rate != nil {
			exec.bucket = NewTokenBucket(r.Rate.Capacity, r.Rate.PerSecond)
		}
		rules = append(rules, exec)
	}

	ignore := make(map[string]struct{}, len(cfg.Notify.IgnoreCallers))
	for _, c := range cfg.Notify.IgnoreCallers {
		ignore[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	if snaps == nil {
		snaps = NewSnapshotter(cfg.NewestFirst(), opts.Metrics)
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Runner{
		store:    store,
		sources:  sources,
		snaps:    snaps,
		sinks:    sinks,
		rules:    rules,
		seen:     NewSeenSet(cfg.Notify.SeenMax),
		ignore:   ignore,
		log:      log,
		metrics:  opts.Metrics,
		dryRun:   opts.DryRun,
		targetTo: opts.To,
		nowFunc:  time.Now,
	}, nil
}

// Snapshots exposes the runner's view cache.
func (r *Runner) Snapshots() *Snapshotter { return r.snaps }

// Bootstrap builds the initial views of every source. A source whose history
// cannot be fetched is logged and left without views.
func (r *Runner) Bootstrap(ctx context.Context) {
	for _, src := range r.sources {
		v, err := r.snaps.Refresh(ctx, src)
		if err != nil {
			r.metrics.Errors()
			r.log.Error("initial snapshot failed", "source", src.ID(), "error", err)
			continue
		}
		r.log.Info("snapshot built", "source", src.ID(), "events", v.Stats.TotalChanges, "users", v.Stats.UniqueUsers)
	}
}

// RunOnce processes one eligible block/round per source.
func (r *Runner) RunOnce(ctx context.Context) error {
	for _, src := range r.sources {
		id := src.ID()
		if r.targetTo > 0 {
			h, _, ok, err := r.store.GetCursor(ctx, id)
			if err != nil {
				return err
			}
			if ok && h >= r.targetTo {
				continue
			}
		}

		events, err := src.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, evm.ErrReorgDetected) || errors.Is(err, algorand.ErrReorgDetected) {
				r.log.Warn("reorg detected, cursor rewound", "source", id)
				continue
			}
			return fmt.Errorf("source %s: %w", id, err)
		}
		if len(events) == 0 {
			continue
		}

		if err := r.handleEvents(ctx, id, events); err != nil {
			return err
		}
		if _, err := r.snaps.Refresh(ctx, src); err != nil {
			r.metrics.Errors()
			r.log.Warn("snapshot refresh failed, keeping previous views", "source", id, "error", err)
		}
	}
	return nil
}

// SweepLoop evicts the seen-set on every tick until ctx is done.
func (r *Runner) SweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.seen.Sweep() {
				r.log.Debug("seen-set cleared")
			}
			r.metrics.SeenSetSize(r.seen.Size())
		}
	}
}

// handleEvents takes one block of events in log order.
func (r *Runner) handleEvents(ctx context.Context, sourceID string, events []counter.RawEvent) error {
	var start int64
	if v, ok := r.snaps.Views(sourceID); ok {
		start = v.Running()
	}

	for _, ev := range counter.NormalizeFrom(start, events, false) {
		r.metrics.EventObserved(ev.Reason.String())

		if r.seen.SeenAndRecord(ev.Key()) {
			r.metrics.NotificationDropped(dropDuplicate)
			continue
		}
		r.metrics.SeenSetSize(r.seen.Size())

		if _, own := r.ignore[strings.ToLower(ev.Caller)]; own && ev.Caller != "" {
			r.metrics.NotificationDropped(dropOwnCaller)
			continue
		}

		for i := range r.rules {
			exec := &r.rules[i]
			if exec.rule.Source != "" && exec.rule.Source != sourceID {
				continue
			}
			if !Match(exec.preds, ev) {
				r.metrics.NotificationDropped(dropFiltered)
				continue
			}
			if exec.bucket != nil && !exec.bucket.Allow(r.nowFunc()) {
				r.metrics.NotificationDropped(dropRateLimited)
				r.log.Warn("notification rate limited", "rule", exec.rule.ID, "event", ev.Key())
				continue
			}
			if err := r.notify(ctx, exec.rule, sourceID, ev); err != nil {
				// Unrecorded, so a later pass may retry it.
				r.seen.Forget(ev.Key())
				return err
			}
		}
	}
	return nil
}

// notify records the alert once and fans it out to the rule's sinks. A sink
// failure is recorded against the alert and does not stop the run.
func (r *Runner) notify(ctx context.Context, rule config.Rule, sourceID string, ev counter.NormalizedEvent) error {
	n := sink.NewNotification(rule.ID, sourceID, ev)
	n.ID = AlertID(rule.ID, sourceID, ev.Key())

	if r.dryRun {
		r.log.Info("dry-run notification", "rule", rule.ID, "source", sourceID, "reason", ev.Reason.String(), "change", n.Change, "caller", ev.Caller)
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = r.store.InsertAlert(ctx, storage.Alert{
		ID:          n.ID,
		RuleID:      rule.ID,
		SourceID:    sourceID,
		EventKey:    ev.Key(),
		Reason:      ev.Reason.String(),
		Caller:      ev.Caller,
		TxHash:      ev.TxHash,
		PayloadJSON: string(payload),
		CreatedAt:   r.nowFunc(),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		r.metrics.NotificationDropped(dropDuplicate)
		return nil
	}
	if err != nil {
		return err
	}

	for _, sinkID := range rule.Sinks {
		s := r.sinks[sinkID]
		if s == nil {
			continue
		}
		rec := storage.Send{AlertID: n.ID, SinkID: sinkID, Status: "sent", CreatedAt: r.nowFunc()}
		if err := s.Send(ctx, n); err != nil {
			rec.Status, rec.Error = "failed", err.Error()
			r.metrics.Errors()
			r.log.Error("sink delivery failed", "sink", sinkID, "rule", rule.ID, "error", err)
		} else {
			r.metrics.NotificationSent()
		}
		if err := r.store.InsertSend(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// AlertID derives the stable id of the alert a rule raises for an event.
func AlertID(ruleID, sourceID, eventKey string) string {
	return uuid.NewSHA1(alertNamespace, []byte(ruleID+"|"+sourceID+"|"+eventKey)).String()
}
