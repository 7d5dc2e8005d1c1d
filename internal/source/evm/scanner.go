package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/logging"
	"github.com/devblac/counter-watch/internal/metrics"
	"github.com/devblac/counter-watch/internal/storage"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// BlockClient captures the subset of ethclient used by the scanner.
type BlockClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// RPCClient is a thin wrapper over ethclient.Client that satisfies BlockClient.
type RPCClient struct {
	*ethclient.Client
}

// NewRPCClient builds an RPC client to an EVM node.
func NewRPCClient(rpcURL string) (*RPCClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}

// Scanner reads CounterChanged logs of one contract, either as a full history
// snapshot or block by block behind a stored cursor.
type Scanner struct {
	client        BlockClient
	store         *storage.Store
	source        config.Source
	confirmations uint64
	decoder       *Decoder
	stopAt        uint64
	replayFrom    uint64
	log           *slog.Logger
	metrics       *metrics.Metrics
}

// NewScanner builds a scanner for a configured evm source.
func NewScanner(client BlockClient, store *storage.Store, source config.Source, confirmations uint64) (*Scanner, error) {
	dec, err := NewDecoder(source.Contract, source.Event, source.ABIDirs)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}
	return &Scanner{
		client:        client,
		store:         store,
		source:        source,
		confirmations: confirmations,
		decoder:       dec,
		log:           logging.Discard(),
	}, nil
}

// ID returns the configured source id.
func (s *Scanner) ID() string { return s.source.ID }

// StopAt caps history snapshots at height h (inclusive). Zero removes the cap.
func (s *Scanner) StopAt(h uint64) { s.stopAt = h }

// ReplayFrom makes a scanner without a cursor start incremental processing at
// height h. By default it starts after the confirmed head.
func (s *Scanner) ReplayFrom(h uint64) { s.replayFrom = h }

// Observe reports undecodable logs to log and m.
func (s *Scanner) Observe(log *slog.Logger, m *metrics.Metrics) {
	if log != nil {
		s.log = log
	}
	s.metrics = m
}

// History fetches every CounterChanged log from the start block up to the
// confirmed head in chunk_size windows. Events are returned newest first.
func (s *Scanner) History(ctx context.Context) ([]counter.RawEvent, error) {
	safe, ok, err := s.safeHead(ctx)
	if err != nil || !ok {
		return []counter.RawEvent{}, err
	}
	start, err := resolveStartHeight(s.source.StartBlock, safe)
	if err != nil {
		return nil, err
	}
	end := safe
	if s.stopAt > 0 && s.stopAt < end {
		end = s.stopAt
	}

	chunk := s.source.ChunkSize
	if chunk == 0 {
		chunk = config.DefaultChunkSize
	}

	events := []counter.RawEvent{}
	for from := start; from <= end; from += chunk {
		to := from + chunk - 1
		if to > end || to < from {
			to = end
		}
		logs, err := s.client.FilterLogs(ctx, s.decoder.Query(from, to))
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
		}
		for _, lg := range logs {
			if lg.Removed {
				continue
			}
			if ev, ok := s.decode(lg); ok {
				events = append(events, ev)
			}
		}
		if to == end {
			break
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Height != events[j].Height {
			return events[i].Height > events[j].Height
		}
		return events[i].LogIndex > events[j].LogIndex
	})
	return events, nil
}

// ProcessNext handles the next eligible block (respecting confirmations) and returns its events
// in log order. It advances the cursor on success. If a reorg is detected, ErrReorgDetected is
// returned after rewinding.
func (s *Scanner) ProcessNext(ctx context.Context) ([]counter.RawEvent, error) {
	curHeight, curHash, hasCursor, err := s.store.GetCursor(ctx, s.source.ID)
	if err != nil {
		return nil, err
	}

	safeHeight, ok, err := s.safeHead(ctx)
	if err != nil || !ok {
		return nil, err
	}

	target := curHeight + 1
	if !hasCursor {
		if s.replayFrom == 0 {
			return nil, s.anchor(ctx, safeHeight)
		}
		target = s.replayFrom
	}

	if target > safeHeight {
		return nil, nil
	}

	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(target))
	if err != nil {
		return nil, fmt.Errorf("header %d: %w", target, err)
	}

	if hasCursor && header.ParentHash.Hex() != curHash {
		if err := s.rewind(ctx, curHeight, header); err != nil {
			return nil, err
		}
		return nil, ErrReorgDetected
	}

	logs, err := s.client.FilterLogs(ctx, s.decoder.Query(target, target))
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	events := []counter.RawEvent{}
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, ok := s.decode(lg)
		if !ok {
			continue
		}
		ev.Height = target
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].LogIndex < events[j].LogIndex })

	if err := s.store.UpsertCursor(ctx, s.source.ID, target, header.Hash().Hex()); err != nil {
		return nil, err
	}

	return events, nil
}

// decode keeps a matching log even when its payload is malformed; the event
// then counts as Unknown.
func (s *Scanner) decode(lg types.Log) (counter.RawEvent, bool) {
	ev, ok, err := s.decoder.Decode(lg)
	if err != nil {
		s.metrics.Errors()
		s.log.Warn("undecodable counter log", "source", s.source.ID, "event", ev.Key(), "error", err)
	}
	return ev, ok
}

// anchor stores the confirmed head as the cursor. Everything up to it is
// already part of the history snapshot.
func (s *Scanner) anchor(ctx context.Context, height uint64) error {
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return fmt.Errorf("header %d: %w", height, err)
	}
	return s.store.UpsertCursor(ctx, s.source.ID, height, header.Hash().Hex())
}

// rewind steps the cursor one block back so the replaced block is scanned
// again. Deeper reorgs unwind one block per call.
func (s *Scanner) rewind(ctx context.Context, curHeight uint64, next *types.Header) error {
	if curHeight == 0 {
		return s.store.UpsertCursor(ctx, s.source.ID, 0, next.ParentHash.Hex())
	}
	prev, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(curHeight-1))
	if err != nil {
		return fmt.Errorf("header %d: %w", curHeight-1, err)
	}
	return s.store.UpsertCursor(ctx, s.source.ID, curHeight-1, prev.Hash().Hex())
}

// safeHead returns the latest height with enough confirmations; ok is false
// while the chain is shorter than the confirmation depth.
func (s *Scanner) safeHead(ctx context.Context) (uint64, bool, error) {
	latest, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("latest header: %w", err)
	}
	height := latest.Number.Uint64()
	if s.confirmations > height {
		return 0, false, nil
	}
	return height - s.confirmations, true, nil
}

func resolveStartHeight(start string, safeHeight uint64) (uint64, error) {
	if start == "" || start == "0" {
		return 0, nil
	}
	if strings.HasPrefix(start, "latest-") {
		offsetStr := strings.TrimPrefix(start, "latest-")
		n, err := strconv.ParseUint(offsetStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse start_block %q: %w", start, err)
		}
		if n > safeHeight {
			return 0, nil
		}
		return safeHeight - n, nil
	}

	n, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse start_block %q: %w", start, err)
	}
	return n, nil
}
