package algorand

import (
	"context"
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	sdk "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/algorand/go-codec/codec"
	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/storage"
)

// statusGetter models the algod Status() fluent call.
type statusGetter interface {
	Do(ctx context.Context, headers ...*common.Header) (models.NodeStatus, error)
}

// blockGetter models the algod BlockRaw() fluent call.
type blockGetter interface {
	Do(ctx context.Context, headers ...*common.Header) ([]byte, error)
}

type blockHashGetter interface {
	Do(ctx context.Context, headers ...*common.Header) (models.BlockHashResponse, error)
}

// AlgodClient is the minimal subset of the algod client we need.
type AlgodClient interface {
	Status() statusGetter
	BlockRaw(round uint64) blockGetter
	GetBlockHash(round uint64) blockHashGetter
}

// NewAlgodClient constructs a real algod client.
func NewAlgodClient(url string) (AlgodClient, error) {
	cli, err := algod.MakeClient(url, "")
	if err != nil {
		return nil, err
	}
	return &clientAdapter{c: cli}, nil
}

type clientAdapter struct {
	c *algod.Client
}

func (a *clientAdapter) Status() statusGetter { return a.c.Status() }
func (a *clientAdapter) BlockRaw(round uint64) blockGetter {
	return a.c.BlockRaw(round)
}
func (a *clientAdapter) GetBlockHash(round uint64) blockHashGetter {
	return a.c.GetBlockHash(round)
}

// blockEnvelope is the msgpack body of algod's raw block endpoint.
type blockEnvelope struct {
	Block sdk.Block `codec:"block"`
}

// Scanner reads calls into the counter app, either as a bounded history
// snapshot or round by round behind a stored cursor.
type Scanner struct {
	client        AlgodClient
	store         *storage.Store
	source        config.Source
	confirmations uint64
	matcher       *AppCallMatcher
	stopAt        uint64
	replayFrom    uint64
}

// NewScanner builds a scanner for an Algorand source.
func NewScanner(client AlgodClient, store *storage.Store, source config.Source, confirmations uint64) (*Scanner, error) {
	if source.AppID == 0 {
		return nil, fmt.Errorf("source %s: app_id required", source.ID)
	}
	key := source.StateKey
	if key == "" {
		key = config.DefaultStateKey
	}
	return &Scanner{
		client:        client,
		store:         store,
		source:        source,
		confirmations: confirmations,
		matcher:       NewAppCallMatcher(source.AppID, key),
	}, nil
}

// ID returns the configured source id.
func (s *Scanner) ID() string { return s.source.ID }

// StopAt caps history snapshots at round r (inclusive). Zero removes the cap.
func (s *Scanner) StopAt(r uint64) { s.stopAt = r }

// ReplayFrom makes a scanner without a cursor start incremental processing at
// round r. By default it starts after the confirmed round.
func (s *Scanner) ReplayFrom(r uint64) { s.replayFrom = r }

// History walks rounds from start_round to the confirmed round, at most
// max_rounds of them, and returns the counter calls newest first.
func (s *Scanner) History(ctx context.Context) ([]counter.RawEvent, error) {
	safe, ok, err := s.safeRound(ctx)
	if err != nil || !ok {
		return []counter.RawEvent{}, err
	}
	end := safe
	if s.stopAt > 0 && s.stopAt < end {
		end = s.stopAt
	}
	start, err := resolveStartRound(s.source.StartRound, safe)
	if err != nil {
		return nil, err
	}
	limit := s.source.MaxRounds
	if limit == 0 {
		limit = config.DefaultMaxRounds
	}
	if end >= limit && end-limit+1 > start {
		start = end - limit + 1
	}

	events := []counter.RawEvent{}
	for round := end + 1; round > start; round-- {
		block, err := s.fetchBlock(ctx, round-1)
		if err != nil {
			return nil, err
		}
		found := s.extractEvents(block, round-1)
		for i := len(found) - 1; i >= 0; i-- {
			events = append(events, found[i])
		}
	}
	return events, nil
}

// ProcessNext handles the next eligible round (respecting confirmations) and returns its events.
// On success advances the cursor. On reorg returns ErrReorgDetected after rewinding.
func (s *Scanner) ProcessNext(ctx context.Context) ([]counter.RawEvent, error) {
	curRound, curHash, hasCursor, err := s.store.GetCursor(ctx, s.source.ID)
	if err != nil {
		return nil, err
	}

	safe, ok, err := s.safeRound(ctx)
	if err != nil || !ok {
		return nil, err
	}

	target := curRound + 1
	if !hasCursor {
		if s.replayFrom == 0 {
			resp, err := s.client.GetBlockHash(safe).Do(ctx)
			if err != nil {
				return nil, fmt.Errorf("block hash %d: %w", safe, err)
			}
			return nil, s.store.UpsertCursor(ctx, s.source.ID, safe, resp.Blockhash)
		}
		target = s.replayFrom
	}

	if target > safe {
		return nil, nil
	}

	block, err := s.fetchBlock(ctx, target)
	if err != nil {
		return nil, err
	}

	if hasCursor {
		prev := digestToString(block.BlockHeader.Branch[:])
		if prev != curHash {
			if err := s.rewind(ctx, curRound, prev); err != nil {
				return nil, err
			}
			return nil, ErrReorgDetected
		}
	}

	hashResp, err := s.client.GetBlockHash(target).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("block hash %d: %w", target, err)
	}
	events := s.extractEvents(block, target)

	if err := s.store.UpsertCursor(ctx, s.source.ID, target, hashResp.Blockhash); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Scanner) rewind(ctx context.Context, curRound uint64, prev string) error {
	if curRound == 0 {
		return s.store.UpsertCursor(ctx, s.source.ID, 0, prev)
	}
	resp, err := s.client.GetBlockHash(curRound - 1).Do(ctx)
	if err != nil {
		return fmt.Errorf("block hash %d: %w", curRound-1, err)
	}
	return s.store.UpsertCursor(ctx, s.source.ID, curRound-1, resp.Blockhash)
}

func (s *Scanner) safeRound(ctx context.Context) (uint64, bool, error) {
	status, err := s.client.Status().Do(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("latest status: %w", err)
	}
	if status.LastRound < s.confirmations {
		return 0, false, nil
	}
	return status.LastRound - s.confirmations, true, nil
}

func (s *Scanner) fetchBlock(ctx context.Context, round uint64) (sdk.Block, error) {
	raw, err := s.client.BlockRaw(round).Do(ctx)
	if err != nil {
		return sdk.Block{}, fmt.Errorf("block %d: %w", round, err)
	}
	var env blockEnvelope
	if err := decodeBlock(raw, &env); err != nil {
		return sdk.Block{}, fmt.Errorf("decode block %d: %w", round, err)
	}
	return env.Block, nil
}

// extractEvents returns the counter calls of a block in payset order. The
// payset offset stands in for the log index.
func (s *Scanner) extractEvents(block sdk.Block, round uint64) []counter.RawEvent {
	var out []counter.RawEvent
	for i, stib := range block.Payset {
		tx := stib.SignedTxnWithAD.SignedTxn.Txn
		ev, ok := s.matcher.MatchTxn(tx, stib.SignedTxnWithAD.ApplyData)
		if !ok {
			continue
		}
		ev.TxHash = crypto.TransactionIDString(tx)
		ev.LogIndex = uint(i)
		ev.Height = round
		out = append(out, ev)
	}
	return out
}

func resolveStartRound(start string, safe uint64) (uint64, error) {
	if start == "" || start == "0" {
		return 0, nil
	}
	if strings.HasPrefix(start, "latest-") {
		offsetStr := strings.TrimPrefix(start, "latest-")
		n, err := strconv.ParseUint(offsetStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse start_round %q: %w", start, err)
		}
		if n > safe {
			return 0, nil
		}
		return safe - n, nil
	}

	n, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse start_round %q: %w", start, err)
	}
	return n, nil
}

func digestToString(b []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
}

func decodeBlock(raw []byte, dest *blockEnvelope) error {
	h := &codec.MsgpackHandle{}
	dec := codec.NewDecoderBytes(raw, h)
	return dec.Decode(dest)
}
