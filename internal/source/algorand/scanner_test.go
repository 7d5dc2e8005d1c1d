package algorand

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	sdk "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/algorand/go-codec/codec"
	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/storage"
)

type fakeStatus struct {
	resp models.NodeStatus
	err  error
}

func (f fakeStatus) Do(ctx context.Context, headers ...*common.Header) (models.NodeStatus, error) {
	return f.resp, f.err
}

type fakeBlock struct {
	raw []byte
	err error
}

func (f fakeBlock) Do(ctx context.Context, headers ...*common.Header) ([]byte, error) {
	return f.raw, f.err
}

type fakeBlockHash struct {
	resp models.BlockHashResponse
	err  error
}

func (f fakeBlockHash) Do(ctx context.Context, headers ...*common.Header) (models.BlockHashResponse, error) {
	return f.resp, f.err
}

type fakeAlgod struct {
	t           *testing.T
	lastRound   uint64
	blocks      map[uint64]sdk.Block
	blockHashes map[uint64]string
	fetched     []uint64
}

func (f *fakeAlgod) Status() statusGetter {
	return fakeStatus{resp: models.NodeStatus{LastRound: f.lastRound}}
}

func (f *fakeAlgod) BlockRaw(round uint64) blockGetter {
	f.fetched = append(f.fetched, round)
	b, ok := f.blocks[round]
	if !ok {
		b = sdk.Block{BlockHeader: sdk.BlockHeader{Round: sdk.Round(round)}}
	}
	return fakeBlock{raw: encodeBlock(f.t, b)}
}

func (f *fakeAlgod) GetBlockHash(round uint64) blockHashGetter {
	h := f.blockHashes[round]
	if h == "" {
		h = fmt.Sprintf("hash%d", round)
	}
	return fakeBlockHash{resp: models.BlockHashResponse{Blockhash: h}}
}

func encodeBlock(t *testing.T, b sdk.Block) []byte {
	t.Helper()
	var out []byte
	enc := codec.NewEncoderBytes(&out, &codec.MsgpackHandle{})
	if err := enc.Encode(blockEnvelope{Block: b}); err != nil {
		t.Fatalf("encode block: %v", err)
	}
	return out
}

func blockWith(round uint64, txns ...sdk.SignedTxnWithAD) sdk.Block {
	payset := make([]sdk.SignedTxnInBlock, 0, len(txns))
	for _, tx := range txns {
		payset = append(payset, sdk.SignedTxnInBlock{SignedTxnWithAD: tx})
	}
	return sdk.Block{
		BlockHeader: sdk.BlockHeader{Round: sdk.Round(round)},
		Payset:      payset,
	}
}

func signed(tx sdk.Transaction, apply sdk.ApplyData) sdk.SignedTxnWithAD {
	return sdk.SignedTxnWithAD{SignedTxn: sdk.SignedTxn{Txn: tx}, ApplyData: apply}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSource() config.Source {
	return config.Source{ID: "counter_algo", Type: "algorand", AlgodURL: "stub", AppID: 123, StateKey: "counter"}
}

func TestScannerProcessesRound(t *testing.T) {
	store := newTestStore(t)
	sender := sdk.Address{9}

	client := &fakeAlgod{
		t:         t,
		lastRound: 1,
		blocks: map[uint64]sdk.Block{
			1: blockWith(1,
				signed(sdk.Transaction{Type: sdk.PaymentTx, Header: sdk.Header{Sender: sender}}, sdk.ApplyData{}),
				signed(appCall(123, sender, "increase"), counterDelta("counter", 1)),
			),
		},
		blockHashes: map[uint64]string{1: "hash1"},
	}

	src := testSource()
	scanner, err := NewScanner(client, store, src, 0)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	scanner.ReplayFrom(1)

	evs, err := scanner.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].LogIndex != 1 || evs[0].Height != 1 || evs[0].TxHash == "" {
		t.Fatalf("unexpected event position: %+v", evs[0])
	}
	if counter.Decode(evs[0].Reason) != counter.Increase {
		t.Fatalf("reason = %v", evs[0].Reason)
	}
	h, hash, ok, err := store.GetCursor(context.Background(), src.ID)
	if err != nil || !ok || h != 1 || hash != "hash1" {
		t.Fatalf("cursor not advanced: h=%d hash=%s ok=%v err=%v", h, hash, ok, err)
	}
}

func TestScannerStartsAfterConfirmedRound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sender := sdk.Address{9}
	var prev sdk.BlockHash
	prev[0] = 7
	round5 := blockWith(5, signed(appCall(123, sender, "increase"), counterDelta("counter", 2)))
	round5.BlockHeader.Branch = prev
	client := &fakeAlgod{
		t:         t,
		lastRound: 4,
		blocks: map[uint64]sdk.Block{
			3: blockWith(3, signed(appCall(123, sender, "increase"), counterDelta("counter", 1))),
			5: round5,
		},
		blockHashes: map[uint64]string{4: digestToString(prev[:])},
	}
	scanner, err := NewScanner(client, store, testSource(), 0)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	evs, err := scanner.ProcessNext(ctx)
	if err != nil || len(evs) != 0 {
		t.Fatalf("first call should only anchor, evs=%v err=%v", evs, err)
	}
	h, hash, ok, _ := store.GetCursor(ctx, "counter_algo")
	if !ok || h != 4 || hash != digestToString(prev[:]) {
		t.Fatalf("cursor not anchored: h=%d hash=%s ok=%v", h, hash, ok)
	}
	if len(client.fetched) != 0 {
		t.Fatalf("anchoring should not fetch blocks, fetched %v", client.fetched)
	}

	client.lastRound = 5
	evs, err = scanner.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("process next: %v", err)
	}
	if len(evs) != 1 || evs[0].Height != 5 {
		t.Fatalf("expected only the round 5 call, got %+v", evs)
	}
}

func TestScannerReorgDetection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.UpsertCursor(ctx, "counter_algo", 1, "prevhash"); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	client := &fakeAlgod{t: t, lastRound: 2, blockHashes: map[uint64]string{0: "genesis"}}
	scanner, err := NewScanner(client, store, testSource(), 0)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	_, err = scanner.ProcessNext(ctx)
	if !errors.Is(err, ErrReorgDetected) {
		t.Fatalf("expected reorg err, got %v", err)
	}
	h, hash, _, _ := store.GetCursor(ctx, "counter_algo")
	if h != 0 || hash != "genesis" {
		t.Fatalf("cursor not rewound: %d %s", h, hash)
	}
}

func TestScannerHistoryNewestFirst(t *testing.T) {
	a, b := sdk.Address{1}, sdk.Address{2}
	client := &fakeAlgod{
		t:         t,
		lastRound: 5,
		blocks: map[uint64]sdk.Block{
			2: blockWith(2, signed(appCall(123, a, "increase"), counterDelta("counter", 1))),
			3: blockWith(3,
				signed(appCall(123, b, "increase"), counterDelta("counter", 2)),
				signed(appCall(123, a, "reset"), counterDelta("counter", 0)),
			),
			5: blockWith(5, signed(appCall(123, b, "set"), counterDelta("counter", 10))),
		},
	}

	scanner, err := NewScanner(client, newTestStore(t), testSource(), 1)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	history, err := scanner.History(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 confirmed events, got %d", len(history))
	}
	if history[0].Height != 3 || history[0].LogIndex != 1 || history[2].Height != 2 {
		t.Fatalf("history not newest first: %+v", history)
	}

	view := counter.Aggregate(history, true)
	if view.Increases != 2 || view.Resets != 1 || view.UniqueUsers != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestScannerHistoryBoundedByMaxRounds(t *testing.T) {
	client := &fakeAlgod{t: t, lastRound: 100}
	src := testSource()
	src.MaxRounds = 10
	scanner, err := NewScanner(client, newTestStore(t), src, 0)
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	if _, err := scanner.History(context.Background()); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(client.fetched) != 10 || client.fetched[0] != 100 || client.fetched[9] != 91 {
		t.Fatalf("unexpected rounds fetched: %v", client.fetched)
	}
}

func TestNewScannerRequiresApp(t *testing.T) {
	if _, err := NewScanner(&fakeAlgod{t: t}, nil, config.Source{ID: "x"}, 0); err == nil {
		t.Fatalf("expected error without app_id")
	}
}
