package evm

import (
	"fmt"
	"math/big"

	"github.com/devblac/counter-watch/internal/counter"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Decoder filters CounterChanged logs of one contract and unpacks them into
// counter.RawEvent values. Payload interpretation is left to the counter package.
type Decoder struct {
	address   common.Address
	event     abi.Event
	synthetic bool
}

// NewDecoder resolves the event ABI for signature and binds it to contract.
func NewDecoder(contract, signature string, abiDirs []string) (*Decoder, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	ev, synthetic, err := LoadEvent(abiDirs, signature)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		address:   common.HexToAddress(contract),
		event:     ev,
		synthetic: synthetic,
	}, nil
}

// Query returns the log filter for the inclusive block range.
func (d *Decoder) Query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{d.address},
		Topics:    [][]common.Hash{{d.event.ID}},
	}
}

// Decode unpacks a log. ok is false for logs of other contracts or events.
// A matching log whose payload cannot be unpacked still yields an event
// carrying only its identity (ok is true) together with the decode error, so
// it counts towards totals without landing in a reason bucket.
func (d *Decoder) Decode(lg types.Log) (counter.RawEvent, bool, error) {
	if lg.Address != d.address || len(lg.Topics) == 0 || lg.Topics[0] != d.event.ID {
		return counter.RawEvent{}, false, nil
	}

	ev := counter.RawEvent{
		TxHash:   lg.TxHash.Hex(),
		LogIndex: lg.Index,
		Height:   lg.BlockNumber,
	}

	inputs := d.inputsFor(len(lg.Topics) - 1)
	indexed, nonIndexed := splitIndexed(inputs)
	if len(indexed) != len(lg.Topics)-1 {
		return ev, true, fmt.Errorf("log %s-%d: %d topics for %d indexed args", ev.TxHash, lg.Index, len(lg.Topics)-1, len(indexed))
	}

	args := map[string]any{}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return ev, true, fmt.Errorf("log %s-%d: parse topics: %w", ev.TxHash, lg.Index, err)
	}
	if err := nonIndexed.UnpackIntoMap(args, lg.Data); err != nil {
		return ev, true, fmt.Errorf("log %s-%d: unpack data: %w", ev.TxHash, lg.Index, err)
	}

	ev.Reason = args[ArgReason]
	ev.OldValue = args[ArgOldValue]
	ev.NewValue = args[ArgNewValue]
	ev.Caller = args[ArgCaller]
	return ev, true, nil
}

// inputsFor returns the event inputs. A synthetic event does not know which
// arguments are indexed, so the leading n are assumed to be.
func (d *Decoder) inputsFor(n int) abi.Arguments {
	if !d.synthetic || n == 0 {
		return d.event.Inputs
	}
	out := make(abi.Arguments, len(d.event.Inputs))
	copy(out, d.event.Inputs)
	for i := 0; i < n && i < len(out); i++ {
		out[i].Indexed = true
	}
	return out
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
