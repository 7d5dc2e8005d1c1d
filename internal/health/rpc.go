package health

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/devblac/counter-watch/internal/source/algorand"
	"github.com/devblac/counter-watch/internal/source/evm"
)

// RPCChecker pings the node behind every configured source.
type RPCChecker struct {
	evmClients      map[string]evm.BlockClient
	algorandClients map[string]algorand.AlgodClient
}

// NewRPCChecker creates a checker for the given per-source clients.
func NewRPCChecker(evmClients map[string]evm.BlockClient, algorandClients map[string]algorand.AlgodClient) *RPCChecker {
	return &RPCChecker{
		evmClients:      evmClients,
		algorandClients: algorandClients,
	}
}

// Sources pings each node and returns the error per source id (nil when healthy).
func (c *RPCChecker) Sources(ctx context.Context) map[string]error {
	_, errs := c.probe(ctx)
	return errs
}

// Heads returns the latest height/round of every reachable source.
func (c *RPCChecker) Heads(ctx context.Context) map[string]uint64 {
	heads, _ := c.probe(ctx)
	return heads
}

func (c *RPCChecker) probe(ctx context.Context) (map[string]uint64, map[string]error) {
	n := len(c.evmClients) + len(c.algorandClients)
	heads := make(map[string]uint64, n)
	errs := make(map[string]error, n)
	for id, cli := range c.evmClients {
		h, err := cli.HeaderByNumber(ctx, nil)
		if err == nil && h != nil && h.Number != nil {
			heads[id] = h.Number.Uint64()
		}
		errs[id] = wrap(evm.Chain, err)
	}
	for id, cli := range c.algorandClients {
		st, err := cli.Status().Do(ctx)
		if err == nil {
			heads[id] = st.LastRound
		}
		errs[id] = wrap(algorand.Chain, err)
	}
	return heads, errs
}

// Ping returns every failing source joined into one error.
func (c *RPCChecker) Ping(ctx context.Context) error {
	results := c.Sources(ctx)
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if results[id] != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", id, results[id]))
		}
	}
	return errors.Join(errs...)
}

func wrap(chain string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s rpc: %w", chain, err)
}
