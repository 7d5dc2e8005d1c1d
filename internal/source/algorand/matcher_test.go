package algorand

import (
	"testing"

	sdk "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/devblac/counter-watch/internal/counter"
)

func appCall(appID uint64, sender sdk.Address, args ...string) sdk.Transaction {
	raw := make([][]byte, 0, len(args))
	for _, a := range args {
		raw = append(raw, []byte(a))
	}
	return sdk.Transaction{
		Type:   sdk.ApplicationCallTx,
		Header: sdk.Header{Sender: sender},
		ApplicationFields: sdk.ApplicationFields{
			ApplicationCallTxnFields: sdk.ApplicationCallTxnFields{
				ApplicationID:   sdk.AppIndex(appID),
				OnCompletion:    sdk.NoOpOC,
				ApplicationArgs: raw,
			},
		},
	}
}

func counterDelta(key string, v uint64) sdk.ApplyData {
	return sdk.ApplyData{
		EvalDelta: sdk.EvalDelta{
			GlobalDelta: sdk.StateDelta{key: {Action: sdk.SetUintAction, Uint: v}},
		},
	}
}

func TestMatcherReasonFromMethodArg(t *testing.T) {
	m := NewAppCallMatcher(123, "counter")
	cases := []struct {
		arg  string
		want counter.Reason
	}{
		{"increase", counter.Increase},
		{"DECREASE", counter.Decrease},
		{" reset ", counter.Reset},
		{"set", counter.Set},
		{"increment", counter.Increase},
		{"dec", counter.Decrease},
		{"bump", counter.Unknown},
	}
	for _, c := range cases {
		ev, ok := m.MatchTxn(appCall(123, sdk.Address{1}, c.arg), sdk.ApplyData{})
		if !ok {
			t.Fatalf("%q: expected match", c.arg)
		}
		if got := counter.Decode(ev.Reason); got != c.want {
			t.Fatalf("%q: reason = %s, want %s", c.arg, got, c.want)
		}
	}
}

func TestMatcherSelectorArgIsUndecided(t *testing.T) {
	m := NewAppCallMatcher(123, "counter")
	ev, ok := m.MatchTxn(appCall(123, sdk.Address{1}, string([]byte{0xff, 0xfe, 0x01, 0x02})), sdk.ApplyData{})
	if !ok {
		t.Fatalf("expected match")
	}
	if ev.Reason != nil {
		t.Fatalf("expected nil reason for binary arg, got %v", ev.Reason)
	}
}

func TestMatcherReadsGlobalDelta(t *testing.T) {
	m := NewAppCallMatcher(123, "counter")
	sender := sdk.Address{7}

	ev, ok := m.MatchTxn(appCall(123, sender, "set"), counterDelta("counter", 42))
	if !ok {
		t.Fatalf("expected match")
	}
	if n, ok := counter.IntValue(ev.NewValue); !ok || n != 42 {
		t.Fatalf("new value = %v", ev.NewValue)
	}
	if ev.OldValue != nil {
		t.Fatalf("old value must be absent, got %v", ev.OldValue)
	}
	if ev.Caller != sender.String() {
		t.Fatalf("caller = %v", ev.Caller)
	}

	ev, _ = m.MatchTxn(appCall(123, sender, "set"), counterDelta("other", 42))
	if ev.NewValue != nil {
		t.Fatalf("unexpected value from foreign key: %v", ev.NewValue)
	}
}

func TestMatcherIgnoresOtherTransactions(t *testing.T) {
	m := NewAppCallMatcher(123, "counter")
	if _, ok := m.MatchTxn(appCall(999, sdk.Address{1}, "increase"), sdk.ApplyData{}); ok {
		t.Fatalf("foreign app matched")
	}
	pay := sdk.Transaction{Type: sdk.PaymentTx, Header: sdk.Header{Sender: sdk.Address{1}}}
	if _, ok := m.MatchTxn(pay, sdk.ApplyData{}); ok {
		t.Fatalf("payment matched")
	}
}
