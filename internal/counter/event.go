package counter

import "fmt"

// RawEvent is a CounterChanged log entry as delivered by a chain source. The
// payload fields are left loosely typed on purpose: each source decodes them
// its own way and Normalize copes with all of them.
type RawEvent struct {
	TxHash   string
	LogIndex uint
	Height   uint64

	Reason   any
	OldValue any
	NewValue any
	Caller   any
}

// Key is the identity used for deduplication and display keys.
func (e RawEvent) Key() string {
	return fmt.Sprintf("%s-%d", e.TxHash, e.LogIndex)
}

// NormalizedEvent is a RawEvent after decoding and inference.
type NormalizedEvent struct {
	Reason   Reason `json:"reason"`
	OldValue *int64 `json:"old_value,omitempty"`
	NewValue *int64 `json:"new_value,omitempty"`
	Caller   string `json:"caller,omitempty"`
	Sequence int    `json:"sequence"`
	Running  int64  `json:"running_value"`

	TxHash   string `json:"tx_hash"`
	LogIndex uint   `json:"log_index"`
	Height   uint64 `json:"height"`
}

// Key is the identity of the underlying RawEvent.
func (e NormalizedEvent) Key() string {
	return fmt.Sprintf("%s-%d", e.TxHash, e.LogIndex)
}

// Resolved is the value plotted for this event: the explicit new value when
// the event carries one, the reconstructed running value otherwise.
func (e NormalizedEvent) Resolved() int64 {
	if e.NewValue != nil {
		return *e.NewValue
	}
	return e.Running
}

// Change renders the value transition, e.g. "4 → 5".
func (e NormalizedEvent) Change() string {
	if e.OldValue != nil && e.NewValue != nil {
		return fmt.Sprintf("%d → %d", *e.OldValue, *e.NewValue)
	}
	return "counter changed"
}

// Normalize replays events oldest-first and resolves each one. newestFirst
// states the order of the input, as chain history is usually returned newest
// first. The input slice is not modified.
func Normalize(events []RawEvent, newestFirst bool) []NormalizedEvent {
	return NormalizeFrom(0, events, newestFirst)
}

// NormalizeFrom is Normalize with a known starting running value, used for
// events that continue an already replayed history.
func NormalizeFrom(start int64, events []RawEvent, newestFirst bool) []NormalizedEvent {
	out := make([]NormalizedEvent, 0, len(events))
	running := start
	for i := range events {
		raw := events[i]
		if newestFirst {
			raw = events[len(events)-1-i]
		}
		ev := normalizeOne(running, raw)
		ev.Sequence = i
		running = ev.Running
		out = append(out, ev)
	}
	return out
}

func normalizeOne(prev int64, raw RawEvent) NormalizedEvent {
	oldV := optionalInt(raw.OldValue)
	newV := optionalInt(raw.NewValue)
	inf := Infer(prev, oldV, newV, Decode(raw.Reason))
	return NormalizedEvent{
		Reason:   inf.Reason,
		OldValue: oldV,
		NewValue: newV,
		Caller:   AddressValue(raw.Caller),
		Running:  inf.Value,
		TxHash:   raw.TxHash,
		LogIndex: raw.LogIndex,
		Height:   raw.Height,
	}
}

// Recent returns up to n of the latest events, newest first. events must be in
// chronological order, as returned by Normalize.
func Recent(events []NormalizedEvent, n int) []NormalizedEvent {
	if n <= 0 || len(events) == 0 {
		return []NormalizedEvent{}
	}
	if n > len(events) {
		n = len(events)
	}
	out := make([]NormalizedEvent, 0, n)
	for i := len(events) - 1; i >= len(events)-n; i-- {
		out = append(out, events[i])
	}
	return out
}
