package algorand

import (
	"strings"
	"unicode/utf8"

	sdk "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/devblac/counter-watch/internal/counter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// methodAliases maps common counter method names onto reason names.
var methodAliases = map[string]string{
	"increment": "Increase",
	"inc":       "Increase",
	"decrement": "Decrease",
	"dec":       "Decrease",
}

// AppCallMatcher turns application calls of the counter app into raw events.
type AppCallMatcher struct {
	appID    uint64
	stateKey string
}

// NewAppCallMatcher builds a matcher for appID reading the counter value from
// the global state key stateKey.
func NewAppCallMatcher(appID uint64, stateKey string) *AppCallMatcher {
	return &AppCallMatcher{
		appID:    appID,
		stateKey: stateKey,
	}
}

// MatchTxn inspects a transaction and returns a raw event when it is a call
// into the counter app. The old value is never known on Algorand; inference
// reconstructs it.
func (m *AppCallMatcher) MatchTxn(tx sdk.Transaction, apply sdk.ApplyData) (counter.RawEvent, bool) {
	if tx.Type != sdk.ApplicationCallTx || uint64(tx.ApplicationID) != m.appID {
		return counter.RawEvent{}, false
	}

	ev := counter.RawEvent{
		Caller: tx.Sender.String(),
	}
	if len(tx.ApplicationArgs) > 0 {
		ev.Reason = m.reason(tx.ApplicationArgs[0])
	}
	if delta, ok := apply.EvalDelta.GlobalDelta[m.stateKey]; ok && delta.Action == sdk.SetUintAction {
		ev.NewValue = delta.Uint
	}
	return ev, true
}

// reason canonicalises a method argument: "increase", "INCREASE" and
// "increment" all become "Increase". Non-text arguments (ABI selectors) are
// left undecided.
func (m *AppCallMatcher) reason(arg []byte) any {
	if len(arg) == 0 || !utf8.Valid(arg) {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(string(arg)))
	if alias, ok := methodAliases[name]; ok {
		return alias
	}
	return cases.Title(language.Und).String(name)
}
