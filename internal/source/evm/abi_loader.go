package evm

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// defaultCounterABI describes the counter contract the watcher was built for.
const defaultCounterABI = `[
	{"type":"event","name":"CounterChanged","anonymous":false,"inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"old_value","type":"uint256","indexed":false},
		{"name":"new_value","type":"uint256","indexed":false},
		{"name":"reason","type":"string","indexed":false}
	]}
]`

// LoadEvent resolves the event for signature. ABI files under dirs win; the
// built-in counter ABI comes next; a synthetic event built from the signature
// is the last resort.
func LoadEvent(dirs []string, signature string) (abi.Event, bool, error) {
	id := crypto.Keccak256Hash([]byte(signature))

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		ev, ok, err := findInDir(dir, id)
		if err != nil {
			return abi.Event{}, false, err
		}
		if ok {
			return ev, false, nil
		}
	}

	def, err := abi.JSON(strings.NewReader(defaultCounterABI))
	if err != nil {
		return abi.Event{}, false, fmt.Errorf("parse built-in abi: %w", err)
	}
	for _, ev := range def.Events {
		if ev.ID == id {
			return ev, false, nil
		}
	}

	ev, err := syntheticEvent(signature)
	if err != nil {
		return abi.Event{}, false, err
	}
	return ev, true, nil
}

func findInDir(dir string, id [32]byte) (abi.Event, bool, error) {
	var (
		found abi.Event
		ok    bool
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ok || d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read abi %s: %w", path, err)
		}
		a, err := abi.JSON(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("parse abi %s: %w", path, err)
		}
		for _, ev := range a.Events {
			if ev.ID == id {
				found, ok = ev, true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return abi.Event{}, false, err
	}
	return found, ok, nil
}

// syntheticEvent builds an Event from a bare signature such as
// CounterChanged(address,uint256,uint256,string). Arguments are named by role:
// the first address is the caller, the first two integers are the old and new
// values and the first remaining argument is the reason.
func syntheticEvent(signature string) (abi.Event, error) {
	l := strings.Index(signature, "(")
	r := strings.LastIndex(signature, ")")
	if l <= 0 || r <= l {
		return abi.Event{}, fmt.Errorf("invalid event signature: %s", signature)
	}
	name := signature[:l]

	var (
		args     abi.Arguments
		ints     int
		assigned = map[string]bool{}
	)
	for i, raw := range strings.Split(signature[l+1:r], ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		t, err := abi.NewType(raw, "", nil)
		if err != nil {
			return abi.Event{}, fmt.Errorf("parse type %s: %w", raw, err)
		}

		argName := fmt.Sprintf("arg%d", i)
		switch {
		case t.T == abi.AddressTy && !assigned[ArgCaller]:
			argName = ArgCaller
		case (t.T == abi.UintTy || t.T == abi.IntTy) && ints < 2:
			argName = []string{ArgOldValue, ArgNewValue}[ints]
			ints++
		case !assigned[ArgReason]:
			argName = ArgReason
		}
		assigned[argName] = true
		args = append(args, abi.Argument{Name: argName, Type: t})
	}

	return abi.NewEvent(name, name, false, args), nil
}
