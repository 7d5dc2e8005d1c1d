package evm

import "errors"

// Chain is the identifier for EVM chains.
const Chain = "evm"

// ErrReorgDetected signals that the chain rewound; caller should restart from the updated cursor.
var ErrReorgDetected = errors.New("reorg detected")

// Argument names of the CounterChanged event. ABIs that follow them decode
// without any mapping.
const (
	ArgCaller   = "caller"
	ArgOldValue = "old_value"
	ArgNewValue = "new_value"
	ArgReason   = "reason"
)
