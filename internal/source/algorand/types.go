package algorand

import "errors"

// Chain identifier for Algorand.
const Chain = "algorand"

// ErrReorgDetected signals that the chain rewound; caller should restart from the updated cursor.
var ErrReorgDetected = errors.New("reorg detected")
