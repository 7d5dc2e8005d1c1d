package counter

import "math"

// Inference is the outcome of ValueInference for one event.
type Inference struct {
	Reason Reason
	Value  int64 // running counter value after the event
}

// Infer resolves the reason and running value for one event.
//
// A decoded reason keeps its identity; the running value becomes newV when
// present, otherwise prev moved by the reason's default delta. An Unknown
// reason is inferred from the (old, new) pair, checked in the order
// Reset, Increase, Decrease, Set; a 1 -> 0 transition is a Reset. When either
// side is missing nothing is inferred and prev carries over.
//
// This is a compatibility shim for historical events whose reason cannot be
// decoded; new encodings should not rely on it.
func Infer(prev int64, oldV, newV *int64, decoded Reason) Inference {
	if decoded.Known() {
		if newV != nil {
			return Inference{Reason: decoded, Value: *newV}
		}
		switch decoded {
		case Increase:
			return Inference{Reason: decoded, Value: prev + 1}
		case Decrease:
			return Inference{Reason: decoded, Value: prev - 1}
		case Reset:
			return Inference{Reason: decoded, Value: 0}
		default:
			return Inference{Reason: decoded, Value: prev}
		}
	}

	if oldV == nil || newV == nil {
		return Inference{Reason: Unknown, Value: prev}
	}
	o, n := *oldV, *newV
	switch {
	case n == 0 && o != 0:
		return Inference{Reason: Reset, Value: n}
	case o != math.MaxInt64 && n == o+1:
		return Inference{Reason: Increase, Value: n}
	case o != math.MinInt64 && n == o-1:
		return Inference{Reason: Decrease, Value: n}
	case n != o:
		return Inference{Reason: Set, Value: n}
	}
	return Inference{Reason: Unknown, Value: prev}
}
