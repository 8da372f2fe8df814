package infer

import (
	"math"

	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Numeric width policy
// ---------------------------------------------------------------------------

// literalIntType picks the width of an integer literal: the widest safe
// fixed width (64) unless range analysis proves 32 bits represent the
// value exactly. Joining against a declared int hint widens as needed.
func literalIntType(v int64) *ir.Type {
	if FitsInt32(v) {
		return ir.Int(32)
	}
	return ir.Int(64)
}

// FitsInt32 reports whether v is exactly representable in 32 bits.
func FitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
