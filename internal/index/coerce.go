package index

import "github.com/embeddb/embeddb/internal/docschema"

// coerceToInt64 implements the numeric coercion rule of spec.md §4.4.2 for an
// integer-keyed indexer: an integer operand passes through; a double operand
// is only accepted when it is exactly integral (ok=false otherwise, meaning
// "no possible match", not an error — the caller returns an empty bitmap); a
// string operand is rejected outright (handled by the caller as
// UnsupportedOperand).
func coerceToInt64(c Constraint) (val int64, ok bool) {
	switch c.OperandType {
	case OperandInteger:
		return c.IntVal, true
	case OperandDouble:
		if c.DoubleVal != float64(int64(c.DoubleVal)) {
			return 0, false
		}
		return int64(c.DoubleVal), true
	default:
		return 0, false
	}
}

// coerceToFloat64 implements the coercion rule for a double-keyed indexer:
// an integer operand widens to double; a double operand passes through; a
// string operand is rejected.
func coerceToFloat64(c Constraint) (val float64, ok bool) {
	switch c.OperandType {
	case OperandInteger:
		return float64(c.IntVal), true
	case OperandDouble:
		return c.DoubleVal, true
	default:
		return 0, false
	}
}

func isNumeric(k docschema.FieldKind) bool {
	return k.IsInteger() || k.IsFloat()
}
