// Package eval implements the Expression Evaluator (spec §4.3, C3): a
// pure, depth-first walk over a condition's flat AST against the current
// sample store. Evaluation never mutates the store and carries no hidden
// state.
package eval

import (
	"github.com/edgefleet/inspection-engine/internal/types"
)

// SampleSource is the read-only view of the sample store the evaluator
// needs. store.Store satisfies this interface; it is narrowed here so
// eval does not import store's concrete type and stays independently
// testable.
type SampleSource interface {
	LastValue(id types.SignalID) types.TypedValue
	WindowStat(id types.SignalID, agg types.WindowAggregate, periodMs uint32, now types.Timestamp) (float64, bool)
}

// Evaluate walks the AST rooted at nodes[root] and returns its value.
// Division by zero, missing signals, and empty windows all collapse to
// the INVALID sentinel rather than panicking (spec §4.3, §7).
func Evaluate(nodes []types.ExpressionNode, root int, store SampleSource, now types.Timestamp) types.TypedValue {
	if root < 0 || root >= len(nodes) {
		return types.Invalid()
	}
	n := &nodes[root]

	switch n.Kind {
	case types.NodeSignal:
		return store.LastValue(n.SignalID)

	case types.NodeConstantNumber:
		return types.FloatValue(n.ConstantNumber)

	case types.NodeConstantBool:
		return types.BoolValue(n.ConstantBool)

	case types.NodeWindow:
		v, ok := store.WindowStat(n.SignalID, n.WindowAggregate, n.WindowPeriodMs, now)
		if !ok {
			return types.Invalid()
		}
		return types.FloatValue(v)

	case types.NodeArithmeticAdd, types.NodeArithmeticSub, types.NodeArithmeticMul, types.NodeArithmeticDiv:
		return evalArithmetic(nodes, n, store, now)

	case types.NodeCompareLT, types.NodeCompareLE, types.NodeCompareGT, types.NodeCompareGE, types.NodeCompareEQ, types.NodeCompareNE:
		return evalCompare(nodes, n, store, now)

	case types.NodeBooleanAnd:
		return evalAnd(nodes, n, store, now)

	case types.NodeBooleanOr:
		return evalOr(nodes, n, store, now)

	case types.NodeBooleanNot:
		return evalNot(nodes, n, store, now)

	default:
		return types.Invalid()
	}
}

func evalArithmetic(nodes []types.ExpressionNode, n *types.ExpressionNode, store SampleSource, now types.Timestamp) types.TypedValue {
	left := Evaluate(nodes, n.Left, store, now)
	right := Evaluate(nodes, n.Right, store, now)
	if left.IsInvalid() || right.IsInvalid() {
		return types.Invalid()
	}
	l, r := left.AsF64(), right.AsF64()
	switch n.Kind {
	case types.NodeArithmeticAdd:
		return types.FloatValue(l + r)
	case types.NodeArithmeticSub:
		return types.FloatValue(l - r)
	case types.NodeArithmeticMul:
		return types.FloatValue(l * r)
	case types.NodeArithmeticDiv:
		if r == 0 {
			// Division by zero produces INVALID, which propagates and
			// forces the top-level condition to false (spec §4.3, §8.6);
			// it never panics.
			return types.Invalid()
		}
		return types.FloatValue(l / r)
	default:
		return types.Invalid()
	}
}

func evalCompare(nodes []types.ExpressionNode, n *types.ExpressionNode, store SampleSource, now types.Timestamp) types.TypedValue {
	left := Evaluate(nodes, n.Left, store, now)
	right := Evaluate(nodes, n.Right, store, now)
	if left.IsInvalid() || right.IsInvalid() {
		return types.Invalid()
	}
	l, r := left.AsF64(), right.AsF64()
	switch n.Kind {
	case types.NodeCompareLT:
		return types.BoolValue(l < r)
	case types.NodeCompareLE:
		return types.BoolValue(l <= r)
	case types.NodeCompareGT:
		return types.BoolValue(l > r)
	case types.NodeCompareGE:
		return types.BoolValue(l >= r)
	case types.NodeCompareEQ:
		return types.BoolValue(l == r)
	case types.NodeCompareNE:
		return types.BoolValue(l != r)
	default:
		return types.Invalid()
	}
}

// evalAnd combines two operands with INVALID tolerance: when exactly one
// operand is INVALID the result is the negation of the other operand's
// boolean value, and when both are INVALID the result is INVALID. Both
// operands are always evaluated; a false left operand does not skip the
// right one.
func evalAnd(nodes []types.ExpressionNode, n *types.ExpressionNode, store SampleSource, now types.Timestamp) types.TypedValue {
	left := Evaluate(nodes, n.Left, store, now)
	right := Evaluate(nodes, n.Right, store, now)
	switch {
	case left.IsInvalid() && right.IsInvalid():
		return types.Invalid()
	case left.IsInvalid():
		// AND with a missing operand resolves to the surviving operand's
		// falsity, not its truth (spec §4.3).
		return types.BoolValue(!right.AsBool())
	case right.IsInvalid():
		return types.BoolValue(!left.AsBool())
	default:
		return types.BoolValue(left.AsBool() && right.AsBool())
	}
}

// evalOr implements "OR returns the non-invalid operand's truth".
func evalOr(nodes []types.ExpressionNode, n *types.ExpressionNode, store SampleSource, now types.Timestamp) types.TypedValue {
	left := Evaluate(nodes, n.Left, store, now)
	right := Evaluate(nodes, n.Right, store, now)
	switch {
	case left.IsInvalid() && right.IsInvalid():
		return types.Invalid()
	case left.IsInvalid():
		return types.BoolValue(right.AsBool())
	case right.IsInvalid():
		return types.BoolValue(left.AsBool())
	default:
		return types.BoolValue(left.AsBool() || right.AsBool())
	}
}

// evalNot: INVALID stays INVALID.
func evalNot(nodes []types.ExpressionNode, n *types.ExpressionNode, store SampleSource, now types.Timestamp) types.TypedValue {
	v := Evaluate(nodes, n.Left, store, now)
	if v.IsInvalid() {
		return types.Invalid()
	}
	return types.BoolValue(!v.AsBool())
}
