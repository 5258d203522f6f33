package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/inspection-engine/internal/types"
)

type fakeStore struct {
	values  map[types.SignalID]types.TypedValue
	windows map[types.SignalID]float64
	windowOK map[types.SignalID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:   make(map[types.SignalID]types.TypedValue),
		windows:  make(map[types.SignalID]float64),
		windowOK: make(map[types.SignalID]bool),
	}
}

func (f *fakeStore) LastValue(id types.SignalID) types.TypedValue {
	if v, ok := f.values[id]; ok {
		return v
	}
	return types.Invalid()
}

func (f *fakeStore) WindowStat(id types.SignalID, agg types.WindowAggregate, periodMs uint32, now types.Timestamp) (float64, bool) {
	if ok := f.windowOK[id]; ok {
		return f.windows[id], true
	}
	return 0, false
}

func TestEvaluateSignalGreaterThanConstant(t *testing.T) {
	nodes := []types.ExpressionNode{
		{Kind: types.NodeSignal, SignalID: 42},             // 0
		{Kind: types.NodeConstantNumber, ConstantNumber: 10}, // 1
		{Kind: types.NodeCompareGT, Left: 0, Right: 1},       // 2
	}
	fs := newFakeStore()
	fs.values[42] = types.FloatValue(15)

	v := Evaluate(nodes, 2, fs, 0)
	assert.False(t, v.IsInvalid())
	assert.True(t, v.AsBool())
}

func TestEvaluateDivisionByZeroIsInvalid(t *testing.T) {
	nodes := []types.ExpressionNode{
		{Kind: types.NodeConstantNumber, ConstantNumber: 10}, // 0
		{Kind: types.NodeConstantNumber, ConstantNumber: 0},  // 1
		{Kind: types.NodeArithmeticDiv, Left: 0, Right: 1},   // 2
		{Kind: types.NodeConstantNumber, ConstantNumber: 5},  // 3
		{Kind: types.NodeCompareGT, Left: 2, Right: 3},       // 4
	}
	fs := newFakeStore()
	v := Evaluate(nodes, 4, fs, 0)
	assert.True(t, v.IsInvalid())
}

func TestEvaluateMissingSignalIsInvalid(t *testing.T) {
	nodes := []types.ExpressionNode{
		{Kind: types.NodeSignal, SignalID: 99},
	}
	fs := newFakeStore()
	v := Evaluate(nodes, 0, fs, 0)
	assert.True(t, v.IsInvalid())
}

func TestEvaluateAndOrInvalidSemantics(t *testing.T) {
	invalidNode := []types.ExpressionNode{
		{Kind: types.NodeSignal, SignalID: 1}, // 0: invalid, no value set
		{Kind: types.NodeConstantBool, ConstantBool: true}, // 1
		{Kind: types.NodeBooleanAnd, Left: 0, Right: 1},    // 2
		{Kind: types.NodeBooleanOr, Left: 0, Right: 1},     // 3
	}
	fs := newFakeStore()

	and := Evaluate(invalidNode, 2, fs, 0)
	assert.False(t, and.IsInvalid())
	assert.False(t, and.AsBool()) // falsity of `true` is false

	or := Evaluate(invalidNode, 3, fs, 0)
	assert.False(t, or.IsInvalid())
	assert.True(t, or.AsBool()) // truth of `true` is true

	bothInvalid := []types.ExpressionNode{
		{Kind: types.NodeSignal, SignalID: 1},
		{Kind: types.NodeSignal, SignalID: 2},
		{Kind: types.NodeBooleanAnd, Left: 0, Right: 1},
	}
	v := Evaluate(bothInvalid, 2, fs, 0)
	assert.True(t, v.IsInvalid())
}

func TestEvaluateNotPropagatesInvalid(t *testing.T) {
	nodes := []types.ExpressionNode{
		{Kind: types.NodeSignal, SignalID: 1},
		{Kind: types.NodeBooleanNot, Left: 0},
	}
	fs := newFakeStore()
	v := Evaluate(nodes, 1, fs, 0)
	assert.True(t, v.IsInvalid())
}

func TestEvaluateWindowNode(t *testing.T) {
	nodes := []types.ExpressionNode{
		{Kind: types.NodeWindow, SignalID: 7, WindowAggregate: types.LastWindowMax, WindowPeriodMs: 100},
	}
	fs := newFakeStore()
	fs.windowOK[7] = true
	fs.windows[7] = 55.5

	v := Evaluate(nodes, 0, fs, 200)
	assert.False(t, v.IsInvalid())
	assert.Equal(t, 55.5, v.AsF64())
}
