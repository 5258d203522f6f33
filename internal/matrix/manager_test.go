package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefleet/inspection-engine/internal/types"
)

func simpleValidMatrix() *types.InspectionMatrix {
	return &types.InspectionMatrix{
		NodeStorage: []types.ExpressionNode{
			{Kind: types.NodeSignal, SignalID: 1, Left: types.NoChild, Right: types.NoChild}, // 0
			{Kind: types.NodeConstantNumber, ConstantNumber: 5, Left: types.NoChild, Right: types.NoChild}, // 1
			{Kind: types.NodeCompareGT, Left: 0, Right: 1}, // 2
		},
		Conditions: []types.Condition{
			{
				ASTRoot: 2,
				Signals: []types.SignalCollectionInfo{{SignalID: 1, SampleBufferSize: 10}},
			},
		},
	}
}

func TestValidateAcceptsWellFormedMatrix(t *testing.T) {
	err := Validate(simpleValidMatrix())
	assert.NoError(t, err)
}

func TestValidateRejectsForwardPointingChild(t *testing.T) {
	mx := simpleValidMatrix()
	// Make node 0 (a leaf) point forward to node 2, violating child < parent.
	mx.NodeStorage[0].Left = 2
	err := Validate(mx)
	assert.Error(t, err)
}

func TestValidateRejectsUnconfiguredSignal(t *testing.T) {
	mx := simpleValidMatrix()
	mx.Conditions[0].Signals = nil // signal 1 referenced by AST but not declared
	err := Validate(mx)
	assert.Error(t, err)
}

func TestValidateRejectsTooDeepEquation(t *testing.T) {
	nodes := make([]types.ExpressionNode, 0, types.MaxEquationDepth+5)
	nodes = append(nodes, types.ExpressionNode{Kind: types.NodeConstantNumber, ConstantNumber: 1, Left: types.NoChild, Right: types.NoChild})
	for i := 1; i < types.MaxEquationDepth+3; i++ {
		nodes = append(nodes, types.ExpressionNode{Kind: types.NodeBooleanNot, Left: i - 1, Right: types.NoChild})
	}
	mx := &types.InspectionMatrix{
		NodeStorage: nodes,
		Conditions: []types.Condition{
			{ASTRoot: len(nodes) - 1},
		},
	}
	err := Validate(mx)
	assert.Error(t, err)
}

func TestValidateRejectsTooManyConditions(t *testing.T) {
	mx := simpleValidMatrix()
	for i := 0; i < types.MaxActiveConditions; i++ {
		mx.Conditions = append(mx.Conditions, mx.Conditions[0])
	}
	err := Validate(mx)
	assert.Error(t, err)
}

func TestManagerSubmitAdoptRoundTrip(t *testing.T) {
	m := New()
	assert.Empty(t, m.Current().Conditions)

	require.NoError(t, m.Submit(simpleValidMatrix()))
	assert.Empty(t, m.Current().Conditions) // not adopted yet

	assert.True(t, m.AdoptIfDirty())
	assert.Len(t, m.Current().Conditions, 1)
	assert.False(t, m.AdoptIfDirty()) // nothing pending anymore
}

func TestManagerSubmitRejectionKeepsPreviousActive(t *testing.T) {
	m := New()
	require.NoError(t, m.Submit(simpleValidMatrix()))
	require.True(t, m.AdoptIfDirty())
	previous := m.Current()

	bad := simpleValidMatrix()
	bad.Conditions[0].Signals = nil
	err := m.Submit(bad)
	assert.Error(t, err)
	assert.Equal(t, previous, m.Current())
	assert.Error(t, m.LastRejection())
}
