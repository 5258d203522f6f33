package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefleet/inspection-engine/internal/matrix"
	"github.com/edgefleet/inspection-engine/internal/types"
)

type fakeStore struct {
	last map[types.SignalID]types.TypedValue
}

func (f *fakeStore) LastValue(id types.SignalID) types.TypedValue {
	if v, ok := f.last[id]; ok {
		return v
	}
	return types.Invalid()
}

func (f *fakeStore) WindowStat(types.SignalID, types.WindowAggregate, uint32, types.Timestamp) (float64, bool) {
	return 0, false
}

func (f *fakeStore) SnapshotFor(c *types.Condition, now types.Timestamp) ([]types.CollectedSignal, []types.CollectedCANRawFrame, *types.DTCInfo) {
	return []types.CollectedSignal{{SignalID: 1, ReceiveTime: now, Value: f.last[1]}}, nil, nil
}

type fakeSink struct {
	received []*types.TriggeredCollectionSchemeData
	reject   bool
}

func (s *fakeSink) Enqueue(data *types.TriggeredCollectionSchemeData) bool {
	if s.reject {
		return false
	}
	s.received = append(s.received, data)
	return true
}

func conditionMatrix(c types.Condition) *types.InspectionMatrix {
	return &types.InspectionMatrix{
		NodeStorage: []types.ExpressionNode{
			{Kind: types.NodeSignal, SignalID: 1, Left: types.NoChild, Right: types.NoChild},
			{Kind: types.NodeConstantNumber, ConstantNumber: 5, Left: types.NoChild, Right: types.NoChild},
			{Kind: types.NodeCompareGT, Left: 0, Right: 1},
		},
		Conditions: []types.Condition{c},
	}
}

func newTestEngine(t *testing.T, c types.Condition, store *fakeStore, sink *fakeSink) *Engine {
	mgr := matrix.New()
	require.NoError(t, mgr.Submit(conditionMatrix(c)))
	require.True(t, mgr.AdoptIfDirty())
	return New(mgr, store, sink)
}

func TestTickFiresWhenConditionTrue(t *testing.T) {
	store := &fakeStore{last: map[types.SignalID]types.TypedValue{1: types.FloatValue(10)}}
	sink := &fakeSink{}
	c := types.Condition{ASTRoot: 2, Signals: []types.SignalCollectionInfo{{SignalID: 1, SampleBufferSize: 5}}}
	e := newTestEngine(t, c, store, sink)

	e.Tick(100)
	assert.Len(t, sink.received, 1)
	assert.Equal(t, types.Timestamp(100), sink.received[0].TriggerTime)
}

func TestTickRisingEdgeOnlyFiresOnce(t *testing.T) {
	store := &fakeStore{last: map[types.SignalID]types.TypedValue{1: types.FloatValue(10)}}
	sink := &fakeSink{}
	c := types.Condition{
		ASTRoot:                 2,
		TriggerOnlyOnRisingEdge: true,
		Signals:                 []types.SignalCollectionInfo{{SignalID: 1, SampleBufferSize: 5}},
	}
	e := newTestEngine(t, c, store, sink)

	e.Tick(100)
	e.Tick(101) // still true, not a new edge
	assert.Len(t, sink.received, 1)
}

func TestTickRespectsMinimumPublishInterval(t *testing.T) {
	store := &fakeStore{last: map[types.SignalID]types.TypedValue{1: types.FloatValue(10)}}
	sink := &fakeSink{}
	c := types.Condition{
		ASTRoot:                  2,
		MinimumPublishIntervalMs: 50,
		Signals:                  []types.SignalCollectionInfo{{SignalID: 1, SampleBufferSize: 5}},
	}
	e := newTestEngine(t, c, store, sink)

	e.Tick(0)
	e.Tick(10) // too soon
	e.Tick(60) // interval elapsed
	assert.Len(t, sink.received, 2)
}

func TestTickFalseClearsPendingAfter(t *testing.T) {
	store := &fakeStore{last: map[types.SignalID]types.TypedValue{1: types.FloatValue(10)}}
	sink := &fakeSink{}
	c := types.Condition{
		ASTRoot:         2,
		AfterDurationMs: 100,
		Signals:         []types.SignalCollectionInfo{{SignalID: 1, SampleBufferSize: 5}},
	}
	e := newTestEngine(t, c, store, sink)

	e.Tick(0) // arms pendingAfter=100
	store.last[1] = types.FloatValue(0) // condition false now, AST evaluates 0 > 5 -> false
	e.Tick(50)
	store.last[1] = types.FloatValue(10)
	e.Tick(120) // condition true again but pendingAfter was cleared; must re-arm, not fire yet
	assert.Empty(t, sink.received)

	e.Tick(230) // 120+100 elapsed
	assert.Len(t, sink.received, 1)
}

func TestFireNotAdvancedOnFullQueue(t *testing.T) {
	store := &fakeStore{last: map[types.SignalID]types.TypedValue{1: types.FloatValue(10)}}
	sink := &fakeSink{reject: true}
	c := types.Condition{ASTRoot: 2, Signals: []types.SignalCollectionInfo{{SignalID: 1, SampleBufferSize: 5}}}
	e := newTestEngine(t, c, store, sink)

	e.Tick(100)
	assert.Empty(t, sink.received)
	state, ok := e.DebugState(0)
	assert.True(t, ok)
	assert.Contains(t, state, "lastTriggerTs=-1")
}
