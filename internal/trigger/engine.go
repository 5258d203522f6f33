// Package trigger implements the Trigger Engine (spec §4.5, C5): per-tick
// evaluation of every active condition's AST against the sample store,
// publish gating (rising edge, minimum publish interval, after-duration),
// and building the TriggeredCollectionSchemeData handed to the publish
// queue.
package trigger

import (
	"fmt"
	"sync"

	"github.com/EagleChen/mapmutex"
	lru "github.com/hashicorp/golang-lru"

	"github.com/edgefleet/inspection-engine/internal/eval"
	"github.com/edgefleet/inspection-engine/internal/matrix"
	"github.com/edgefleet/inspection-engine/internal/types"
)

// auditCacheSize bounds the /debug/triggers fired-event audit (spec §4.5a).
const auditCacheSize = 1024

// conditionState is the per-condition trigger state machine (spec §4.5):
// kept as a plain struct, not a looplab/fsm instance, because a full FSM
// per condition per 1ms tick would be pure overhead in the hot loop.
type conditionState struct {
	lastEval      bool
	lastTriggerTs types.Timestamp
	pendingAfter  *types.Timestamp // nil when no after-duration deadline is armed
}

// PublishSink receives a fired condition's snapshot. cmd/edge-agent wires
// this to relay.Relay, whose Enqueue pushes onto the bounded publish queue;
// kept as an interface so the engine stays independently testable.
type PublishSink interface {
	Enqueue(data *types.TriggeredCollectionSchemeData) bool
}

// SnapshotSource is the read-only sample-store view the engine needs to
// both evaluate conditions and build a fired snapshot.
type SnapshotSource interface {
	eval.SampleSource
	SnapshotFor(c *types.Condition, now types.Timestamp) ([]types.CollectedSignal, []types.CollectedCANRawFrame, *types.DTCInfo)
}

// auditEntry records one fired condition for the diagnostics endpoint.
type auditEntry struct {
	ConditionIndex int
	EventID        types.EventID
	TriggerTs      types.Timestamp
}

// Engine owns per-condition trigger state across ticks of the active
// matrix. It is safe for concurrent use between Tick (called by the
// inspection worker) and the audit/state readers (called by the
// diagnostics server).
type Engine struct {
	mgr   *matrix.Manager
	store SnapshotSource
	sink  PublishSink

	stateMu *mapmutex.Mutex
	states  map[int]*conditionState
	statesGuard sync.Mutex // guards the states map itself, not its values

	audit *lru.Cache

	shapedFor *types.InspectionMatrix // matrix the store was last reshaped to; touched only by Tick

	nextEventID types.EventID
	eventIDMu   sync.Mutex
}

// New constructs an Engine. mgr supplies the active (and pending)
// InspectionMatrix; store is the sample store to evaluate against; sink
// is where fired snapshots go.
func New(mgr *matrix.Manager, store SnapshotSource, sink PublishSink) *Engine {
	audit, _ := lru.New(auditCacheSize)
	return &Engine{
		mgr:    mgr,
		store:  store,
		sink:   sink,
		stateMu: mapmutex.NewCustomizedMapMutex(800, 100000000, 10, 1.1, 0.2),
		states:  make(map[int]*conditionState),
		audit:   audit,
	}
}

// Tick runs one evaluation pass over every active condition (spec §4.5
// steps a-g). now is the worker's current clock reading in milliseconds.
func (e *Engine) Tick(now types.Timestamp) {
	e.mgr.AdoptIfDirty()
	mx := e.mgr.Current()
	if mx != e.shapedFor {
		// A different matrix is active: resize the sample store to it
		// before evaluating any condition.
		if r, ok := e.store.(interface{ Reshape(*types.InspectionMatrix) }); ok {
			r.Reshape(mx)
		}
		e.shapedFor = mx
	}

	for i := range mx.Conditions {
		e.tickCondition(mx, i, now)
	}
}

func (e *Engine) tickCondition(mx *types.InspectionMatrix, idx int, now types.Timestamp) {
	c := &mx.Conditions[idx]

	if !e.stateMu.TryLock(idx) {
		return // diagnostics reader holds this condition's slot; skip, retry next tick
	}
	defer e.stateMu.Unlock(idx)

	st := e.stateFor(idx)

	raw := eval.Evaluate(mx.NodeStorage, c.ASTRoot, e.store, now)
	current := !raw.IsInvalid() && raw.AsBool() // (b) INVALID coerces to false (spec §4.3, §4.5)

	risingEdge := current && !st.lastEval
	st.lastEval = current

	if !current {
		st.pendingAfter = nil // (d) condition cleared; cancel any pending after-duration
		return
	}
	if c.TriggerOnlyOnRisingEdge && !risingEdge {
		return // (c) condition held true from a prior tick; not a new edge
	}
	if c.MinimumPublishIntervalMs > 0 && st.lastTriggerTs >= 0 &&
		now-st.lastTriggerTs < types.Timestamp(c.MinimumPublishIntervalMs) {
		return // (e) too soon since the last successful publish
	}

	if c.AfterDurationMs > 0 {
		if st.pendingAfter == nil {
			deadline := now + types.Timestamp(c.AfterDurationMs)
			st.pendingAfter = &deadline
			return // (f) arm the deadline; fire once it elapses on a later tick
		}
		if now < *st.pendingAfter {
			return // (f) deadline not yet reached
		}
	}

	e.fire(mx, c, idx, now, st)
}

// fire builds the snapshot and pushes it to the publish sink. lastTriggerTs
// is only advanced on a successful push (Open Question (b): yes), so a
// full publish queue causes the condition to retry on the next eligible
// tick rather than silently losing the trigger.
func (e *Engine) fire(mx *types.InspectionMatrix, c *types.Condition, idx int, now types.Timestamp, st *conditionState) {
	signals, frames, dtcs := e.store.SnapshotFor(c, now)

	data := &types.TriggeredCollectionSchemeData{
		TriggerTime: now,
		EventID:     e.allocEventID(),
		Signals:     signals,
		CANFrames:   frames,
		DTCs:        dtcs,
		Metadata:    c.Metadata,
	}

	if !e.sink.Enqueue(data) {
		return // publish queue full; leave pendingAfter/lastTriggerTs untouched, retry next tick
	}

	st.lastTriggerTs = now
	st.pendingAfter = nil
	e.audit.Add(data.EventID, auditEntry{ConditionIndex: idx, EventID: data.EventID, TriggerTs: now})
}

func (e *Engine) allocEventID() types.EventID {
	e.eventIDMu.Lock()
	defer e.eventIDMu.Unlock()
	e.nextEventID++
	return e.nextEventID
}

func (e *Engine) stateFor(idx int) *conditionState {
	e.statesGuard.Lock()
	defer e.statesGuard.Unlock()
	st, ok := e.states[idx]
	if !ok {
		st = &conditionState{lastTriggerTs: -1}
		e.states[idx] = st
	}
	return st
}

// AuditSnapshot returns the fired-event audit for the /debug/triggers
// diagnostic endpoint.
func (e *Engine) AuditSnapshot() []auditEntry {
	out := make([]auditEntry, 0, e.audit.Len())
	for _, k := range e.audit.Keys() {
		if v, ok := e.audit.Get(k); ok {
			out = append(out, v.(auditEntry))
		}
	}
	return out
}

// DebugState returns a read-only string describing condition idx's
// current trigger state, for the /debug/triggers endpoint. It uses the
// same keyed mutex as Tick, so it never observes a torn write.
func (e *Engine) DebugState(idx int) (string, bool) {
	if !e.stateMu.TryLock(idx) {
		return "", false
	}
	defer e.stateMu.Unlock(idx)
	e.statesGuard.Lock()
	st, ok := e.states[idx]
	e.statesGuard.Unlock()
	if !ok {
		return "", false
	}
	return fmt.Sprintf("lastEval=%v lastTriggerTs=%d pendingAfter=%v", st.lastEval, st.lastTriggerTs, st.pendingAfter), true
}
