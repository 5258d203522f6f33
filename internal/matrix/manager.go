// Package matrix implements the Inspection Matrix Manager (spec §4.4, C4):
// validation of a newly received InspectionMatrix, a pending slot the
// trigger engine adopts at its own tick boundary, and diagnostics for the
// last rejection.
package matrix

import (
	"fmt"
	"sync"

	"github.com/tiendc/go-deepcopy"

	"github.com/edgefleet/inspection-engine/internal/types"
)

// ValidationError describes why a candidate matrix was rejected (spec §4.4,
// §6 "matrix load rejection").
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Manager holds the currently adopted InspectionMatrix plus an optional
// pending replacement awaiting adoption. It is safe for concurrent use:
// Submit is called from the MQTT/config ingress path, Adopt and Current
// from the inspection worker's tick loop.
type Manager struct {
	mu      sync.Mutex
	active  *types.InspectionMatrix
	pending *types.InspectionMatrix
	dirty   bool

	lastRejection error
}

// New constructs a Manager with no active matrix (the engine runs zero
// conditions until one is submitted and adopted).
func New() *Manager {
	return &Manager{active: &types.InspectionMatrix{}}
}

// Submit validates candidate and, if valid, stores it as the pending
// matrix for the next Adopt call. On rejection the previously active
// matrix is left untouched and the failure is recorded for diagnostics
// (spec §4.4 "invalid input retains the previous matrix").
func (m *Manager) Submit(candidate *types.InspectionMatrix) error {
	if err := Validate(candidate); err != nil {
		m.mu.Lock()
		m.lastRejection = err
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.pending = candidate
	m.dirty = true
	m.lastRejection = nil
	m.mu.Unlock()
	return nil
}

// AdoptIfDirty swaps in the pending matrix if one is waiting, deep-copying
// it so the trigger engine's working copy is independent of whatever the
// ingress path does with its own reference afterward. It returns true iff
// an adoption happened.
func (m *Manager) AdoptIfDirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return false
	}
	var clone types.InspectionMatrix
	if err := deepcopy.Copy(&clone, m.pending); err != nil {
		// Deep-copy failure is not a validation failure; keep running on
		// the previously active matrix rather than risk a half-copied one.
		m.lastRejection = fmt.Errorf("matrix adoption deep-copy failed: %w", err)
		m.dirty = false
		return false
	}
	m.active = &clone
	m.pending = nil
	m.dirty = false
	return true
}

// Current returns the currently active matrix. The returned pointer must
// not be retained past the next AdoptIfDirty call by callers outside the
// worker's own tick.
func (m *Manager) Current() *types.InspectionMatrix {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// LastRejection returns the most recent Submit validation failure, if any,
// for the /debug/matrix diagnostic endpoint.
func (m *Manager) LastRejection() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRejection
}

// Validate enforces the structural invariants spec §3/§6 place on an
// InspectionMatrix before it may ever reach the trigger engine.
func Validate(mx *types.InspectionMatrix) error {
	if mx == nil {
		return &ValidationError{Reason: "matrix is nil"}
	}
	if len(mx.Conditions) > types.MaxActiveConditions {
		return &ValidationError{Reason: fmt.Sprintf("condition count %d exceeds MaxActiveConditions %d", len(mx.Conditions), types.MaxActiveConditions)}
	}

	distinctSignals := make(map[types.SignalID]struct{})
	for ci := range mx.Conditions {
		c := &mx.Conditions[ci]
		for _, sig := range c.Signals {
			distinctSignals[sig.SignalID] = struct{}{}
		}
		if err := validateAST(mx.NodeStorage, c.ASTRoot, c); err != nil {
			return fmt.Errorf("condition %d: %w", ci, err)
		}
	}
	if len(distinctSignals) > types.MaxDistinctSignalIDs {
		return &ValidationError{Reason: fmt.Sprintf("distinct signal id count %d exceeds MaxDistinctSignalIDs %d", len(distinctSignals), types.MaxDistinctSignalIDs)}
	}
	return nil
}

// validateAST walks the AST reachable from root and checks the flat-arena
// invariants: child indices strictly less than the parent's own index
// (spec invariant (b), guarantees depth-first pre-order, no cycles), depth
// <= MaxEquationDepth, and every NodeSignal resolves to a signal id listed
// in the owning condition's Signals.
func validateAST(nodes []types.ExpressionNode, root int, c *types.Condition) error {
	if root < 0 || root >= len(nodes) {
		return &ValidationError{Reason: fmt.Sprintf("AST root index %d out of range", root)}
	}
	allowed := make(map[types.SignalID]struct{}, len(c.Signals))
	for _, sig := range c.Signals {
		allowed[sig.SignalID] = struct{}{}
	}
	return walk(nodes, root, root, 1, allowed)
}

func walk(nodes []types.ExpressionNode, idx, parentIdx, depth int, allowed map[types.SignalID]struct{}) error {
	if depth > types.MaxEquationDepth {
		return &ValidationError{Reason: fmt.Sprintf("equation depth %d exceeds MaxEquationDepth %d", depth, types.MaxEquationDepth)}
	}
	if idx < 0 || idx >= len(nodes) {
		return &ValidationError{Reason: fmt.Sprintf("node index %d out of range", idx)}
	}
	if idx != parentIdx && idx >= parentIdx {
		return &ValidationError{Reason: fmt.Sprintf("child index %d not strictly less than parent index %d", idx, parentIdx)}
	}
	n := &nodes[idx]

	if n.Kind == types.NodeSignal {
		if _, ok := allowed[n.SignalID]; !ok {
			return &ValidationError{Reason: fmt.Sprintf("SIGNAL(%d) not configured in this condition's Signals", n.SignalID)}
		}
	}
	if n.Kind == types.NodeWindow {
		if _, ok := allowed[n.SignalID]; !ok {
			return &ValidationError{Reason: fmt.Sprintf("window node references unconfigured signal %d", n.SignalID)}
		}
	}

	if n.Left != types.NoChild {
		if err := walk(nodes, n.Left, idx, depth+1, allowed); err != nil {
			return err
		}
	}
	if n.Right != types.NoChild {
		if err := walk(nodes, n.Right, idx, depth+1, allowed); err != nil {
			return err
		}
	}
	return nil
}
