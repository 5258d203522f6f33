// Package worker implements the Inspection Worker (spec §4.6, C6): the
// single goroutine that owns the sample store, the active matrix, and
// the trigger engine, draining the ingress queue and ticking evaluation
// on a fixed interval. Its start/stop lifecycle is modeled as a
// looplab/fsm state machine, grounded on the teacher's
// umh-core/internal/fsm/baseFSM.go; the per-condition trigger state
// machine inside trigger.Engine stays a plain struct for hot-loop
// performance (spec's own invariant, restated here, not redone).
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/edgefleet/inspection-engine/internal/matrix"
	"github.com/edgefleet/inspection-engine/internal/queue"
	"github.com/edgefleet/inspection-engine/internal/sentryreport"
	"github.com/edgefleet/inspection-engine/internal/store"
	"github.com/edgefleet/inspection-engine/internal/trigger"
	"github.com/edgefleet/inspection-engine/internal/types"
)

// Lifecycle states (spec §4.6a), mirroring the teacher's lifecycle FSM
// naming (idle/starting/running/stopping/stopped) rather than its
// to-be-created/creating/removing/removed naming, since the worker has no
// "removed" terminal distinct from "stopped".
const (
	StateIdle     = "idle"
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateStopped  = "stopped"
)

const (
	eventStart     = "start"
	eventStartDone = "start_done"
	eventStop      = "stop"
	eventStopDone  = "stop_done"
)

// Clock is the narrow time source the worker ticks against, letting tests
// drive it deterministically instead of depending on wall-clock time.
type Clock interface {
	NowMs() int64
}

// Worker owns the sample store, matrix manager, and trigger engine for
// one inspection pipeline.
type Worker struct {
	clock    Clock
	ingress  *queue.Bounded[types.CollectedDataFrame]
	store    *store.Store
	mgr      *matrix.Manager
	trig     *trigger.Engine
	logger   *zap.SugaredLogger
	idleTime time.Duration

	fsm   *fsm.FSM
	fsmMu sync.Mutex

	lastTickMs atomic.Int64
	stopCh     chan struct{}
	doneCh     chan struct{}
	wakeCh     chan struct{}
}

// New constructs a Worker. ingress is the bounded queue bus adapters push
// CollectedDataFrame values onto; mgr/trig are wired by the caller so the
// diagnostics server and the worker share the same instances.
func New(clock Clock, ingress *queue.Bounded[types.CollectedDataFrame], st *store.Store, mgr *matrix.Manager, trig *trigger.Engine, logger *zap.SugaredLogger, idleTime time.Duration) *Worker {
	w := &Worker{
		clock:    clock,
		ingress:  ingress,
		store:    st,
		mgr:      mgr,
		trig:     trig,
		logger:   logger,
		idleTime: idleTime,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		wakeCh:   make(chan struct{}, 1),
	}
	w.lastTickMs.Store(-1)
	w.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateStarting},
			{Name: eventStartDone, Src: []string{StateStarting}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateStopping},
			{Name: eventStopDone, Src: []string{StateStopping}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				w.logger.Debugf("worker: entering state %s", e.Dst)
			},
		},
	)
	return w
}

// Start transitions idle -> starting -> running and launches the loop
// goroutine. It is not safe to call twice.
func (w *Worker) Start() {
	w.fsmMu.Lock()
	_ = w.fsm.Event(context.Background(), eventStart)
	w.fsmMu.Unlock()

	go w.run()

	w.fsmMu.Lock()
	_ = w.fsm.Event(context.Background(), eventStartDone)
	w.fsmMu.Unlock()
}

// Stop cooperatively stops the loop and blocks until it has exited (spec
// §4.6 "two-phase stop": flag, signal, join).
func (w *Worker) Stop() {
	w.fsmMu.Lock()
	_ = w.fsm.Event(context.Background(), eventStop)
	w.fsmMu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.fsmMu.Lock()
	_ = w.fsm.Event(context.Background(), eventStopDone)
	w.fsmMu.Unlock()
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() string {
	w.fsmMu.Lock()
	defer w.fsmMu.Unlock()
	return w.fsm.Current()
}

// IsAlive reports whether the loop has ticked recently (within 5x its
// configured idle time), for the diagnostics liveness check (spec §4.6
// "isAlive").
func (w *Worker) IsAlive() bool {
	if w.State() != StateRunning {
		return false
	}
	last := w.lastTickMs.Load()
	if last < 0 {
		return false // the loop has not run yet
	}
	return w.clock.NowMs()-last < 5*w.idleTime.Milliseconds()
}

func (w *Worker) run() {
	defer close(w.doneCh)
	defer w.recoverFatal()

	var lastEvalMs int64 = -1
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.lastTickMs.Store(w.clock.NowMs())

		drained := w.ingress.Drain(w.ingestFrame)
		if drained == 0 {
			// Wait on the wake signal with a timeout (spec §6 Inputs,
			// §4.6 step 1): a producer calling NotifyDataAvailable cuts
			// this short instead of waiting out the full idle sleep.
			select {
			case <-w.stopCh:
				return
			case <-w.wakeCh:
			case <-time.After(w.idleTime):
			}
		}

		now := w.clock.NowMs()
		if lastEvalMs < 0 || now-lastEvalMs >= int64(types.EvaluateIntervalMs) {
			w.trig.Tick(types.Timestamp(now))
			lastEvalMs = now
		}
	}
}

// NotifyDataAvailable wakes the loop immediately instead of waiting out
// the remainder of its idle sleep (spec §6 Inputs: bus adapters and the
// OBD/DTC collector call this after pushing onto the ingress queue). It
// is idempotent: a pending, not-yet-consumed wake is not duplicated.
func (w *Worker) NotifyDataAvailable() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

func (w *Worker) ingestFrame(f types.CollectedDataFrame) {
	for _, sig := range f.Signals {
		w.store.IngestSignal(sig.SignalID, sig.ReceiveTime, sig.Value)
	}
	if f.CANRawFrame != nil {
		w.store.IngestFrame(*f.CANRawFrame)
	}
	if f.ActiveDTCs != nil {
		w.store.SetDTCs(f.ActiveDTCs)
	}
}

// recoverFatal reports a fatal invariant violation to Sentry and re-panics
// so the process supervisor restarts the worker, rather than continuing
// to run a goroutine in an unknown state (spec §8 "fatal invariant
// violation").
func (w *Worker) recoverFatal() {
	if r := recover(); r != nil {
		sentryreport.CapturePanic(r, map[string]string{"component": "inspection-worker"})
		w.logger.Errorw("worker: fatal invariant violation, re-panicking for supervisor restart", "recovered", r)
		panic(r)
	}
}
