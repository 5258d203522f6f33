// Package store implements the Sample Store (spec §4.2, C2): per-signal
// ring buffers, a per-CAN-frame ring buffer, and the single-slot
// most-recent active-DTC snapshot. It is owned exclusively by the
// inspection worker thread — callers must not share a Store across
// goroutines.
package store

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/edgefleet/inspection-engine/internal/types"
)

type frameKey struct {
	frameID   types.CANFrameID
	channelID types.ChannelID
}

type signalConfig struct {
	bufferSize   int
	minIntervalMs uint32
}

type frameConfig struct {
	bufferSize   int
	minIntervalMs uint32
}

// Store holds the sliding window of recent samples the trigger engine
// evaluates conditions against.
type Store struct {
	signals     map[types.SignalID]*ring
	signalCfg   map[types.SignalID]signalConfig
	frames      map[frameKey]*frameRing
	frameCfg    map[frameKey]frameConfig
	activeDTCs  *types.DTCInfo

	rejectedSamples uint64
	rejectedFrames  uint64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		signals:   make(map[types.SignalID]*ring),
		signalCfg: make(map[types.SignalID]signalConfig),
		frames:    make(map[frameKey]*frameRing),
		frameCfg:  make(map[frameKey]frameConfig),
	}
}

// Reshape resizes the store to match a newly adopted matrix: for each
// signal/frame, buffer capacity is the max over all conditions referencing
// it; ids no longer referenced by any condition are released. Samples of
// ids that stay referenced survive the reshape; when a buffer shrinks, only
// its most recent samples that fit the new capacity are kept (spec §3
// "Lifecycle").
func (s *Store) Reshape(m *types.InspectionMatrix) {
	wantSignals := make(map[types.SignalID]signalConfig)
	wantFrames := make(map[frameKey]frameConfig)

	for _, c := range m.Conditions {
		for _, sig := range c.Signals {
			cfg := wantSignals[sig.SignalID]
			if int(sig.SampleBufferSize) > cfg.bufferSize {
				cfg.bufferSize = int(sig.SampleBufferSize)
			}
			cfg.minIntervalMs = sig.MinimumSampleIntervalMs
			wantSignals[sig.SignalID] = cfg
		}
		for _, f := range c.CANFrames {
			key := frameKey{frameID: f.FrameID, channelID: f.ChannelID}
			cfg := wantFrames[key]
			if int(f.SampleBufferSize) > cfg.bufferSize {
				cfg.bufferSize = int(f.SampleBufferSize)
			}
			cfg.minIntervalMs = f.MinimumSampleIntervalMs
			wantFrames[key] = cfg
		}
	}

	for id, cfg := range wantSignals {
		existing, ok := s.signals[id]
		if !ok || existing.cap() != cfg.bufferSize {
			fresh := newRing(cfg.bufferSize)
			if ok {
				// Re-seed the new (re-sized) buffer with whatever samples
				// still fit, newest-last, so recent history survives a
				// capacity change (spec: "Samples in retained buffers
				// survive matrix swaps").
				for _, old := range existing.lastN(cfg.bufferSize) {
					fresh.push(old)
				}
			}
			s.signals[id] = fresh
		}
		s.signalCfg[id] = cfg
	}
	for id := range s.signals {
		if _, ok := wantSignals[id]; !ok {
			delete(s.signals, id)
			delete(s.signalCfg, id)
		}
	}

	for key, cfg := range wantFrames {
		existing, ok := s.frames[key]
		if !ok || existing.cap() != cfg.bufferSize {
			fresh := newFrameRing(cfg.bufferSize)
			if ok {
				for _, old := range existing.lastN(cfg.bufferSize) {
					fresh.push(old)
				}
			}
			s.frames[key] = fresh
		}
		s.frameCfg[key] = cfg
	}
	for key := range s.frames {
		if _, ok := wantFrames[key]; !ok {
			delete(s.frames, key)
			delete(s.frameCfg, key)
		}
	}
}

// IngestSignal applies the monotone-timestamp and minimum-interval policy
// from spec §4.2 and appends the sample if accepted.
func (s *Store) IngestSignal(id types.SignalID, ts types.Timestamp, v types.TypedValue) {
	r, ok := s.signals[id]
	if !ok {
		return // signal not configured by the active matrix; drop
	}
	cfg := s.signalCfg[id]
	last := r.lastTimestamp()
	if ts <= last {
		s.rejectedSamples++ // non-monotone: drop, do not re-sort
		return
	}
	if cfg.minIntervalMs > 0 && last >= 0 && ts-last < types.Timestamp(cfg.minIntervalMs) {
		s.rejectedSamples++
		return
	}
	r.push(sample{ts: ts, val: v})
}

// IngestFrame applies the same monotone/interval policy to a raw CAN
// frame.
func (s *Store) IngestFrame(f types.CollectedCANRawFrame) {
	key := frameKey{frameID: f.FrameID, channelID: f.ChannelID}
	r, ok := s.frames[key]
	if !ok {
		return
	}
	cfg := s.frameCfg[key]
	last := r.lastTimestamp()
	if f.ReceiveTime <= last {
		s.rejectedFrames++
		return
	}
	if cfg.minIntervalMs > 0 && last >= 0 && f.ReceiveTime-last < types.Timestamp(cfg.minIntervalMs) {
		s.rejectedFrames++
		return
	}
	r.push(f)
}

// SetDTCs overwrites the single-slot active-DTC snapshot, most-recent-wins.
func (s *Store) SetDTCs(d *types.DTCInfo) {
	s.activeDTCs = d
}

// ActiveDTCs returns the most recently set DTC snapshot, if any.
func (s *Store) ActiveDTCs() *types.DTCInfo {
	return s.activeDTCs
}

// LastValue returns the most recent sample's value for id, or INVALID if
// the buffer is empty or unconfigured (spec §4.3 "Signal lookup").
func (s *Store) LastValue(id types.SignalID) types.TypedValue {
	r, ok := s.signals[id]
	if !ok {
		return types.Invalid()
	}
	sm, ok := r.latest()
	if !ok {
		return types.Invalid()
	}
	return sm.val
}

// RejectedCounts exposes the SampleRejected counters for diagnostics
// (spec §7 "SampleRejected ... Silent drop with counter").
func (s *Store) RejectedCounts() (signals, frames uint64) {
	return s.rejectedSamples, s.rejectedFrames
}

// WindowStat computes a trailing or preceding window aggregate over a
// signal's buffered samples (spec §4.2 "window_stat"). It returns
// (0, false) when the window contains no samples, which the evaluator
// turns into INVALID.
func (s *Store) WindowStat(id types.SignalID, agg types.WindowAggregate, periodMs uint32, now types.Timestamp) (float64, bool) {
	r, ok := s.signals[id]
	if !ok {
		return 0, false
	}
	period := types.Timestamp(periodMs)

	var lo, hi types.Timestamp
	switch agg {
	case types.LastWindowMin, types.LastWindowMax, types.LastWindowAvg:
		lo, hi = now-period, now
	case types.PrevLastWindowMin, types.PrevLastWindowMax, types.PrevLastWindowAvg:
		lo, hi = now-2*period, now-period
	default:
		return 0, false
	}

	var values []float64
	r.forEachAscending(func(sm sample) {
		if sm.ts > lo && sm.ts <= hi {
			values = append(values, sm.val.AsF64())
		}
	})
	if len(values) == 0 {
		return 0, false
	}

	switch agg {
	case types.LastWindowMin, types.PrevLastWindowMin:
		return floats.Min(values), true
	case types.LastWindowMax, types.PrevLastWindowMax:
		return floats.Max(values), true
	case types.LastWindowAvg, types.PrevLastWindowAvg:
		return stat.Mean(values, nil), true
	default:
		return 0, false
	}
}

// SnapshotFor copies up to each signal's configured sampleBufferSize most
// recent samples with ts <= now, in timestamp-ascending order, plus the
// equivalent for raw CAN frames and (if requested) the active-DTC
// snapshot (spec §4.2 "snapshot_for").
func (s *Store) SnapshotFor(c *types.Condition, now types.Timestamp) ([]types.CollectedSignal, []types.CollectedCANRawFrame, *types.DTCInfo) {
	var signals []types.CollectedSignal
	for _, sigCfg := range c.Signals {
		if sigCfg.ConditionOnly {
			continue // condition-only signals feed evaluation, not the snapshot
		}
		r, ok := s.signals[sigCfg.SignalID]
		if !ok {
			continue
		}
		for _, sm := range r.lastN(int(sigCfg.SampleBufferSize)) {
			if sm.ts > now {
				continue
			}
			signals = append(signals, types.CollectedSignal{
				SignalID:    sigCfg.SignalID,
				ReceiveTime: sm.ts,
				Value:       sm.val,
			})
		}
	}

	var frames []types.CollectedCANRawFrame
	for _, fCfg := range c.CANFrames {
		key := frameKey{frameID: fCfg.FrameID, channelID: fCfg.ChannelID}
		r, ok := s.frames[key]
		if !ok {
			continue
		}
		for _, f := range r.lastN(int(fCfg.SampleBufferSize)) {
			if f.ReceiveTime > now {
				continue
			}
			frames = append(frames, f)
		}
	}

	var dtcs *types.DTCInfo
	if c.IncludeActiveDTCs {
		dtcs = s.activeDTCs
	}
	return signals, frames, dtcs
}
