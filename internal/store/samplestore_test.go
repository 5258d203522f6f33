package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/inspection-engine/internal/types"
)

func matrixWithSignal(id types.SignalID, bufSize int, minIntervalMs uint32) *types.InspectionMatrix {
	return &types.InspectionMatrix{
		Conditions: []types.Condition{
			{
				Signals: []types.SignalCollectionInfo{
					{SignalID: id, SampleBufferSize: uint32(bufSize), MinimumSampleIntervalMs: minIntervalMs},
				},
			},
		},
	}
}

func TestIngestSignalMonotoneAndInterval(t *testing.T) {
	s := New()
	s.Reshape(matrixWithSignal(42, 10, 5))

	s.IngestSignal(42, 0, types.FloatValue(1))
	s.IngestSignal(42, 3, types.FloatValue(2)) // within min interval, dropped
	s.IngestSignal(42, 5, types.FloatValue(3)) // exactly at interval, accepted
	s.IngestSignal(42, 4, types.FloatValue(4)) // non-monotone, dropped

	v := s.LastValue(42)
	assert.False(t, v.IsInvalid())
	assert.Equal(t, float64(3), v.AsF64())

	rejSig, _ := s.RejectedCounts()
	assert.Equal(t, uint64(2), rejSig)
}

func TestRingBufferCapacityInvariant(t *testing.T) {
	s := New()
	s.Reshape(matrixWithSignal(1, 3, 0))
	for i := 0; i < 10; i++ {
		s.IngestSignal(1, int64(i), types.FloatValue(float64(i)))
	}
	r := s.signals[1]
	assert.Equal(t, 3, r.len())
	assert.LessOrEqual(t, r.len(), r.cap())

	last := r.lastN(3)
	assert.Equal(t, []float64{7, 8, 9}, []float64{last[0].val.AsF64(), last[1].val.AsF64(), last[2].val.AsF64()})
}

func TestWindowStatAggregatesAndEmptyWindow(t *testing.T) {
	s := New()
	s.Reshape(matrixWithSignal(7, 100, 0))
	for ts := int64(0); ts <= 200; ts += 10 {
		s.IngestSignal(7, ts, types.FloatValue(float64(ts)/4))
	}

	maxV, ok := s.WindowStat(7, types.LastWindowMax, 100, 200)
	assert.True(t, ok)
	assert.Equal(t, float64(50), maxV) // ts=200 -> 200/4=50

	_, ok = s.WindowStat(999, types.LastWindowMax, 100, 200)
	assert.False(t, ok)

	_, ok = s.WindowStat(7, types.LastWindowMax, 100, -1000)
	assert.False(t, ok)
}

func TestSnapshotForRespectsNowAndOrder(t *testing.T) {
	s := New()
	s.Reshape(matrixWithSignal(1, 10, 0))
	for ts := int64(1); ts <= 5; ts++ {
		s.IngestSignal(1, ts, types.FloatValue(float64(ts)))
	}
	m := matrixWithSignal(1, 10, 0)
	signals, _, _ := s.SnapshotFor(&m.Conditions[0], 3)
	assert.Len(t, signals, 3)
	assert.Equal(t, int64(1), signals[0].ReceiveTime)
	assert.Equal(t, int64(3), signals[2].ReceiveTime)
}

func TestReshapeReleasesUnreferencedSignals(t *testing.T) {
	s := New()
	s.Reshape(matrixWithSignal(1, 5, 0))
	s.IngestSignal(1, 1, types.FloatValue(1))

	s.Reshape(matrixWithSignal(2, 5, 0))
	assert.True(t, s.LastValue(1).IsInvalid())
}
