package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgefleet/inspection-engine/internal/spool"
	"github.com/edgefleet/inspection-engine/internal/types"
)

func TestEnqueueDropsAndCountsWhenQueueFull(t *testing.T) {
	logger := zap.NewNop().Sugar()
	sp, err := spool.Open(t.TempDir(), logger)
	require.NoError(t, err)
	defer sp.Close()

	r := New(1, nil, sp, logger)
	assert.True(t, r.Enqueue(&types.TriggeredCollectionSchemeData{EventID: 1}))
	assert.False(t, r.Enqueue(&types.TriggeredCollectionSchemeData{EventID: 2}))
	assert.EqualValues(t, 1, r.QueueDropped())
}

func TestQueueLenReflectsPendingItems(t *testing.T) {
	logger := zap.NewNop().Sugar()
	sp, err := spool.Open(t.TempDir(), logger)
	require.NoError(t, err)
	defer sp.Close()

	r := New(4, nil, sp, logger)
	assert.Equal(t, 0, r.QueueLen())
	r.Enqueue(&types.TriggeredCollectionSchemeData{EventID: 1})
	assert.Equal(t, 1, r.QueueLen())
}

func TestEnqueueSucceedsUpToCapacity(t *testing.T) {
	logger := zap.NewNop().Sugar()
	sp, err := spool.Open(t.TempDir(), logger)
	require.NoError(t, err)
	defer sp.Close()

	r := New(3, nil, sp, logger)
	for i := 0; i < 3; i++ {
		assert.True(t, r.Enqueue(&types.TriggeredCollectionSchemeData{EventID: types.EventID(i)}))
	}
	assert.False(t, r.Enqueue(&types.TriggeredCollectionSchemeData{EventID: 99}))
	assert.Equal(t, 3, r.QueueLen())
}
