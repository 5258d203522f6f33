package mqttchannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeapLedgerReserveRelease(t *testing.T) {
	l := newHeapLedger(100)
	assert.True(t, l.reserve(60))
	assert.True(t, l.reserve(40))
	assert.False(t, l.reserve(1)) // budget exhausted

	l.release(40)
	assert.True(t, l.reserve(40))
}

func TestHeapLedgerReleaseNeverUnderflows(t *testing.T) {
	l := newHeapLedger(100)
	l.release(50) // releasing more than reserved must not wrap around
	assert.Equal(t, uint64(0), l.inUse.Load())
}
