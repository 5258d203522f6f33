package spool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityByteClampsToUint8Range(t *testing.T) {
	assert.Equal(t, uint8(255), priorityByte(1000))
	assert.Equal(t, uint8(10), priorityByte(10))
	assert.Equal(t, uint8(0), priorityByte(0))
}

func TestContentKeyDeterministic(t *testing.T) {
	a := ContentKey([]byte("payload"))
	b := ContentKey([]byte("payload"))
	c := ContentKey([]byte("other"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
