package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedPushPopFIFO(t *testing.T) {
	q := NewBounded[int](3)
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.True(t, q.Push(3))

	assert.False(t, q.Push(4))
	assert.Equal(t, uint64(1), q.Dropped())

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestBoundedOverflowScenario(t *testing.T) {
	// Scenario 5: capacity 2, push 3 without draining.
	q := NewBounded[int](2)
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.False(t, q.Push(3))
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestBoundedDrain(t *testing.T) {
	q := NewBounded[int](10)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	var seen []int
	n := q.Drain(func(v int) { seen = append(seen, v) })
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
	assert.True(t, q.IsEmpty())
}

func TestBoundedConcurrentProducers(t *testing.T) {
	q := NewBounded[int](1000)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(base + i)
			}
		}(p * 100)
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
