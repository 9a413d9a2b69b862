package telemetry

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicSink_IncrDecr(t *testing.T) {
	s := NewAtomicSink()
	s.IncrTotalConnections(3)
	s.IncrTotalConnections(2)
	assert.EqualValues(t, 5, s.Total())

	s.DecrTotalConnections(2)
	assert.EqualValues(t, 3, s.Total())
}

func TestAtomicSink_DecrSaturatesAtZero(t *testing.T) {
	s := NewAtomicSink()
	s.IncrTotalConnections(1)
	s.DecrTotalConnections(100)
	assert.EqualValues(t, 0, s.Total())
}

func TestAtomicSink_IncrSaturatesAtMax(t *testing.T) {
	s := NewAtomicSink()
	s.total.Store(math.MaxInt64 - 1)
	s.IncrTotalConnections(10)
	assert.EqualValues(t, math.MaxInt64, s.Total())
}

func TestAtomicSink_ZeroAndNegativeAreNoops(t *testing.T) {
	s := NewAtomicSink()
	s.IncrTotalConnections(0)
	s.IncrTotalConnections(-5)
	s.DecrTotalConnections(0)
	s.DecrTotalConnections(-5)
	assert.EqualValues(t, 0, s.Total())
}

func TestAtomicSink_ConcurrentUpdates(t *testing.T) {
	s := NewAtomicSink()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncrTotalConnections(1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, s.Total())
}

func TestNoopSink(t *testing.T) {
	var s NoopSink
	s.IncrTotalConnections(5)
	s.DecrTotalConnections(5)
}
