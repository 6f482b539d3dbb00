package restart

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebounceCollapsesRepeatedCalls(t *testing.T) {
	var count atomic.Int32
	d := NewDebounce(30*time.Millisecond, func() { count.Add(1) })

	for i := 0; i < 10; i++ {
		d.Call()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestDebounceClearPreventsFire(t *testing.T) {
	var count atomic.Int32
	d := NewDebounce(20*time.Millisecond, func() { count.Add(1) })

	d.Call()
	d.Clear()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestDebounceFlushRunsImmediately(t *testing.T) {
	var count atomic.Int32
	d := NewDebounce(time.Hour, func() { count.Add(1) })

	d.Call()
	d.Flush()
	assert.Equal(t, int32(1), count.Load())
}
