package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsEveryTask(t *testing.T) {
	p := New(Config{Workers: 4})

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int64(1000), count.Load())
	stats := p.Stats()
	assert.Equal(t, uint64(1000), stats.Submitted)
	assert.Equal(t, uint64(1000), stats.Completed)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 4, stats.Workers)
}

func TestSingleWorkerIsFIFO(t *testing.T) {
	p := New(Config{Workers: 1})

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, p.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	p.Close()

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	p := New(Config{Workers: 1})

	gate := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-gate }))

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func() { ran.Add(1) }))
	}

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a task was still blocked")
	case <-time.After(30 * time.Millisecond):
	}

	close(gate)
	<-closed
	assert.Equal(t, int32(10), ran.Load())
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(Config{Workers: 2})
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	assert.Error(t, p.Submit(nil))
}

func TestPanicIsRecovered(t *testing.T) {
	var recovered atomic.Value
	p := New(Config{
		Workers: 1,
		OnPanic: func(r any) { recovered.Store(r) },
	})

	require.NoError(t, p.Submit(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
	p.Close()

	assert.Equal(t, "boom", recovered.Load())
	assert.Equal(t, uint64(1), p.Stats().Panicked)
}

func TestDefaultWorkerCount(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	assert.Positive(t, p.Stats().Workers)
}
