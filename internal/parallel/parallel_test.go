package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunCoversRangeOnce(t *testing.T) {
	p := NewPool(Config{Workers: 4})
	defer p.Close()

	for _, n := range []int{0, 1, 3, 4, 10, 17} {
		hits := make([]int32, n)
		p.Run(n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "n=%d index %d", n, i)
		}
	}
}

func TestRunPartitionsContiguously(t *testing.T) {
	p := NewPool(Config{Workers: 3})
	defer p.Close()

	var mu sync.Mutex
	var ranges [][2]int
	p.Run(9, func(start, end int) {
		mu.Lock()
		ranges = append(ranges, [2]int{start, end})
		mu.Unlock()
	})

	assert.ElementsMatch(t, [][2]int{{0, 3}, {3, 6}, {6, 9}}, ranges)
}

func TestRunIsVisibleAfterReturn(t *testing.T) {
	p := NewPool(Config{Workers: 8})
	defer p.Close()

	out := make([]int, 1000)
	for round := 0; round < 20; round++ {
		p.Run(len(out), func(start, end int) {
			for i := start; i < end; i++ {
				out[i] = round
			}
		})
		for i := range out {
			if out[i] != round {
				t.Fatalf("round %d: out[%d] = %d", round, i, out[i])
			}
		}
	}
}

func TestNilPoolRunsInline(t *testing.T) {
	var p *Pool
	called := 0
	p.Run(5, func(start, end int) {
		called++
		assert.Equal(t, 0, start)
		assert.Equal(t, 5, end)
	})
	assert.Equal(t, 1, called)
	assert.Equal(t, 1, p.Size())
	p.Close()
}

func TestWorkerPanicPropagates(t *testing.T) {
	p := NewPool(Config{Workers: 2})
	defer p.Close()

	assert.Panics(t, func() {
		p.Run(4, func(start, end int) {
			if start == 0 {
				panic("boom")
			}
		})
	})

	// pool still usable after a panic
	var n int32
	p.Run(4, func(start, end int) { atomic.AddInt32(&n, int32(end-start)) })
	assert.Equal(t, int32(4), n)
}

func TestBarrierCyclic(t *testing.T) {
	b := NewBarrier(3)
	var wg sync.WaitGroup
	var count int32
	for g := 0; g < 3; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				atomic.AddInt32(&count, 1)
				b.Await()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(15), count)
}

func TestDefaultConfig(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultConfig().Workers, 1)
	assert.Equal(t, 1, NewPool(Config{}).Size())
}
