package gpu

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomics(t *testing.T) {
	var sum, lo, hi float64
	lo, hi = 1e300, -1e300
	var count int64

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			AtomicAdd(&sum, v)
			AtomicMin(&lo, v)
			AtomicMax(&hi, v)
			AtomicAddInt(&count, 1)
		}(float64(i))
	}
	wg.Wait()

	assert.Equal(t, 5050.0, sum)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 100.0, hi)
	assert.Equal(t, int64(100), count)
}

func TestBlockIndexing(t *testing.T) {
	grid := Dim3{X: 3, Y: 2, Z: 2}
	for i := 0; i < grid.Size(); i++ {
		b := &Block{Idx: linearTo3D(i, grid), GridDim: grid}
		assert.Equal(t, i, b.Linear())
	}

	b := &Block{Dim: D2(4, 2)}
	var seen []Dim3
	b.Threads(func(t Dim3) { seen = append(seen, t) })
	assert.Len(t, seen, 8)
	assert.Equal(t, Dim3{X: 1, Y: 0, Z: 0}, seen[1])
	assert.Equal(t, Dim3{X: 0, Y: 1, Z: 0}, seen[4])
}
