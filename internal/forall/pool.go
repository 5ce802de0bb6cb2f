package forall

import (
	"fmt"
	"runtime"
	"sync"
)

// Pool runs fork-join loops over a fixed number of workers.
type Pool struct {
	workers int
}

// NewPool creates a pool of n workers; n <= 0 means GOMAXPROCS.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: n}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Run splits r into one static chunk per worker and waits for all of them.
// A panic in fn is returned as an error after every worker has finished.
func (p *Pool) Run(r Range, fn func(worker int, chunk Range)) error {
	n := r.Len()
	if n <= 0 {
		return nil
	}
	workers := min(p.Workers(), n)
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	var once sync.Once
	var fault error
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		begin := r.Begin + w*chunk
		end := min(begin+chunk, r.End)
		go func(w int, c Range) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					once.Do(func() { fault = fmt.Errorf("worker %d panicked: %v", w, rec) })
				}
			}()
			fn(w, c)
		}(w, Range{Begin: begin, End: end})
	}
	wg.Wait()
	return fault
}
