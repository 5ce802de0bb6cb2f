// Package comm is an in-process message passing transport. Each rank is a
// goroutine; messages are float64 slices matched by source and tag.
package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrAborted is reported to ranks still communicating when another rank of
// the same Run failed.
var ErrAborted = errors.New("communication aborted")

// mailboxDepth bounds the undelivered messages per (source, dest, tag).
const mailboxDepth = 256

type key struct {
	src, dst, tag int
}

// World is a fixed set of ranks that exchange messages.
type World struct {
	size int

	mu      sync.Mutex
	boxes   map[key]chan []float64
	barrier *barrier
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size must be at least 1: %d", size)
	}
	return &World{
		size:    size,
		boxes:   make(map[key]chan []float64),
		barrier: newBarrier(size),
	}, nil
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

func (w *World) box(k key) chan []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.boxes[k]
	if !ok {
		ch = make(chan []float64, mailboxDepth)
		w.boxes[k] = ch
	}
	return ch
}

// Run calls fn once per rank concurrently and waits for all of them. The
// first error is returned; ranks blocked on communication then fail with
// ErrAborted.
func (w *World) Run(ctx context.Context, fn func(c *Comm) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for r := 0; r < w.size; r++ {
		c := &Comm{world: w, rank: r, ctx: ctx}
		g.Go(func() error {
			return fn(c)
		})
	}
	err := g.Wait()
	if err != nil {
		// Messages of an aborted exchange must not leak into the next one.
		w.drain()
		w.barrier.reset()
	}
	return err
}

func (w *World) drain() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.boxes {
		w.boxes[k] = make(chan []float64, mailboxDepth)
	}
}

// Comm is one rank's handle on the world.
type Comm struct {
	world *World
	rank  int
	ctx   context.Context
}

// Rank returns this rank's index.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the world.
func (c *Comm) Size() int { return c.world.size }

// Barrier blocks until every rank has called it.
func (c *Comm) Barrier() error {
	return c.world.barrier.wait(c.ctx)
}

type barrier struct {
	mu      sync.Mutex
	size    int
	arrived int
	release chan struct{}
}

func newBarrier(size int) *barrier {
	return &barrier{size: size, release: make(chan struct{})}
}

func (b *barrier) wait(ctx context.Context) error {
	b.mu.Lock()
	release := b.release
	b.arrived++
	if b.arrived == b.size {
		b.arrived = 0
		b.release = make(chan struct{})
		close(release)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("barrier: %w", ErrAborted)
	}
}

func (b *barrier) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrived = 0
	b.release = make(chan struct{})
}
