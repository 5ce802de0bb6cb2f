package gpu

import (
	"fmt"
	"sync"
)

// Stream is an ordered queue of device work. Work within a stream runs in
// submission order on a dedicated goroutine; the host only observes its
// effects after Synchronize.
type Stream struct {
	id    int
	tasks chan func() error
	wg    sync.WaitGroup

	mu     sync.Mutex
	err    error // first failure since the last Synchronize
	closed bool
	done   chan struct{}
}

func newStream(id int) *Stream {
	s := &Stream{
		id:    id,
		tasks: make(chan func() error, 256),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

// ID returns the stream's identifier within its runtime.
func (s *Stream) ID() int { return s.id }

// worker processes tasks for a stream
func (s *Stream) worker() {
	for task := range s.tasks {
		s.run(task)
		s.wg.Done()
	}
	close(s.done)
}

func (s *Stream) run(task func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("%w: kernel panicked: %v", ErrLaunchFailure, r))
		}
	}()
	s.mu.Lock()
	failed := s.err != nil
	s.mu.Unlock()
	if failed {
		// Work queued behind a fault is dropped, as on a real device.
		return
	}
	if err := task(); err != nil {
		s.fail(err)
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Submit adds a task to the stream.
func (s *Stream) Submit(task func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: stream %d is closed", ErrInvalidValue, s.id)
	}
	s.wg.Add(1)
	s.mu.Unlock()
	s.tasks <- task
	return nil
}

// Synchronize waits for all queued work and returns, then clears, the first
// error raised by it.
func (s *Stream) Synchronize() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.err
	s.err = nil
	return err
}

func (s *Stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	close(s.tasks)
	<-s.done
}
