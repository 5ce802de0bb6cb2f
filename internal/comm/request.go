package comm

import (
	"fmt"
	"reflect"
)

// Request tracks a non-blocking send or receive.
type Request struct {
	done chan struct{}
	err  error
}

func completed(err error) *Request {
	r := &Request{done: make(chan struct{}), err: err}
	close(r.done)
	return r
}

// Err returns the outcome of a completed request.
func (r *Request) Err() error {
	<-r.done
	return r.err
}

// Isend sends a copy of buf to rank dst with tag. The copy is taken before
// Isend returns, so the request is complete and buf may be reused at once.
func (c *Comm) Isend(buf []float64, dst, tag int) *Request {
	if dst < 0 || dst >= c.world.size {
		return completed(fmt.Errorf("isend: invalid destination rank %d", dst))
	}
	msg := make([]float64, len(buf))
	copy(msg, buf)
	select {
	case c.world.box(key{src: c.rank, dst: dst, tag: tag}) <- msg:
		return completed(nil)
	case <-c.ctx.Done():
		return completed(fmt.Errorf("isend to %d: %w", dst, ErrAborted))
	}
}

// Irecv receives the next message from rank src with tag into buf. The
// message must have exactly len(buf) elements.
func (c *Comm) Irecv(buf []float64, src, tag int) *Request {
	if src < 0 || src >= c.world.size {
		return completed(fmt.Errorf("irecv: invalid source rank %d", src))
	}
	r := &Request{done: make(chan struct{})}
	box := c.world.box(key{src: src, dst: c.rank, tag: tag})
	go func() {
		defer close(r.done)
		select {
		case msg := <-box:
			if len(msg) != len(buf) {
				r.err = fmt.Errorf("irecv from %d tag %d: message of %d elements into buffer of %d", src, tag, len(msg), len(buf))
				return
			}
			copy(buf, msg)
		case <-c.ctx.Done():
			r.err = fmt.Errorf("irecv from %d: %w", src, ErrAborted)
		}
	}()
	return r
}

// WaitAny blocks until one of the non-nil requests completes, sets that
// entry to nil and returns its index and error. It returns -1 when every
// entry is nil.
func WaitAny(reqs []*Request) (int, error) {
	cases := make([]reflect.SelectCase, 0, len(reqs))
	index := make([]int, 0, len(reqs))
	for i, r := range reqs {
		if r == nil {
			continue
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.done)})
		index = append(index, i)
	}
	if len(cases) == 0 {
		return -1, nil
	}
	chosen, _, _ := reflect.Select(cases)
	i := index[chosen]
	err := reqs[i].err
	reqs[i] = nil
	return i, err
}

// WaitAll blocks until every request completes, sets the entries to nil and
// returns the first error.
func WaitAll(reqs []*Request) error {
	var first error
	for i, r := range reqs {
		if r == nil {
			continue
		}
		if err := r.Err(); err != nil && first == nil {
			first = err
		}
		reqs[i] = nil
	}
	return first
}
