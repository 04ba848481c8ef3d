package browser

import (
	"context"
	"sync"
)

// stream is an unbounded FIFO between the CDP dispatch goroutine and one collector.
// push never blocks; the pump goroutine delivers items in push order.
type stream struct {
	mu     sync.Mutex
	queue  []any
	notify chan struct{}
	out    chan any
}

func newStream() *stream {
	return &stream{
		notify: make(chan struct{}, 1),
		out:    make(chan any),
	}
}

func (s *stream) push(v any) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pending returns the number of queued items not yet delivered
func (s *stream) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// run delivers queued items until ctx is done, then closes out.
func (s *stream) run(ctx context.Context) {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.notify:
				continue
			}
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case s.out <- next:
		}
	}
}
