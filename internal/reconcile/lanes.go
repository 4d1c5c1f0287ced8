package reconcile

import (
	"context"
	"sync"
)

// lanes serializes operations per lesson. Waiters are admitted in the order
// they called acquire; different lessons never block each other.
type lanes struct {
	mu    sync.Mutex
	queue map[string][]chan struct{}
}

func newLanes() *lanes {
	return &lanes{queue: make(map[string][]chan struct{})}
}

// acquire blocks until every earlier operation on id has finished. The
// returned func releases the lane. A caller that gives up while waiting is
// removed from the queue.
func (l *lanes) acquire(ctx context.Context, id string) (func(), error) {
	ch := make(chan struct{})

	l.mu.Lock()
	q := append(l.queue[id], ch)
	l.queue[id] = q
	if len(q) == 1 {
		close(ch)
	}
	l.mu.Unlock()

	release := func() { l.release(id, ch) }

	select {
	case <-ch:
		return release, nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	select {
	case <-ch:
		// Admitted while giving up; pass the lane on.
		l.mu.Unlock()
		release()
		return nil, ctx.Err()
	default:
	}
	q = l.queue[id]
	for i, c := range q {
		if c == ch {
			l.queue[id] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	return nil, ctx.Err()
}

func (l *lanes) release(id string, ch chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.queue[id]
	if len(q) == 0 || q[0] != ch {
		return
	}
	q = q[1:]
	if len(q) == 0 {
		delete(l.queue, id)
		return
	}
	l.queue[id] = q
	close(q[0])
}

// depth returns the number of running and queued operations for id.
func (l *lanes) depth(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue[id])
}
