package notify

import (
	"sync"

	"chirp/internal/model"
)

// Event announces that a post's local snapshot changed. Seq is monotonic
// per queue, in publish order.
type Event struct {
	PostID  string
	Post    model.Post
	Deleted bool
	Seq     uint64
}

// Queue decouples snapshot producers from their observers. Publishing
// never calls a subscriber inline; delivery happens only when the owner
// drains, so a subscriber can safely feed state back into the producer
// without reentrancy.
type Queue struct {
	mu      sync.Mutex
	pending []Event
	subs    []func(Event)
	seq     uint64
}

func New() *Queue { return &Queue{} }

// Subscribe registers fn for future drains.
func (q *Queue) Subscribe(fn func(Event)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subs = append(q.subs, fn)
}

// Publish enqueues an event and returns its sequence number.
func (q *Queue) Publish(e Event) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e.Seq = q.seq
	q.pending = append(q.pending, e)
	return e.Seq
}

// Drain delivers all pending events to every subscriber in publish
// order and returns how many events were delivered. Events published
// during delivery wait for the next drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	subs := make([]func(Event), len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	for _, e := range batch {
		for _, fn := range subs {
			fn(e)
		}
	}
	return len(batch)
}

// Pending reports how many events await the next drain.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
