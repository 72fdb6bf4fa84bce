package notify

import (
	"testing"

	"chirp/internal/model"
)

func TestPublishDoesNotDeliverInline(t *testing.T) {
	q := New()
	delivered := 0
	q.Subscribe(func(Event) { delivered++ })

	q.Publish(Event{PostID: "p1"})
	if delivered != 0 {
		t.Fatal("publish must not call subscribers inline")
	}
	if q.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", q.Pending())
	}
	if n := q.Drain(); n != 1 || delivered != 1 {
		t.Fatalf("drain = %d, delivered = %d", n, delivered)
	}
}

func TestDrainPreservesPublishOrder(t *testing.T) {
	q := New()
	var got []string
	var seqs []uint64
	q.Subscribe(func(e Event) {
		got = append(got, e.PostID)
		seqs = append(seqs, e.Seq)
	})
	for _, id := range []string{"a", "b", "c"} {
		q.Publish(Event{PostID: id, Post: model.Post{ID: id}})
	}
	q.Drain()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order: %v", got)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("seq not monotonic: %v", seqs)
		}
	}
}

func TestEventsPublishedDuringDrainWait(t *testing.T) {
	q := New()
	rounds := 0
	q.Subscribe(func(e Event) {
		rounds++
		if e.PostID == "a" {
			q.Publish(Event{PostID: "b"})
		}
	})
	q.Publish(Event{PostID: "a"})
	if n := q.Drain(); n != 1 {
		t.Fatalf("first drain delivered %d", n)
	}
	if rounds != 1 {
		t.Fatalf("subscriber ran %d times in first drain", rounds)
	}
	if n := q.Drain(); n != 1 {
		t.Fatalf("second drain delivered %d", n)
	}
	if rounds != 2 {
		t.Fatalf("subscriber ran %d times total", rounds)
	}
}

func TestEveryDrainFansOutToAllSubscribers(t *testing.T) {
	q := New()
	a, b := 0, 0
	q.Subscribe(func(Event) { a++ })
	q.Subscribe(func(Event) { b++ })
	q.Publish(Event{PostID: "p1"})
	q.Publish(Event{PostID: "p1", Deleted: true})
	q.Drain()
	if a != 2 || b != 2 {
		t.Fatalf("fanout a=%d b=%d", a, b)
	}
}
