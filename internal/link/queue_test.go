package link

import (
	"fmt"
	"sync"
	"testing"

	"github.com/perchlabs/buslink/internal/protocol/frame"
	"github.com/perchlabs/buslink/internal/testutil/testlog"
)

func TestQueueFIFO(t *testing.T) {
	testlog.Start(t)
	q := NewQueue()
	for i := 0; i < 10; i++ {
		q.Push(frame.Frame{Name: fmt.Sprintf("t%d", i)})
	}
	if q.Len() != 10 {
		t.Fatalf("len=%d", q.Len())
	}
	for i := 0; i < 10; i++ {
		f, ok := q.TryPop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if want := fmt.Sprintf("t%d", i); f.Name != want {
			t.Fatalf("out of order: got=%q want=%q", f.Name, want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("queue should be empty")
	}
}

func TestQueueWakeCoalesces(t *testing.T) {
	testlog.Start(t)
	q := NewQueue()
	q.Push(frame.Frame{Name: "a"})
	q.Push(frame.Frame{Name: "b"})
	q.Push(frame.Frame{Name: "c"})

	select {
	case <-q.Wake():
	default:
		t.Fatalf("expected wake signal")
	}
	// one signal may cover many pushes; the consumer drains until empty
	count := 0
	for {
		if _, ok := q.TryPop(); !ok {
			break
		}
		count++
	}
	if count != 3 {
		t.Fatalf("drained %d frames, want 3", count)
	}
}

func TestQueueDiscard(t *testing.T) {
	testlog.Start(t)
	q := NewQueue()
	q.Push(frame.Frame{Name: "a"})
	q.Push(frame.Frame{Name: "b"})
	if n := q.Discard(); n != 2 {
		t.Fatalf("discarded %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after discard")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	testlog.Start(t)
	q := NewQueue()
	var wg sync.WaitGroup
	const producers, perProducer = 8, 100
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(frame.Frame{Name: fmt.Sprintf("p%d", p)})
			}
		}(p)
	}
	wg.Wait()
	if q.Len() != producers*perProducer {
		t.Fatalf("len=%d want=%d", q.Len(), producers*perProducer)
	}
}
