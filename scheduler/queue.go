package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/hupe1980/mediacache/mediatype"
)

// Compile time check to ensure taskQueue satisfies the heap interface.
var _ heap.Interface = (*taskQueue)(nil)

// task is one pending preload. Tasks are never mutated after dispatch except
// through settle, and each settles exactly once.
type task struct {
	url        string // raw URL as given by the caller
	key        string // optimized URL, the cache key
	kind       mediatype.Kind
	priority   int    // higher = sooner
	seq        uint64 // FIFO tiebreak within equal priority
	enqueuedAt time.Time
	index      int // maintained by the heap.Interface methods

	cancel context.CancelFunc // set at dispatch, best-effort cancellation

	once   sync.Once
	done   chan struct{}
	result Result
}

func newTask(url, key string, kind mediatype.Kind, priority int, seq uint64) *task {
	return &task{
		url:        url,
		key:        key,
		kind:       kind,
		priority:   priority,
		seq:        seq,
		enqueuedAt: time.Now(),
		index:      -1,
		done:       make(chan struct{}),
	}
}

// settle records the result and releases all waiters. Later calls are no-ops,
// so a Clear racing a completing worker is harmless.
func (t *task) settle(r Result) {
	t.once.Do(func() {
		t.result = r
		close(t.done)
	})
}

// settledTask creates a task that is already resolved, used for inputs that
// fail classification before ever entering the queue.
func settledTask(url string, r Result) *task {
	t := newTask(url, url, mediatype.KindUnknown, 0, 0)
	t.settle(r)
	return t
}

// taskQueue implements heap.Interface: priority descending, FIFO within equal
// priority by enqueue sequence.
type taskQueue struct {
	items []*task
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) Less(i, j int) bool {
	if q.items[i].priority != q.items[j].priority {
		return q.items[i].priority > q.items[j].priority
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *taskQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index, q.items[j].index = i, j
}

func (q *taskQueue) Push(x any) {
	t, _ := x.(*task)
	t.index = len(q.items)
	q.items = append(q.items, t)
}

func (q *taskQueue) Pop() any {
	old := q.items
	n := len(old)
	if n == 0 {
		return nil
	}

	t := old[n-1]
	old[n-1] = nil // Avoid memory leak
	t.index = -1   // For safety
	q.items = old[:n-1]

	return t
}

// drain removes and returns all queued tasks.
func (q *taskQueue) drain() []*task {
	drained := q.items
	q.items = nil
	for _, t := range drained {
		t.index = -1
	}
	return drained
}
