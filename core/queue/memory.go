package queue

import (
	"context"
	"sync"

	"github.com/relabs-tech/ghcrawler/core/request"
)

type memoryItem struct {
	req      *request.Request
	priority int
	serial   int
}

// Memory is an in-memory priority FIFO for examples and tests
type Memory struct {
	mutex  sync.Mutex
	items  []memoryItem
	serial int
}

// NewMemory returns an empty in-memory queue
func NewMemory() *Memory {
	return &Memory{}
}

// Queue enqueues a single request at normal priority
func (q *Memory) Queue(ctx context.Context, req *request.Request) error {
	return q.Push(ctx, []*request.Request{req}, request.PriorityNormal)
}

// Push bulk-enqueues requests at the given priority
func (q *Memory) Push(ctx context.Context, reqs []*request.Request, priority request.Priority) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for _, req := range reqs {
		q.serial++
		q.items = append(q.items, memoryItem{req: req, priority: rank(priority), serial: q.serial})
	}
	return nil
}

// Pop returns the next request in priority order, FIFO within a priority
func (q *Memory) Pop(ctx context.Context) (*Delivery, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	best := -1
	for i, item := range q.items {
		if best < 0 ||
			item.priority < q.items[best].priority ||
			(item.priority == q.items[best].priority && item.serial < q.items[best].serial) {
			best = i
		}
	}
	if best < 0 {
		return nil, nil
	}
	item := q.items[best]
	q.items = append(q.items[:best], q.items[best+1:]...)

	return &Delivery{
		Request: item.req,
		Done:    func() error { return nil },
		Fail: func() error {
			return q.Push(context.Background(), []*request.Request{item.req}, request.PriorityLater)
		},
	}, nil
}

// Len returns the number of queued requests
func (q *Memory) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}
