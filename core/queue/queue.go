/*Package queue provides the priority work queues feeding the crawler.

Queues are priority FIFOs with at-least-once delivery. The processor only
pushes; popping and acknowledging is the crawl loop's business.
*/
package queue

import (
	"context"

	"github.com/relabs-tech/ghcrawler/core/request"
)

// Pusher is the enqueue contract consumed by the processor
type Pusher interface {
	// Queue enqueues a single follow-up request at normal priority
	Queue(ctx context.Context, req *request.Request) error
	// Push bulk-enqueues requests at the given priority
	Push(ctx context.Context, reqs []*request.Request, priority request.Priority) error
}

// Delivery is one popped request. Done acknowledges it, Fail returns it to
// the queue for a later attempt.
type Delivery struct {
	Request *request.Request
	Done    func() error
	Fail    func() error
}

// Queue is the full queue contract
type Queue interface {
	Pusher
	// Pop returns the next request in priority order, or nil if the queue
	// is empty
	Pop(ctx context.Context) (*Delivery, error)
}

// rank orders priorities, lowest first
func rank(p request.Priority) int {
	switch p {
	case request.PriorityImmediate:
		return 0
	case request.PrioritySoon:
		return 1
	case request.PriorityNormal:
		return 2
	case request.PriorityLater:
		return 3
	}
	return 2
}
