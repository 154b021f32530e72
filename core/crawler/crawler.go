/*Package crawler runs the crawl loop: pop a request, fetch its payload,
process it, persist the document, notify downstream.
*/
package crawler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/ghcrawler/core/blob"
	"github.com/relabs-tech/ghcrawler/core/fetch"
	"github.com/relabs-tech/ghcrawler/core/logger"
	"github.com/relabs-tech/ghcrawler/core/notify"
	"github.com/relabs-tech/ghcrawler/core/processor"
	"github.com/relabs-tech/ghcrawler/core/queue"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/store"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// Builder is the input to New
type Builder struct {
	// Queue is the work queue. Required.
	Queue queue.Queue
	// Fetcher loads request payloads. Required.
	Fetcher *fetch.Fetcher
	// Processor transforms payloads into documents. Required.
	Processor *processor.Processor
	// Store persists processed documents. Required.
	Store store.Store
	// Blobs archives raw payloads. Optional.
	Blobs blob.Driver
	// Notifier publishes change notifications. Optional.
	Notifier notify.Notifier
	// Concurrency is the number of parallel crawl workers, default 4
	Concurrency int
}

// Crawler drives requests through fetch, process, upsert and notify
type Crawler struct {
	queue       queue.Queue
	fetcher     *fetch.Fetcher
	processor   *processor.Processor
	store       store.Store
	blobs       blob.Driver
	notifier    notify.Notifier
	concurrency int
}

// New creates a crawler from the builder. It panics on an incomplete
// builder, crawlers are created at service startup.
func New(b *Builder) *Crawler {
	if b.Queue == nil {
		panic("crawler builder: queue is missing")
	}
	if b.Fetcher == nil {
		panic("crawler builder: fetcher is missing")
	}
	if b.Processor == nil {
		panic("crawler builder: processor is missing")
	}
	if b.Store == nil {
		panic("crawler builder: store is missing")
	}
	c := &Crawler{
		queue:       b.Queue,
		fetcher:     b.Fetcher,
		processor:   b.Processor,
		store:       b.Store,
		blobs:       b.Blobs,
		notifier:    b.Notifier,
		concurrency: b.Concurrency,
	}
	if c.blobs == nil {
		c.blobs = blob.None{}
	}
	if c.notifier == nil {
		c.notifier = notify.None{}
	}
	if c.concurrency <= 0 {
		c.concurrency = 4
	}
	return c
}

// Seed enqueues the crawl entry points at normal priority
func (c *Crawler) Seed(ctx context.Context, requests []*request.Request) error {
	if err := c.queue.Push(ctx, requests, request.PriorityNormal); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

// RunSync processes queued requests until the queue drains or the maximum
// duration is exceeded. It returns true if it maxed out with requests left.
// A max of 0 means no limit.
func (c *Crawler) RunSync(ctx context.Context, max time.Duration) bool {
	rlog := logger.FromContext(ctx)
	start := time.Now()

	for {
		popped, maxedOut := c.pass(ctx, rlog, start, max)
		if maxedOut {
			return true
		}
		if popped == 0 {
			return false
		}
		// the workers may have enqueued follow-up requests, go again
	}
}

// pass drains the queue once through a worker pool
func (c *Crawler) pass(ctx context.Context, rlog *logrus.Entry, start time.Time, max time.Duration) (int, bool) {
	deliveries := make(chan *queue.Delivery, c.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for delivery := range deliveries {
				c.handle(ctx, delivery)
			}
		}()
	}

	popped := 0
	maxedOut := false
	for {
		if max > 0 && time.Since(start) > max {
			maxedOut = true
			break
		}
		delivery, err := c.queue.Pop(ctx)
		if err != nil {
			rlog.WithError(err).Error("cannot pop request")
			break
		}
		if delivery == nil {
			break
		}
		popped++
		deliveries <- delivery
	}
	close(deliveries)
	wg.Wait()
	return popped, maxedOut
}

// RunAsync starts the crawl loop in the background. It keeps polling the
// queue with the given heartbeat until the context is cancelled.
func (c *Crawler) RunAsync(ctx context.Context, heartbeat time.Duration) {
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	go func() {
		for {
			c.RunSync(ctx, 5*time.Minute)
			select {
			case <-ctx.Done():
				return
			case <-time.After(heartbeat):
			}
		}
	}()
}

// handle runs one delivery through the crawl steps and acknowledges it
func (c *Crawler) handle(ctx context.Context, delivery *queue.Delivery) {
	req := delivery.Request
	rlog := logger.FromContext(ctx).WithFields(logrus.Fields{
		"type": req.Type,
		"url":  req.URL,
	})

	// panic envelope, a poisoned payload must not take the worker down
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("recovered from panic: %s", r)
				debug.PrintStack()
			}
		}()
		return c.step(ctx, req)
	}()

	if err != nil {
		rlog.WithError(err).Error("crawl step failed")
		if err := delivery.Fail(); err != nil {
			rlog.WithError(err).Error("cannot return request to the queue")
		}
		return
	}
	if err := delivery.Done(); err != nil {
		rlog.WithError(err).Error("cannot acknowledge request")
	}
}

func (c *Crawler) step(ctx context.Context, req *request.Request) error {
	rlog := logger.FromContext(ctx)

	if err := c.fetcher.Fetch(ctx, req); err != nil {
		return err
	}
	if req.Document == nil {
		// gone at the origin, or nothing stored to replay
		rlog.Debugf("nothing to process for %s %s", req.Type, req.URL)
		return nil
	}

	doc, err := c.processor.Process(ctx, req)
	if err != nil {
		return err
	}
	if doc == nil {
		rlog.Debugf("no document to persist for %s %s", req.Type, req.URL)
		return nil
	}
	if doc.Self() == "" {
		// the handler could not anchor the document in the graph, it is
		// still persisted for audit, keyed by its source URL
		doc.AddResource("self", urn.Entity(req.Type, req.URL))
		rlog.Warnf("persisting unanchored document %s %s", req.Type, req.URL)
	}

	if err := c.store.Upsert(ctx, doc); err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("archive %s: %w", doc.Self(), err)
	}
	if err := c.blobs.Put(ctx, doc.Self(), raw); err != nil {
		return err
	}

	return c.notifier.Notify(ctx, notify.Message{
		Type: doc.Meta.Type,
		URN:  doc.Self(),
		URL:  doc.Meta.URL,
	})
}
