/*Package processor transforms fetched GitHub payloads into canonical
documents.

For every request the processor looks up a handler by the request's type.
The handler links the document into the URN graph and enqueues follow-up
requests whose policies follow the traversal transition table. The processor
returns the transformed document for upsert into the store.
*/
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/logger"
	"github.com/relabs-tech/ghcrawler/core/queue"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/store"
)

// Version is the version of this processor code revision. Stored documents
// carrying this version or higher are not reprocessed under version
// freshness.
const Version = 12

// errMalformed marks a payload missing its essential fields. The handler
// returns the document untouched, it is still persisted for audit.
var errMalformed = errors.New("malformed payload")

type handlerFunc func(t *turn) error

// Processor dispatches requests to per-type handlers
type Processor struct {
	version  int
	store    store.Store
	queues   queue.Pusher
	handlers map[string]handlerFunc

	warnedLock sync.Mutex
	warned     map[string]bool
}

// New creates a processor over the given store and queues
func New(s store.Store, q queue.Pusher) *Processor {
	p := &Processor{
		version:  Version,
		store:    s,
		queues:   q,
		handlers: map[string]handlerFunc{},
		warned:   map[string]bool{},
	}
	p.registerEntities()
	p.registerCollections()
	p.registerEvents()
	return p
}

// Version returns the processor's code revision
func (p *Processor) Version() int {
	return p.version
}

// QueuedTypes returns the set of types this processor can handle at all
func (p *Processor) QueuedTypes() map[string]bool {
	types := make(map[string]bool, len(p.handlers))
	for typ := range p.handlers {
		types[typ] = true
	}
	return types
}

// CanHandle reports whether the request passes dispatch: its type must have
// a handler and the policy's freshness gate must ask for reprocessing.
func (p *Processor) CanHandle(ctx context.Context, req *request.Request) bool {
	rlog := logger.FromContext(ctx)
	if _, ok := p.handlers[req.Type]; !ok {
		p.warnOnce(ctx, req.Type)
		return false
	}

	storedVersion := 0
	storedEtag := ""
	if req.Document != nil {
		storedVersion = req.Document.Meta.Version
		storedEtag = req.Document.Meta.Etag
	}
	fetchedEtag := ""
	if req.Response != nil {
		fetchedEtag = req.Response.Etag
	}

	if storedVersion > p.version {
		// an older processor reading newer data
		rlog.Warnf("skipping %s %s: stored version %d is newer than processor version %d",
			req.Type, req.URL, storedVersion, p.version)
		return false
	}
	return req.Policy.ShouldReprocess(storedVersion, p.version, storedEtag, fetchedEtag)
}

// Process transforms the request's document. If the request cannot be
// handled the document is returned unchanged and nothing is enqueued.
func (p *Processor) Process(ctx context.Context, req *request.Request) (*document.Document, error) {
	rlog := logger.FromContext(ctx)
	if !p.CanHandle(ctx, req) {
		return req.Document, nil
	}
	if req.Document == nil {
		return nil, fmt.Errorf("process %s %s: request carries no document", req.Type, req.URL)
	}

	t := &turn{
		processor: p,
		ctx:       ctx,
		req:       req,
		doc:       req.Document,
		rlog:      rlog,
	}

	if err := p.handlers[req.Type](t); err != nil {
		if errors.Is(err, errMalformed) {
			rlog.Warnf("process %s %s: %s", req.Type, req.URL, err.Error())
			return req.Document, nil
		}
		return nil, fmt.Errorf("process %s %s: %w", req.Type, req.URL, err)
	}

	t.doc.Stamp(p.version, time.Now())

	// pagination fan-out happens in dispatch, not in the handlers
	if pages := p.pageRequests(req); len(pages) > 0 {
		if err := p.queues.Push(ctx, pages, request.PrioritySoon); err != nil {
			return nil, fmt.Errorf("process %s %s: push pages: %w", req.Type, req.URL, err)
		}
	}

	for _, child := range t.children {
		if err := p.queues.Queue(ctx, child); err != nil {
			return nil, fmt.Errorf("process %s %s: queue %s: %w", req.Type, req.URL, child.Type, err)
		}
	}

	return t.doc, nil
}

// warnOnce logs an unknown request type a single time
func (p *Processor) warnOnce(ctx context.Context, typ string) {
	p.warnedLock.Lock()
	defer p.warnedLock.Unlock()
	if p.warned[typ] {
		return
	}
	p.warned[typ] = true
	logger.FromContext(ctx).Warnf("no handler for request type '%s'", typ)
}
