package processor

import (
	"context"
	"fmt"
	"sync"
)

// findNewConcurrency bounds the store lookup fan-out per event page
const findNewConcurrency = 8

// FindNew filters a page of event payloads down to those not yet present
// in the store. The store is queried by the key "<repo.url>/events/<id>".
// Output order matches input order. Store failures bubble up.
func (p *Processor) FindNew(ctx context.Context, events []map[string]interface{}) ([]map[string]interface{}, error) {
	seen := make([]bool, len(events))
	errs := make([]error, len(events))

	var wg sync.WaitGroup
	tickets := make(chan struct{}, findNewConcurrency)
	for i, event := range events {
		key := eventKey(event)
		if key == "" {
			// nothing to deduplicate against, the handler decides
			continue
		}
		eventType, _ := event["type"].(string)

		wg.Add(1)
		tickets <- struct{}{}
		go func(i int, eventType, key string) {
			defer wg.Done()
			defer func() { <-tickets }()
			doc, err := p.store.Get(ctx, eventType, key)
			if err != nil {
				errs[i] = err
				return
			}
			seen[i] = doc != nil
		}(i, eventType, key)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("find new events: %w", err)
		}
	}

	fresh := make([]map[string]interface{}, 0, len(events))
	for i, event := range events {
		if !seen[i] {
			fresh = append(fresh, event)
		}
	}
	return fresh, nil
}
