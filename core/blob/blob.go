/*Package blob archives raw crawl payloads, keyed by the document URN.

The archive is optional operational tooling: it keeps the bytes the crawler
saw at fetch time, so processing bugs can be replayed against the original
payloads without refetching from the origin.
*/
package blob

import (
	"context"
	"strings"

	"github.com/relabs-tech/ghcrawler/core/urn"
)

// Driver is the archive storage contract
type Driver interface {
	// Put writes the payload under the given URN, overwriting earlier copies
	Put(ctx context.Context, u urn.URN, data []byte) error
	// Get returns the archived payload, or nil if there is none
	Get(ctx context.Context, u urn.URN) ([]byte, error)
	// Delete removes the archived payload. Deleting a missing payload is
	// not an error.
	Delete(ctx context.Context, u urn.URN) error
}

// Key maps a URN onto a hierarchical storage key,
// "urn:repo:4:commit:a1" becomes "urn/repo/4/commit/a1.json"
func Key(u urn.URN) string {
	return strings.ReplaceAll(string(u), ":", "/") + ".json"
}

// None is the driver used when archiving is disabled
type None struct{}

// Put discards the payload
func (None) Put(ctx context.Context, u urn.URN, data []byte) error { return nil }

// Get reports no payload
func (None) Get(ctx context.Context, u urn.URN) ([]byte, error) { return nil, nil }

// Delete does nothing
func (None) Delete(ctx context.Context, u urn.URN) error { return nil }
