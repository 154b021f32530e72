/*Package store persists canonical documents keyed by their URN.

The upsert key is the document's _metadata.links.self.href. The source URL
is kept in an indexed side column so that the fetch layer and the event
finder can look documents up by URL. Reads are memoized in a process-local
TTL cache keyed by URL.
*/
package store

import (
	"context"
	"errors"
	"time"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// ErrUnavailable is returned when the backing store cannot be reached.
// Requests failing with it should be retried by the host.
var ErrUnavailable = errors.New("store unavailable")

// Summary is the per-document listing entry returned by List
type Summary struct {
	URN         urn.URN   `json:"urn"`
	URL         string    `json:"url"`
	Version     int       `json:"version"`
	Etag        string    `json:"etag,omitempty"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Store is the document store contract of the crawler core
type Store interface {
	// Get returns the stored document for the given type and source URL,
	// or nil if there is none
	Get(ctx context.Context, typ, url string) (*document.Document, error)
	// Etag returns the stored etag for the given type and source URL, or
	// the empty string if there is none
	Etag(ctx context.Context, typ, url string) (string, error)
	// Upsert writes the document, keyed by its self URN. Last writer wins.
	Upsert(ctx context.Context, doc *document.Document) error
	// List returns summaries of all stored documents of one type
	List(ctx context.Context, typ string) ([]Summary, error)
	// Delete removes the document with the given URN
	Delete(ctx context.Context, typ string, u urn.URN) error
	// Count returns the number of stored documents of one type
	Count(ctx context.Context, typ string) (int, error)
}
