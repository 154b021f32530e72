/*Package request defines the unit of work flowing between the queues, the
fetch layer and the processor.
*/
package request

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

// Priority is a queue priority class
type Priority string

// all supported queue priorities
const (
	PriorityImmediate Priority = "immediate"
	PrioritySoon      Priority = "soon"
	PriorityNormal    Priority = "normal"
	PriorityLater     Priority = "later"
)

// Relation correlates the page requests of a many-to-many relation back to
// the entity that emitted them. The guid is freshly generated per enqueue
// and opaque to the core.
type Relation struct {
	// Origin is the type of the emitting entity, e.g. "repo"
	Origin string `json:"origin"`
	// Qualifier is the URN of the emitting entity
	Qualifier urn.URN `json:"qualifier"`
	// Type is the relation name, e.g. "teams"
	Type string `json:"type"`
	GUID string `json:"guid"`
}

// Context scopes a request within the URN graph
type Context struct {
	// Qualifier is the URN prefix for subordinate entities
	Qualifier urn.URN `json:"qualifier,omitempty"`
	// Relation is set on relation page requests
	Relation *Relation `json:"relation,omitempty"`
}

// Response carries the parts of the HTTP response the core consumes
type Response struct {
	StatusCode int       `json:"statusCode,omitempty"`
	Etag       string    `json:"etag,omitempty"`
	Link       string    `json:"link,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt,omitempty"`
}

// Request is the carrier of one unit of crawl work. Type and URL are set at
// construction, document and response are added by the fetch layer.
type Request struct {
	Type     string                 `json:"type"`
	URL      string                 `json:"url"`
	Context  Context                `json:"context"`
	Policy   policy.TraversalPolicy `json:"policy"`
	Document *document.Document     `json:"document,omitempty"`
	Response *Response              `json:"response,omitempty"`
}

// New creates a request for the given entity type and URL
func New(typ, url string) *Request {
	return &Request{Type: typ, URL: StripTemplate(url)}
}

// WithPolicy returns the request with the given policy set
func (r *Request) WithPolicy(p policy.TraversalPolicy) *Request {
	r.Policy = p
	return r
}

// WithQualifier returns the request with the given context qualifier set
func (r *Request) WithQualifier(q urn.URN) *Request {
	r.Context.Qualifier = q
	return r
}

// Child creates a follow-up request across an edge of the given role. The
// child inherits the parent's qualifier, its policy follows the traversal
// transition table, and its URL has URI template variables stripped.
func (r *Request) Child(role policy.EdgeRole, typ, url string) *Request {
	child := New(typ, url)
	child.Policy = r.Policy.ChildFor(role)
	child.Context.Qualifier = r.Context.Qualifier
	return child
}

// ChildRelation creates a follow-up request for a relation page. The
// relation descriptor receives a freshly generated guid.
func (r *Request) ChildRelation(typ, url string, relation Relation) *Request {
	child := r.Child(policy.EdgeCollectionPage, typ, url)
	relation.GUID = uuid.New().String()
	child.Context.Relation = &relation
	return child
}

// Qualifier returns the context qualifier, or the fallback if the context
// carries none
func (r *Request) Qualifier(fallback urn.URN) urn.URN {
	if r.Context.Qualifier != "" {
		return r.Context.Qualifier
	}
	return fallback
}

// StripTemplate removes RFC 6570 URI template variables from a GitHub URL,
// e.g. "http://x{/y}" becomes "http://x". Every URL emitted in a queued
// request must have been stripped.
func StripTemplate(url string) string {
	for {
		open := strings.IndexByte(url, '{')
		if open < 0 {
			return url
		}
		close := strings.IndexByte(url[open:], '}')
		if close < 0 {
			return url[:open]
		}
		url = url[:open] + url[open+close+1:]
	}
}
